package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns an identifier such as "sale-3f2c9a1e4b7d4c0e8a51f7d2b9c6e013".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// HasPrefix reports whether id was minted by New with the given prefix.
func HasPrefix(id string, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}
