package mask

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("phone must be a Russian number with 10 digits after +7")

// NormalizePhone turns "8 (999) 123-45-67", "+7 999 1234567" or "9991234567"
// into "+79991234567".
func NormalizePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '\u00a0':
		default:
			return "", ErrInvalidPhone
		}
	}

	d := digits.String()
	switch {
	case len(d) == 10:
		d = "7" + d
	case len(d) == 11 && d[0] == '8':
		d = "7" + d[1:]
	}
	if len(d) != 11 || d[0] != '7' {
		return "", ErrInvalidPhone
	}
	return "+" + d, nil
}
