package mask

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"8 (999) 123-45-67", "+79991234567", true},
		{"+7 999 1234567", "+79991234567", true},
		{"9991234567", "+79991234567", true},
		{"79991234567", "+79991234567", true},
		{"+1 555 0100", "", false},
		{"999123456", "", false},
		{"8-999-ABC-45-67", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("NormalizePhone(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("NormalizePhone(%q): expected ErrInvalidPhone, got %q, %v", tc.in, got, err)
		}
	}
}
