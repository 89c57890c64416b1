// Package money converts between the text an operator types into amount
// fields and decimal amounts.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tolerance is the slack allowed when cross-checking drawer arithmetic
// entered by hand (closing balance, withdrawal, amount kept).
var Tolerance = decimal.New(1, -2)

var currencyMarks = []string{"₽", "руб.", "руб", "р.", "RUB", "rub"}

// Parse reads amounts such as "1234", "1 234,56", "1234.56" or "1 234,56 ₽".
// ok is false for empty or malformed input.
func Parse(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	for _, mark := range currencyMarks {
		s = strings.ReplaceAll(s, mark, "")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t':
			return -1
		case ',':
			return '.'
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}

	dots := 0
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		case r == '-' && i == 0:
		default:
			return decimal.Zero, false
		}
	}
	if dots > 1 || digits == 0 {
		return decimal.Zero, false
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

// ParseOrZero is Parse with invalid input coerced to zero.
func ParseOrZero(raw string) decimal.Decimal {
	amount, ok := Parse(raw)
	if !ok {
		return decimal.Zero
	}
	return amount
}

// Format renders an amount as "1 234,56 ₽".
func Format(amount decimal.Decimal) string {
	return FormatPlain(amount) + " ₽"
}

// FormatPlain renders an amount as "1 234,56" without the currency sign.
func FormatPlain(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if amount.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}

// WithinTolerance reports whether a and b differ by no more than Tolerance.
func WithinTolerance(a decimal.Decimal, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Sum adds amounts; an empty list sums to zero.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}
