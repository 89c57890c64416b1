// Package mask implements per-keystroke input gates for plate numbers, VINs
// and mask-driven policy series/number fields.
package mask

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	SlotDigit  = '0'
	SlotLetter = 'A'
	SlotAny    = '*'
)

const (
	PlateMaxLen = 9
	VINLen      = 17
)

var ErrMaskMismatch = errors.New("value does not match mask")

// Filter admits a single rune, possibly rewriting it.
type Filter func(r rune) (rune, bool)

// plateLetters maps every admissible plate letter, Cyrillic or its Latin
// homoglyph in either case, to the upper-case Cyrillic letter.
var plateLetters = map[rune]rune{
	'А': 'А', 'В': 'В', 'Е': 'Е', 'К': 'К', 'М': 'М', 'Н': 'Н',
	'О': 'О', 'Р': 'Р', 'С': 'С', 'Т': 'Т', 'У': 'У', 'Х': 'Х',
	'а': 'А', 'в': 'В', 'е': 'Е', 'к': 'К', 'м': 'М', 'н': 'Н',
	'о': 'О', 'р': 'Р', 'с': 'С', 'т': 'Т', 'у': 'У', 'х': 'Х',
	'A': 'А', 'B': 'В', 'E': 'Е', 'K': 'К', 'M': 'М', 'H': 'Н',
	'O': 'О', 'P': 'Р', 'C': 'С', 'T': 'Т', 'Y': 'У', 'X': 'Х',
	'a': 'А', 'b': 'В', 'e': 'Е', 'k': 'К', 'm': 'М', 'h': 'Н',
	'o': 'О', 'p': 'Р', 'c': 'С', 't': 'Т', 'y': 'У', 'x': 'Х',
}

// PlateRune admits digits and the twelve plate letters.
func PlateRune(r rune) (rune, bool) {
	if r >= '0' && r <= '9' {
		return r, true
	}
	mapped, ok := plateLetters[r]
	return mapped, ok
}

// VINRune admits digits and A-Z except I, O and Q.
func VINRune(r rune) (rune, bool) {
	if r >= '0' && r <= '9' {
		return r, true
	}
	if r >= 'a' && r <= 'z' {
		r = r - 'a' + 'A'
	}
	if r < 'A' || r > 'Z' {
		return r, false
	}
	switch r {
	case 'I', 'O', 'Q':
		return r, false
	}
	return r, true
}

// SlotRune checks r against one mask position class.
func SlotRune(slot rune, r rune) (rune, bool) {
	switch slot {
	case SlotDigit:
		return r, r >= '0' && r <= '9'
	case SlotLetter:
		if !unicode.IsLetter(r) {
			return r, false
		}
		return unicode.ToUpper(r), true
	case SlotAny:
		return r, !unicode.IsSpace(r) && unicode.IsPrint(r)
	}
	return r, r == slot
}

func isSlot(r rune) bool {
	return r == SlotDigit || r == SlotLetter || r == SlotAny
}

// Conform validates a complete value against a mask. An empty mask accepts
// anything.
func Conform(mask string, value string) error {
	if mask == "" {
		return nil
	}
	slots := []rune(mask)
	runes := []rune(value)
	if len(runes) != len(slots) {
		return fmt.Errorf("%w: want %d characters, got %d", ErrMaskMismatch, len(slots), len(runes))
	}
	for i, slot := range slots {
		if _, ok := SlotRune(slot, runes[i]); !ok {
			return fmt.Errorf("%w: position %d %q does not fit %q", ErrMaskMismatch, i+1, runes[i], slot)
		}
	}
	return nil
}

// Normalize upper-cases letter slots of an already conforming value.
func Normalize(mask string, value string) string {
	if mask == "" {
		return strings.TrimSpace(value)
	}
	slots := []rune(mask)
	runes := []rune(value)
	for i := range runes {
		if i < len(slots) {
			runes[i], _ = SlotRune(slots[i], runes[i])
		}
	}
	return string(runes)
}

// Decision is the outcome of one keystroke.
type Decision struct {
	Rune     rune
	Accepted bool
	Shake    bool
	Warn     bool
	Message  string
}

// Field accumulates keystrokes for one input.
type Field struct {
	filter   Filter
	mask     []rune
	maxLen   int
	exact    bool
	value    []rune
	warnings *WarningLimiter
	message  string
}

func NewPlateField(warnings *WarningLimiter) *Field {
	return &Field{
		filter:   PlateRune,
		maxLen:   PlateMaxLen,
		warnings: warnings,
		message:  "Госномер: допустимы цифры и буквы А, В, Е, К, М, Н, О, Р, С, Т, У, Х",
	}
}

func NewVINField(warnings *WarningLimiter) *Field {
	return &Field{
		filter:   VINRune,
		maxLen:   VINLen,
		exact:    true,
		warnings: warnings,
		message:  "VIN: допустимы цифры и латинские буквы, кроме I, O, Q",
	}
}

func NewMaskedField(mask string, warnings *WarningLimiter) *Field {
	slots := []rune(mask)
	return &Field{
		mask:     slots,
		maxLen:   len(slots),
		warnings: warnings,
		message:  "Значение должно соответствовать формату " + mask,
	}
}

// Type feeds one rune into the field.
func (f *Field) Type(r rune) Decision {
	if f.mask != nil {
		return f.typeMasked(r)
	}
	if f.maxLen > 0 && len(f.value) >= f.maxLen {
		return f.reject(r)
	}
	admitted, ok := f.filter(r)
	if !ok {
		return f.reject(r)
	}
	f.value = append(f.value, admitted)
	return Decision{Rune: admitted, Accepted: true}
}

func (f *Field) typeMasked(r rune) Decision {
	pos := len(f.value)
	for pos < len(f.mask) && !isSlot(f.mask[pos]) {
		literal := f.mask[pos]
		f.value = append(f.value, literal)
		pos++
		if r == literal {
			return Decision{Rune: r, Accepted: true}
		}
	}
	if pos >= len(f.mask) {
		return f.reject(r)
	}
	admitted, ok := SlotRune(f.mask[pos], r)
	if !ok {
		return f.reject(r)
	}
	f.value = append(f.value, admitted)
	return Decision{Rune: admitted, Accepted: true}
}

func (f *Field) reject(r rune) Decision {
	d := Decision{Rune: r, Shake: true}
	if f.warnings.Allow() {
		d.Warn = true
		d.Message = f.message
	}
	return d
}

// TypeString feeds every rune of s and returns how many were rejected.
func (f *Field) TypeString(s string) int {
	rejected := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if !f.Type(r).Accepted {
			rejected++
		}
	}
	return rejected
}

func (f *Field) Backspace() {
	if len(f.value) > 0 {
		f.value = f.value[:len(f.value)-1]
	}
	if f.mask != nil {
		for len(f.value) > 0 && !isSlot(f.mask[len(f.value)-1]) {
			f.value = f.value[:len(f.value)-1]
		}
	}
}

func (f *Field) Value() string {
	return string(f.value)
}

// Complete reports whether a masked or fixed-length field is fully typed.
func (f *Field) Complete() bool {
	if f.mask != nil {
		return len(f.value) == len(f.mask)
	}
	if f.exact {
		return len(f.value) == f.maxLen
	}
	return len(f.value) > 0
}
