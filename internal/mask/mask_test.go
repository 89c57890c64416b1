package mask

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func TestPlateTransliteratesLatinHomoglyph(t *testing.T) {
	field := NewPlateField(NewWarningLimiter(newClock(), WarningWindow))

	d := field.Type('A')
	if !d.Accepted {
		t.Fatalf("expected Latin A to be accepted")
	}
	if d.Rune != 'А' {
		t.Fatalf("expected Cyrillic А, got %q (%U)", d.Rune, d.Rune)
	}
	if field.Value() != "А" {
		t.Fatalf("expected field value Cyrillic А, got %q", field.Value())
	}
}

func TestPlateRejectsWithSingleWarningPerWindow(t *testing.T) {
	clock := newClock()
	field := NewPlateField(NewWarningLimiter(clock, WarningWindow))

	warnings := 0
	for i := 0; i < 5; i++ {
		d := field.Type('Ф')
		if d.Accepted {
			t.Fatalf("expected Ф to be rejected")
		}
		if !d.Shake {
			t.Fatalf("expected every rejection to shake")
		}
		if d.Warn {
			warnings++
			if d.Message == "" {
				t.Fatalf("expected warning message")
			}
		}
		clock.Advance(300 * time.Millisecond)
	}
	if warnings != 1 {
		t.Fatalf("expected exactly one warning inside the window, got %d", warnings)
	}

	clock.Advance(400 * time.Millisecond)
	if d := field.Type('Ф'); !d.Warn {
		t.Fatalf("expected a new warning once the window has passed")
	}
	if field.Value() != "" {
		t.Fatalf("rejected runes must not reach the value, got %q", field.Value())
	}
}

func TestPlateFullNumber(t *testing.T) {
	field := NewPlateField(nil)
	if rejected := field.TypeString("a123bc77"); rejected != 0 {
		t.Fatalf("expected no rejections, got %d", rejected)
	}
	if field.Value() != "А123ВС77" {
		t.Fatalf("unexpected plate %q", field.Value())
	}
	if field.TypeString("12") != 1 {
		t.Fatalf("expected max length to reject the tenth rune")
	}
}

func TestVINRune(t *testing.T) {
	for _, r := range "IOQioqЖ-" {
		if _, ok := VINRune(r); ok {
			t.Fatalf("expected %q to be rejected", r)
		}
	}
	if r, ok := VINRune('x'); !ok || r != 'X' {
		t.Fatalf("expected lowercase x to be upper-cased, got %q %v", r, ok)
	}

	field := NewVINField(nil)
	field.TypeString("XTA21099043412345")
	if !field.Complete() {
		t.Fatalf("expected 17-char VIN to be complete, got %q", field.Value())
	}
	if d := field.Type('1'); d.Accepted {
		t.Fatalf("expected 18th character to be rejected")
	}
}

func TestMaskedFieldInsertsLiterals(t *testing.T) {
	field := NewMaskedField("AAA-0000000000", nil)
	field.TypeString("xxx")
	if d := field.Type('1'); !d.Accepted {
		t.Fatalf("expected digit after auto-inserted dash")
	}
	if field.Value() != "XXX-1" {
		t.Fatalf("unexpected value %q", field.Value())
	}
	if d := field.Type('Z'); d.Accepted {
		t.Fatalf("expected letter in digit slot to be rejected")
	}
	field.Backspace()
	if field.Value() != "XXX" {
		t.Fatalf("expected backspace to drop the trailing literal, got %q", field.Value())
	}
	field.TypeString("-123456789")
	field.TypeString("0")
	if !field.Complete() {
		t.Fatalf("expected field complete, got %q", field.Value())
	}
}

func TestConform(t *testing.T) {
	cases := []struct {
		mask  string
		value string
		ok    bool
	}{
		{"AAA", "ХХХ", true},
		{"AAA", "XX1", false},
		{"0000000000", "0123456789", true},
		{"0000000000", "012345678", false},
		{"**-00", "Q7-12", true},
		{"**-00", "Q7 12", false},
		{"", "anything", true},
	}
	for _, tc := range cases {
		err := Conform(tc.mask, tc.value)
		if tc.ok && err != nil {
			t.Fatalf("Conform(%q,%q) unexpected error %v", tc.mask, tc.value, err)
		}
		if !tc.ok && !errors.Is(err, ErrMaskMismatch) {
			t.Fatalf("Conform(%q,%q) expected ErrMaskMismatch, got %v", tc.mask, tc.value, err)
		}
	}
}
