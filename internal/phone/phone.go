// Package phone canonicalizes phone numbers for matching and storage.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when callers pass an empty region.
const DefaultRegion = "US"

// Normalize returns the E.164 form of raw. The boolean is false when raw could
// not be canonicalized; the returned string is then the trimmed input.
//
// Possibility (length and country code) is checked, not validity, so fictional
// 555 numbers still normalize.
func Normalize(raw, region string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if region == "" {
		region = DefaultRegion
	}

	digits := Digits(s)
	if digits == "" {
		return s, false
	}

	in := s
	if strings.HasPrefix(s, "00") {
		in = "+" + digits[2:]
	}
	if num, err := phonenumbers.Parse(in, region); err == nil && phonenumbers.IsPossibleNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164), true
	}

	// NANP fallback for inputs the parser rejects.
	switch {
	case strings.HasPrefix(s, "+") && len(digits) >= 8 && len(digits) <= 15:
		return "+" + digits, true
	case len(digits) == 10:
		return "+1" + digits, true
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, true
	}
	return s, false
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Suffix returns the trailing n digits of s, or all of them when shorter.
func Suffix(s string, n int) string {
	d := Digits(s)
	if len(d) <= n {
		return d
	}
	return d[len(d)-n:]
}

// Equal reports whether a and b denote the same number. Canonical E.164 forms
// are compared when both sides normalize; otherwise stripped digits are.
func Equal(a, b, region string) bool {
	na, okA := Normalize(a, region)
	nb, okB := Normalize(b, region)
	if okA && okB {
		return na == nb
	}
	da, db := Digits(a), Digits(b)
	return da != "" && da == db
}
