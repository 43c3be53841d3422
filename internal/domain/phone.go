package domain

import (
	"strings"
)

// NormalizePhone normalizes a raw phone number to E.164, assuming US numbers
// when no country code is present. Returns "" when the input cannot be a
// valid number.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	hasPlus := strings.HasPrefix(strings.TrimSpace(raw), "+")
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case hasPlus && len(d) >= 8 && len(d) <= 15:
		return "+" + d
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && strings.HasPrefix(d, "1"):
		return "+" + d
	default:
		return ""
	}
}
