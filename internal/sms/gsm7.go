package sms

import "strings"

// GSM 03.38 basic character set. Characters outside this set (and the
// extension table) force UCS-2 encoding, which cuts the per-segment budget
// from 160 to 70 characters.
const gsm7Basic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

// Extension table characters cost two septets each.
const gsm7Extended = "^{}\\[~]|€"

const (
	gsm7SingleSegment = 160
	gsm7MultiSegment  = 153
	ucs2SingleSegment = 70
	ucs2MultiSegment  = 67
)

// normalizations maps common non-GSM punctuation to GSM-7-safe equivalents.
// Carrier segment counting depends on character set, so this runs before any
// length calculation.
var normalizations = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"‚", "'", // single low quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"„", `"`, // double low quote
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	"…", "...", // ellipsis glyph
	" ", " ", // non-breaking space
)

// Normalize rewrites smart punctuation to GSM-7-safe equivalents.
func Normalize(s string) string {
	return normalizations.Replace(s)
}

// IsGSM7 reports whether the text fits the GSM-7 alphabet.
func IsGSM7(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(gsm7Basic, r) && !strings.ContainsRune(gsm7Extended, r) {
			return false
		}
	}
	return true
}

// septets counts GSM-7 septets; extension characters count double.
func septets(s string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(gsm7Extended, r) {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Segments returns the carrier segment count for the given text.
func Segments(s string) int {
	if s == "" {
		return 0
	}
	if IsGSM7(s) {
		n := septets(s)
		if n <= gsm7SingleSegment {
			return 1
		}
		return (n + gsm7MultiSegment - 1) / gsm7MultiSegment
	}
	runes := len([]rune(s))
	if runes <= ucs2SingleSegment {
		return 1
	}
	return (runes + ucs2MultiSegment - 1) / ucs2MultiSegment
}
