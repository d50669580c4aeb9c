package command

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/spotterlabs/talkspot/internal/phonetic"
)

// decodeCallsign maps a token window through the letter/digit lexicon.
// Tokens that fail lookup are filler and skipped; the decode fails only
// when nothing in the window resolved.
func decodeCallsign(window []string) (string, bool) {
	var b strings.Builder
	for _, w := range window {
		if r, ok := phonetic.LookupLetter(w); ok {
			b.WriteRune(r)
			continue
		}
		if r, ok := phonetic.LookupDigit(w); ok {
			b.WriteRune(r)
			continue
		}
		if r, ok := literalChar(w); ok {
			b.WriteRune(r)
		}
	}
	s := b.String()
	return s, s != ""
}

// decodeReference additionally accepts the connector words dash/slash as
// literal '-' and '/'.
func decodeReference(window []string) (string, bool) {
	var b strings.Builder
	alnum := false
	for _, w := range window {
		if r, ok := phonetic.LookupLetter(w); ok {
			b.WriteRune(r)
			alnum = true
			continue
		}
		if r, ok := phonetic.LookupDigit(w); ok {
			b.WriteRune(r)
			alnum = true
			continue
		}
		if r, ok := phonetic.LookupSymbol(w); ok {
			b.WriteRune(r)
			continue
		}
		if r, ok := literalChar(w); ok {
			b.WriteRune(r)
			alnum = true
		}
	}
	return b.String(), alnum
}

// decodeFrequency concatenates spoken number words and bare digit strings.
// A decimal marker means the value was spoken in MHz; the original tool's
// heuristic that values under 1000 are also MHz is kept, since nobody
// spots below 1 MHz by voice. Returns kHz. Never yields zero: an empty or
// unparsable window fails instead.
func decodeFrequency(window []string) (float64, bool) {
	var b strings.Builder
	sawDigit := false
	sawPoint := false
	for _, w := range window {
		if phonetic.IsDecimalMarker(w) {
			b.WriteByte('.')
			sawPoint = true
			continue
		}
		if s, ok := phonetic.LookupNumber(w); ok {
			b.WriteString(s)
			sawDigit = true
			continue
		}
		if n := phonetic.Normalize(w); n != "" && isDigits(n) {
			b.WriteString(n)
			sawDigit = true
		}
	}
	if !sawDigit {
		return 0, false
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	if sawPoint || f < 1000 {
		f *= 1000
	}
	// Spots are quoted to 0.1 kHz; rounding also squares away the
	// binary fraction left by the MHz conversion.
	return math.Round(f*10) / 10, true
}

// literalChar accepts a directly spoken single letter or digit ("w", "7").
func literalChar(w string) (rune, bool) {
	n := phonetic.Normalize(w)
	if len(n) != 1 {
		return 0, false
	}
	r := rune(n[0])
	if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
		return 0, false
	}
	return unicode.ToUpper(r), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
