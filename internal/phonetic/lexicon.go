// Package phonetic maps spoken tokens to the characters they stand for:
// NATO phonetic alphabet, spoken digits and numbers, and the connector
// words used inside park/summit references.
package phonetic

import "strings"

// letters covers the full NATO alphabet plus the spellings and mishearings
// speech engines commonly produce for it.
var letters = map[string]rune{
	"alpha": 'A', "alfa": 'A',
	"bravo":   'B',
	"charlie": 'C',
	"delta":   'D',
	"echo":    'E',
	"foxtrot": 'F',
	"golf":    'G',
	"hotel":   'H',
	"india":   'I',
	"juliet":  'J', "juliett": 'J',
	"kilo":     'K',
	"lima":     'L',
	"mike":     'M',
	"november": 'N',
	"oscar":    'O',
	"papa":     'P',
	"quebec":   'Q',
	"romeo":    'R',
	"sierra":   'S',
	"tango":    'T',
	"uniform":  'U',
	"victor":   'V',
	"whiskey":  'W',
	"x-ray":    'X', "xray": 'X',
	"yankee": 'Y',
	"zulu":   'Z',
}

var digits = map[string]rune{
	"zero": '0',
	"one":  '1',
	"two":  '2', "to": '2', "too": '2',
	"three": '3',
	"four":  '4', "for": '4',
	"five":  '5',
	"six":   '6',
	"seven": '7',
	"eight": '8',
	"nine":  '9', "niner": '9',
}

// numbers is the wider vocabulary accepted when decoding frequencies, where
// operators say things like "fourteen" or "seventy" for digit groups.
var numbers = map[string]string{
	"zero": "0", "oh": "0", "o": "0",
	"one": "1",
	"two": "2", "to": "2", "too": "2",
	"three": "3",
	"four":  "4", "for": "4",
	"five":      "5",
	"six":       "6",
	"seven":     "7",
	"eight":     "8",
	"nine":      "9",
	"niner":     "9",
	"ten":       "10",
	"eleven":    "11",
	"twelve":    "12",
	"thirteen":  "13",
	"fourteen":  "14",
	"fifteen":   "15",
	"sixteen":   "16",
	"seventeen": "17",
	"eighteen":  "18",
	"nineteen":  "19",
	"twenty":    "20",
	"thirty":    "30",
	"forty":     "40",
	"fifty":     "50",
	"sixty":     "60",
	"seventy":   "70",
	"eighty":    "80",
	"ninety":    "90",
	"hundred":   "00",
}

var symbols = map[string]rune{
	"dash": '-', "hyphen": '-',
	"slash": '/', "stroke": '/',
}

var decimalMarkers = map[string]struct{}{
	"point": {}, "decimal": {}, "dot": {},
}

// Normalize lowercases a token and strips the trailing punctuation speech
// engines attach to sentence-final words.
func Normalize(token string) string {
	return strings.Trim(strings.ToLower(token), ".,!?")
}

// LookupLetter resolves a NATO phonetic word to its letter.
func LookupLetter(token string) (rune, bool) {
	r, ok := letters[Normalize(token)]
	return r, ok
}

// LookupDigit resolves a spoken digit word to its digit character.
func LookupDigit(token string) (rune, bool) {
	r, ok := digits[Normalize(token)]
	return r, ok
}

// LookupSymbol resolves connector words to the literal '-' or '/'.
func LookupSymbol(token string) (rune, bool) {
	r, ok := symbols[Normalize(token)]
	return r, ok
}

// LookupNumber resolves spoken number words, including teens and tens,
// to their digit-string form.
func LookupNumber(token string) (string, bool) {
	s, ok := numbers[Normalize(token)]
	return s, ok
}

// IsDecimalMarker reports whether a token marks the decimal point in a
// spoken frequency.
func IsDecimalMarker(token string) bool {
	_, ok := decimalMarkers[Normalize(token)]
	return ok
}
