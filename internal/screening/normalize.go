package screening

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var honorifics = map[string]struct{}{
	"mr":   {},
	"mrs":  {},
	"ms":   {},
	"dr":   {},
	"prof": {},
}

// letterFolds covers Latin letters that have no canonical decomposition and so
// survive mark removal. Applied after lower-casing.
var letterFolds = strings.NewReplacer(
	"ł", "l",
	"ø", "o",
	"đ", "d",
	"ð", "d",
	"ħ", "h",
	"ı", "i",
	"ŀ", "l",
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
	"þ", "th",
)

// NormalizeName canonicalizes a display name into a sorted, de-duplicated token sequence.
// Diacritics and case are folded, apostrophes dropped, other punctuation splits tokens.
func NormalizeName(name string) []string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}
	folded = letterFolds.Replace(strings.ToLower(folded))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’' || r == '`':
			// O'Brien -> obrien
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := honorifics[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	sort.Strings(tokens)
	return tokens
}
