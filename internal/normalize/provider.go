package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists trailing tokens stripped from provider names: legal
// entity forms and clinical credentials. Periods are removed before lookup,
// so "M.D." and "L.L.C." arrive as "md" and "llc".
var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true,
	"llc": true, "llp": true, "lp": true, "pllc": true,
	"ltd": true, "limited": true,
	"corp": true, "corporation": true, "co": true,
	"pc": true, "pa": true, "plc": true,
	"dba": true,
	"md":  true, "do": true, "dds": true, "dmd": true,
	"np": true, "rn": true, "phd": true, "facp": true,
}

var punctuation = strings.NewReplacer(
	".", "",
	"'", "",
	"\"", "",
	",", " ",
	"&", " and ",
	"-", " ",
	"/", " ",
	"(", " ",
	")", " ",
	"#", " ",
)

// ProviderName standardizes a provider name for later key derivation:
//  1. Strips diacritics and case-folds
//  2. Removes punctuation
//  3. Drops trailing legal suffixes and credentials (Inc., LLC, M.D.)
//  4. Collapses whitespace
//
// The result is the input to provider-key derivation, not the key itself.
func ProviderName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	// Transformers carry state, so build them per call.
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if s, _, err := transform.String(stripMarks, name); err == nil {
		name = s
	}
	name = cases.Fold().String(name)
	name = punctuation.Replace(name)

	tokens := strings.Fields(name)
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}
