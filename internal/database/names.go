package database

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nameSeparators are folded to spaces so "Souza-Lima" and "D'Ávila" match
// searches typed without the punctuation.
var nameSeparators = strings.NewReplacer("-", " ", "'", " ", "’", " ", ".", " ")

// FoldName reduces a person name to the form stored in user_name_search:
// accents stripped, case folded, separators turned into single spaces.
// "João D'Ávila-Souza" folds to "joao d avila souza".
func FoldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = strings.ToLower(name)
	}
	return strings.Join(strings.Fields(nameSeparators.Replace(folded)), " ")
}

// NameContainsPattern returns a LIKE pattern matching folded names that
// contain query. LIKE wildcards in query are escaped with a backslash, so
// the pattern must be used with ESCAPE '\'. An empty query returns "".
func NameContainsPattern(query string) string {
	folded := FoldName(query)
	if folded == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(folded) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// NameContains reports whether the folded name contains the folded query,
// the in-memory counterpart of NameContainsPattern.
func NameContains(name, query string) bool {
	q := FoldName(query)
	return q == "" || strings.Contains(FoldName(name), q)
}
