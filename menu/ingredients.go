package menu

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Ingredient struct {
	ID   string `json:"id"`
	Name string `json:"nome"`
}

// IngredientID folds a name to lowercase ASCII alphanumerics:
// "Salsa di Soia" becomes "salsadisoia", "Tè" becomes "te".
func IngredientID(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range folded {
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Ingredients builds the catalogue entries for names, skipping blanks and
// sorting case-insensitively.
func Ingredients(names []string) []Ingredient {
	out := make([]Ingredient, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		out = append(out, Ingredient{ID: IngredientID(n), Name: n})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	return out
}
