package aliases

import "strings"

type entry struct {
	canonical string
	aliases   []string
}

// Order matters: when two dishes share an alias the later one wins.
var table = []entry{
	{"edamame agrumato", []string{"edamame", "edamame lime"}},
	{"gyoza verde", []string{"gyoza", "ravioli giapponesi", "dumpling"}},
	{"gamberi croccanti panko", []string{"gamberi panko", "tempura gambero", "gamberi croccanti"}},
	{"ramen shoyu vegetale", []string{"ramen vegetale", "ramen shoyu", "ramen"}},
	{"ceviche yuzu", []string{"ceviche yuzu", "ceviche agrumato"}},
	{"ceviche tropicale", []string{"ceviche mango", "ceviche cocco", "ceviche tropicale"}},
	{"uramaki yuzu salmon", []string{"yuzu salmon", "yuzu roll", "salmone yuzu"}},
	{"uramaki crispy shrimp", []string{"tempura roll", "gambero roll", "crispy shrimp"}},
	{"uramaki green garden", []string{"roll vegan", "veg roll", "garden roll"}},
	{"uramaki sunburn", []string{"sunburn roll", "uramaki piccante", "tonno piccante"}},
	{"futomaki tempura eb", []string{"futomaki gambero", "futomaki tempura"}},
	{"futomaki dragon veg", []string{"dragon veg", "futomaki veg", "roll dragon"}},
	{"roll di manzo tataki", []string{"manzo tataki", "sushi di carne manzo"}},
	{"roll pollo yakitori", []string{"yakitori roll", "pollo roll"}},
	{"tartare salmone mango", []string{"tartare salmone", "salmone mango"}},
	{"tartare tonno shichimi", []string{"tartare tonno", "tonno piccante"}},
	{"rainbow veg bowl", []string{"veg bowl", "bowl vegetariana"}},
	{"miso bowl arrosto", []string{"miso bowl", "bento miso"}},
	{"mochi yuzu", []string{"mochi", "mochi gelato"}},
	{"torta cioccolato al miso", []string{"torta miso", "dolce cioccolato"}},
	{"yuzu spritz", []string{"spritz yuzu", "cocktail yuzu"}},
	{"gin pepe rosa", []string{"gin tonic", "gin rosa"}},
	{"birra lager di riso", []string{"lager riso", "birra riso"}},
	{"kombucha ginger", []string{"kombucha", "kombucha zenzero"}},
	{"tè verde freddo", []string{"te verde", "te freddo"}},
}

var index = buildIndex()

func buildIndex() map[string]string {
	idx := make(map[string]string)
	for _, e := range table {
		for _, a := range e.aliases {
			idx[a] = e.canonical
		}
	}
	return idx
}

// Resolve returns the canonical dish name for a known alias, otherwise the
// lowercased input.
func Resolve(name string) string {
	lower := strings.ToLower(name)
	if canonical, ok := index[lower]; ok {
		return canonical
	}
	return lower
}

// Normalize is the key form used by the menu caches.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
