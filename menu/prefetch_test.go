package menu

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/aliases"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/workpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string][]models.MenuItem
	fail    map[string]bool
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		calls:   map[string]int{},
		results: map[string][]models.MenuItem{},
		fail:    map[string]bool{},
	}
}

func (f *fakeSearcher) Search(_ context.Context, _, query string, k int) ([]models.MenuItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[query]++
	if f.fail[query] {
		return nil, errors.New("search backend down")
	}
	rows := f.results[query]
	if len(rows) > k {
		rows = rows[:k]
	}
	return rows, nil
}

func (f *fakeSearcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeMatcher map[string]models.MenuItem

func (f fakeMatcher) BestMatch(_ context.Context, _, name string) (models.MenuItem, bool) {
	item, ok := f[name]
	return item, ok
}

func dish(name string) models.MenuItem {
	return models.MenuItem{Name: name, Type: "uramaki", Price: decimal.RequireFromString("12.5")}
}

func products(names ...string) []models.Product {
	out := make([]models.Product, len(names))
	for i, n := range names {
		out[i] = models.Product{Name: n}
	}
	return out
}

func newTestPrefetcher(t *testing.T, s Searcher, m BestMatcher) *Prefetcher {
	t.Helper()
	pool := workpool.New(context.Background(), 4, 16)
	t.Cleanup(pool.Stop)
	return NewPrefetcher(s, m, pool, 3, time.Second)
}

func TestLookups_GroupsByQuery(t *testing.T) {
	order, keys := Lookups([]models.Criterion{
		{ConfirmedProducts: products("uramaki piccante", " gyoza ")},
		{ConfirmedProducts: products("uramaki piccante", "", "Uramaki Sunburn")},
	})

	require.Equal(t, []string{"uramaki piccante", "gyoza", "Uramaki Sunburn"}, order)
	require.Equal(t, []string{"uramaki piccante", "uramaki sunburn"}, keys["uramaki piccante"])
	require.Equal(t, []string{"gyoza", "gyoza verde"}, keys["gyoza"])
	require.Equal(t, []string{"uramaki sunburn"}, keys["Uramaki Sunburn"])
	require.NotContains(t, keys, "uramaki sunburn")
}

func TestPrefetch_EveryKeyIsPopulated(t *testing.T) {
	s := newFakeSearcher()
	s.results["uramaki piccante"] = []models.MenuItem{dish("uramaki sunburn"), dish("uramaki yuzu salmon")}
	s.results["uramaki sunburn"] = []models.MenuItem{dish("uramaki sunburn")}
	s.results["gyoza"] = []models.MenuItem{dish("gyoza verde")}
	s.fail["pizza"] = true

	p := newTestPrefetcher(t, s, fakeMatcher{"pizza": dish("pizza sushi")})

	criteria := []models.Criterion{
		{ConfirmedProducts: products("uramaki piccante", "gyoza")},
		{ConfirmedProducts: products("Uramaki Piccante", "pizza", "sconosciuto")},
	}
	cache := p.Prefetch(context.Background(), "sushi", criteria)

	for _, c := range criteria {
		for _, prod := range c.ConfirmedProducts {
			_, ok := cache[aliases.Normalize(prod.Name)]
			require.True(t, ok, "raw key for %q", prod.Name)
			_, ok = cache[aliases.Normalize(aliases.Resolve(prod.Name))]
			require.True(t, ok, "canonical key for %q", prod.Name)
		}
	}

	require.Len(t, cache["uramaki piccante"], 2)
	require.Equal(t, "pizza sushi", cache["pizza"][0].Name)
	require.Empty(t, cache["sconosciuto"])
}

func TestPrefetch_OneSearchPerDistinctName(t *testing.T) {
	s := newFakeSearcher()
	p := newTestPrefetcher(t, s, fakeMatcher{})

	p.Prefetch(context.Background(), "", []models.Criterion{
		{ConfirmedProducts: products("mochi", "mochi")},
		{ConfirmedProducts: products("mochi")},
		{ConfirmedProducts: products("mochi")},
	})

	require.Equal(t, map[string]int{"mochi": 1}, s.calls)
}

func TestPrefetch_AliasSharesRawResult(t *testing.T) {
	s := newFakeSearcher()
	s.results["uramaki piccante"] = []models.MenuItem{dish("uramaki sunburn"), dish("uramaki yuzu salmon")}
	p := newTestPrefetcher(t, s, fakeMatcher{})

	cache := p.Prefetch(context.Background(), "", []models.Criterion{
		{ConfirmedProducts: products("uramaki piccante")},
	})

	require.Equal(t, 1, s.total())
	require.Equal(t, cache["uramaki piccante"], cache["uramaki sunburn"])
	require.Len(t, cache["uramaki sunburn"], 2)
}

func TestPrefetch_NoProducts(t *testing.T) {
	s := newFakeSearcher()
	p := newTestPrefetcher(t, s, fakeMatcher{})

	cache := p.Prefetch(context.Background(), "", []models.Criterion{{DeliveryType: "asporto"}})
	require.Empty(t, cache)
	require.Zero(t, s.total())
}

func TestPrefetcher_Lookup(t *testing.T) {
	s := newFakeSearcher()
	s.results["Ramen"] = []models.MenuItem{dish("ramen shoyu vegetale")}
	p := newTestPrefetcher(t, s, fakeMatcher{})

	cache := Cache{"uramaki sunburn": {dish("uramaki sunburn")}}

	rows := p.Lookup(context.Background(), "", "Uramaki Piccante", cache)
	require.Equal(t, "uramaki sunburn", rows[0].Name)
	require.Zero(t, s.total(), "alias hit must not search")

	rows = p.Lookup(context.Background(), "", "Ramen", cache)
	require.Equal(t, "ramen shoyu vegetale", rows[0].Name)
	require.Contains(t, cache, "ramen")

	p.Lookup(context.Background(), "", "ramen", cache)
	require.Equal(t, 1, s.total())
}

func TestCache_LookupNil(t *testing.T) {
	var c Cache
	_, ok := c.Lookup("gyoza")
	require.False(t, ok)
}

func TestPromptItems(t *testing.T) {
	s := newFakeSearcher()
	p := newTestPrefetcher(t, s, fakeMatcher{})

	item := models.MenuItem{
		Name:        "uramaki sunburn",
		Type:        "uramaki",
		Description: "tonno piccante e mango",
		Ingredients: []string{"tonno", "mango", "shichimi"},
		Price:       decimal.RequireFromString("13.9"),
	}
	cache := Cache{"uramaki piccante": {item}, "mochi": {}}

	items := p.PromptItems(context.Background(), "", []models.Criterion{
		{ConfirmedProducts: products("uramaki piccante", "mochi")},
	}, 8, cache)

	require.Len(t, items, 1)
	require.Equal(t, "Uramaki Sunburn", items[0]["name"])
	require.Equal(t, "Uramaki", items[0]["type"])
	require.Equal(t, "tonno, mango, shichimi", items[0]["ingredients"])
	require.Equal(t, "13.90", items[0]["price"])
}

func TestPromptItems_Bounded(t *testing.T) {
	s := newFakeSearcher()
	p := newTestPrefetcher(t, s, fakeMatcher{})

	cache := Cache{}
	names := make([]string, 12)
	for i := range names {
		names[i] = string(rune('a' + i))
		cache[names[i]] = []models.MenuItem{dish(names[i])}
	}

	items := p.PromptItems(context.Background(), "", []models.Criterion{{ConfirmedProducts: products(names...)}}, 8, cache)
	require.Len(t, items, 8)
}
