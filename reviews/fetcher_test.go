package reviews

import (
	"context"
	"errors"
	"testing"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	queries []string
	ks      []int
	rows    map[string][]models.Review
	fail    map[string]bool
}

func (f *fakeSearcher) Search(_ context.Context, _, query string, k int) ([]models.Review, error) {
	f.queries = append(f.queries, query)
	f.ks = append(f.ks, k)
	if f.fail[query] {
		return nil, errors.New("embedding service down")
	}
	return f.rows[query], nil
}

func TestFetcher_Fetch(t *testing.T) {
	s := &fakeSearcher{
		rows: map[string][]models.Review{
			"Uramaki Sunburn piccante fresco": {
				{Rating: 5, Text: "Piccante al punto giusto", Dishes: `["Uramaki Sunburn"]`},
			},
			"servizio veloce": {
				{Rating: 4, Text: "Consegna rapida", Dishes: `['Gyoza Verde', 'Mochi Yuzu']`},
			},
		},
	}
	f := NewFetcher(s, 4)

	items := f.Fetch(context.Background(), "sushi", []models.ReviewQuery{
		{Dish: "uramaki sunburn", Keywords: []string{"piccante", "fresco"}, Intent: "quality"},
		{Keywords: []string{"servizio", "veloce"}},
		{},
	})

	require.Equal(t, []string{"Uramaki Sunburn piccante fresco", "servizio veloce"}, s.queries)
	require.Equal(t, []int{4, 4}, s.ks)
	require.Equal(t, []models.ReviewItem{
		{Dish: "Uramaki Sunburn", Rating: "5", Snippet: "Piccante al punto giusto"},
		{Dish: "Gyoza Verde, Mochi Yuzu", Rating: "4", Snippet: "Consegna rapida"},
	}, items)
}

func TestFetcher_SkipsFailedQueries(t *testing.T) {
	s := &fakeSearcher{
		fail: map[string]bool{"Ramen": true},
		rows: map[string][]models.Review{"Mochi": {{Rating: 3, Text: "ok"}}},
	}

	items := NewFetcher(s, 0).Fetch(context.Background(), "", []models.ReviewQuery{{Dish: "ramen"}, {Dish: "mochi"}})
	require.Len(t, items, 1)
	require.Equal(t, "Mochi", items[0].Dish)
	require.Equal(t, []int{DefaultPerQuery, DefaultPerQuery}, s.ks)
}

func TestFetcher_NoQueries(t *testing.T) {
	require.Empty(t, NewFetcher(&fakeSearcher{}, 4).Fetch(context.Background(), "", nil))
}

func TestPromptItems(t *testing.T) {
	items := PromptItems([]models.ReviewItem{{Dish: "Mochi", Rating: "5", Snippet: "buono"}})
	require.Equal(t, "5", items[0]["voto"])
	require.Equal(t, "buono", items[0]["snippet"])
}
