package order

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/imkonsowa/restaurant-chatbot/menu"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	rows    map[string][]models.MenuItem
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, _, query string, k int) ([]models.MenuItem, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	rows := f.rows[query]
	if len(rows) > k {
		rows = rows[:k]
	}
	return rows, nil
}

func item(name, price string, ingredients ...string) models.MenuItem {
	return models.MenuItem{Name: name, Price: decimal.RequireFromString(price), Ingredients: ingredients}
}

func criterion(t *testing.T, raw string) models.Criterion {
	t.Helper()
	var c models.Criterion
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c
}

func TestBuild_Empty(t *testing.T) {
	b := NewBuilder(&fakeSearcher{}, 0)

	entries, raw := b.Build(context.Background(), "", nil, nil)
	require.NotNil(t, entries)
	require.Empty(t, entries)
	require.Equal(t, "[]", raw)
}

func TestBuild_CanonicalNameFromCache(t *testing.T) {
	search := &fakeSearcher{}
	cache := menu.Cache{
		"uramaki sunburn": {
			item("uramaki sunburn", "12.50", "salmone", "avocado"),
			item("uramaki spicy tuna", "13", "tonno"),
			item("uramaki ebiten", "11", "gambero"),
			item("uramaki veggie", "9"),
		},
	}
	c := criterion(t, `{"delivery_type":"domicilio","delivery_day":"2026-10-15","delivery_hour":"20:00","address":"Via Roma 1",
		"confirmed_products":[{"name":"Uramaki Piccante","quantity":2,"notes":"senza sesamo"}]}`)

	entries, raw := NewBuilder(search, 0).Build(context.Background(), "", []models.Criterion{c}, cache)
	require.Empty(t, search.queries)
	require.Len(t, entries, 1)

	entry := entries[0]
	require.Equal(t, "domicilio", entry.DeliveryType)
	require.Equal(t, "2026-10-15", entry.DeliveryDay)
	require.Equal(t, "20:00", entry.DeliveryHour)
	require.Equal(t, "Via Roma 1", entry.Address)
	require.Len(t, entry.Products, 1)

	prod := entry.Products[0]
	require.Equal(t, "uramaki sunburn", prod.OriginalProduct.Name)
	require.Equal(t, 2, *prod.OriginalProduct.Quantity)
	require.Len(t, prod.SimilarProducts, MaxSimilar)
	require.Equal(t, models.SimilarProduct{Name: "uramaki sunburn", Ingredients: []string{"salmone", "avocado"}, Price: 12.5, Score: 0}, prod.SimilarProducts[0])
	require.Equal(t, 2, prod.SimilarProducts[2].Score)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	original := decoded[0]["products"].([]any)[0].(map[string]any)["original_product"].(map[string]any)
	require.Equal(t, "senza sesamo", original["notes"])
	require.Equal(t, "uramaki sunburn", original["name"])

	require.Equal(t, "Uramaki Piccante", c.ConfirmedProducts[0].Name)
}

func TestBuild_SearchesWhenCacheMisses(t *testing.T) {
	search := &fakeSearcher{rows: map[string][]models.MenuItem{
		"gyoza": {item("gyoza di carne", "6")},
	}}
	c := criterion(t, `{"confirmed_products":[{"name":"gyoza"}]}`)

	entries, _ := NewBuilder(search, 0).Build(context.Background(), "", []models.Criterion{c}, menu.Cache{"edamame": nil})
	require.Equal(t, []string{"gyoza"}, search.queries)

	similar := entries[0].Products[0].SimilarProducts
	require.Len(t, similar, 1)
	require.Equal(t, []string{}, similar[0].Ingredients)
	require.Equal(t, 6.0, similar[0].Price)
}

func TestBuild_SearchFailureYieldsNoSimilar(t *testing.T) {
	search := &fakeSearcher{err: errors.New("db down")}
	c := criterion(t, `{"confirmed_products":[{"name":"gyoza"}]}`)

	entries, raw := NewBuilder(search, 0).Build(context.Background(), "", []models.Criterion{c}, nil)
	require.NotNil(t, entries[0].Products[0].SimilarProducts)
	require.Empty(t, entries[0].Products[0].SimilarProducts)
	require.Contains(t, raw, `"similar_products": []`)
}

func TestBuild_CriterionWithoutProducts(t *testing.T) {
	c := criterion(t, `{"delivery_type":"asporto"}`)

	entries, raw := NewBuilder(&fakeSearcher{}, 0).Build(context.Background(), "", []models.Criterion{c}, nil)
	require.Len(t, entries, 1)
	require.Empty(t, entries[0].Products)
	require.Contains(t, raw, `"products": []`)
}
