package menu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	items []models.MenuItem
	calls int
	err   error
}

func (f *fakeCatalog) List(context.Context, string, string) ([]models.MenuItem, error) {
	f.calls++
	return f.items, f.err
}

func (f *fakeCatalog) Database(project string) string {
	if project == "" {
		return "ristosushi_it"
	}
	return project
}

func TestMatcher_BestMatch(t *testing.T) {
	catalog := &fakeCatalog{items: []models.MenuItem{
		{ID: 1, Name: "Ramen Shoyu Vegetale"},
		{ID: 2, Name: "Gyoza Verde"},
		{ID: 3, Name: "Uramaki Sunburn"},
		{ID: 4, Name: "  "},
	}}
	m := NewMatcher(catalog, time.Minute)

	item, ok := m.BestMatch(context.Background(), "", "gyoza fritti")
	require.True(t, ok)
	require.Equal(t, uint64(2), item.ID)

	_, ok = m.BestMatch(context.Background(), "", "pizza margherita")
	require.False(t, ok)

	_, ok = m.BestMatch(context.Background(), "", "  ")
	require.False(t, ok)

	require.Equal(t, 1, catalog.calls, "snapshot is reused within the ttl")
}

func TestMatcher_Invalidate(t *testing.T) {
	catalog := &fakeCatalog{items: []models.MenuItem{{ID: 1, Name: "Mochi Yuzu"}}}
	m := NewMatcher(catalog, time.Minute)

	_, ok := m.BestMatch(context.Background(), "sushi", "mochi")
	require.True(t, ok)

	m.Invalidate("sushi")
	_, ok = m.BestMatch(context.Background(), "sushi", "mochi")
	require.True(t, ok)
	require.Equal(t, 2, catalog.calls)
}

func TestMatcher_CatalogError(t *testing.T) {
	m := NewMatcher(&fakeCatalog{err: errors.New("db down")}, time.Minute)

	_, ok := m.BestMatch(context.Background(), "", "mochi")
	require.False(t, ok)
}

func TestScore(t *testing.T) {
	require.Zero(t, Score("pizza", "uramaki sunburn"))
	require.Zero(t, Score("", "uramaki"))
	require.InDelta(t, 1.1, Score("Mochi", "mochi"), 1e-9)
	require.Greater(t, Score("uramaki sunburn", "Uramaki Sunburn Roll"), Score("uramaki sunburn", "Uramaki Yuzu Salmon"))
}
