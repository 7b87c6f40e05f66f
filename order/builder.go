package order

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/aliases"
	"github.com/imkonsowa/restaurant-chatbot/menu"
	"github.com/imkonsowa/restaurant-chatbot/models"
)

const MaxSimilar = 3

// Builder turns extracted criteria into the order payload handed to the
// frontend, attaching similar menu products to every confirmed product.
type Builder struct {
	search  menu.Searcher
	timeout time.Duration
}

func NewBuilder(search menu.Searcher, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = menu.DefaultSearchTimeout
	}

	return &Builder{
		search:  search,
		timeout: timeout,
	}
}

// Build returns the order entries and their indented JSON form ("[]" when
// there are no criteria). Product names are rewritten to their canonical
// form; any other product field is kept.
func (b *Builder) Build(ctx context.Context, project string, criteria []models.Criterion, cache menu.Cache) ([]models.OrderEntry, string) {
	entries := make([]models.OrderEntry, 0, len(criteria))

	for _, c := range criteria {
		entry := models.OrderEntry{
			DeliveryType: string(c.DeliveryType),
			DeliveryDay:  string(c.DeliveryDay),
			DeliveryHour: string(c.DeliveryHour),
			Address:      string(c.Address),
			Products:     make([]models.OrderProduct, 0, len(c.ConfirmedProducts)),
		}

		for _, prod := range c.ConfirmedProducts {
			prod.Name = aliases.Resolve(prod.Name)
			entry.Products = append(entry.Products, models.OrderProduct{
				OriginalProduct: prod,
				SimilarProducts: b.similar(ctx, project, prod.Name, cache),
			})
		}

		entries = append(entries, entry)
	}

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		slog.Error("failed to encode order", "err", err)
		return entries, "[]"
	}

	return entries, string(raw)
}

// similar ranks up to MaxSimilar menu rows for name. The score is the rank.
func (b *Builder) similar(ctx context.Context, project, name string, cache menu.Cache) []models.SimilarProduct {
	rows, ok := cache.Lookup(name)
	if !ok {
		rows = b.searchRows(ctx, project, name)
	}
	if len(rows) > MaxSimilar {
		rows = rows[:MaxSimilar]
	}

	out := make([]models.SimilarProduct, 0, len(rows))
	for i, r := range rows {
		ingredients := []string(r.Ingredients)
		if ingredients == nil {
			ingredients = []string{}
		}
		out = append(out, models.SimilarProduct{
			Name:        r.Name,
			Ingredients: ingredients,
			Price:       r.Price.InexactFloat64(),
			Score:       i,
		})
	}

	return out
}

func (b *Builder) searchRows(ctx context.Context, project, name string) []models.MenuItem {
	if b.search == nil || name == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	rows, err := b.search.Search(ctx, project, name, MaxSimilar)
	if err != nil {
		slog.Warn("similar products search failed", "product", name, "err", err)
		return nil
	}

	return rows
}
