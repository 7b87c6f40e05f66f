package reviews

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/tplengine"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const DefaultPerQuery = 4

type Searcher interface {
	Search(ctx context.Context, project, query string, k int) ([]models.Review, error)
}

// Fetcher turns the review queries extracted from a message into prompt
// ready review snippets.
type Fetcher struct {
	search   Searcher
	perQuery int
}

func NewFetcher(search Searcher, perQuery int) *Fetcher {
	if perQuery < 1 {
		perQuery = DefaultPerQuery
	}

	return &Fetcher{
		search:   search,
		perQuery: perQuery,
	}
}

// Fetch runs one search per query. Queries that fail are skipped.
func (f *Fetcher) Fetch(ctx context.Context, project string, queries []models.ReviewQuery) []models.ReviewItem {
	title := cases.Title(language.Italian)

	var items []models.ReviewItem
	for _, q := range queries {
		dish := title.String(strings.TrimSpace(q.Dish))
		text := strings.TrimSpace(dish + " " + strings.Join(q.Keywords, " "))
		if text == "" {
			slog.Debug("empty review query, skipping")
			continue
		}

		rows, err := f.search.Search(ctx, project, text, f.perQuery)
		if err != nil {
			slog.Warn("review search failed", "query", text, "err", err)
			continue
		}

		for _, r := range rows {
			itemDish := dish
			if itemDish == "" {
				itemDish = strings.Join(r.DishList(), ", ")
			}
			items = append(items, models.ReviewItem{
				Dish:    itemDish,
				Rating:  strconv.Itoa(r.Rating),
				Snippet: r.Text,
			})
		}
	}

	slog.Debug("fetched review items", "count", len(items))

	return items
}

// PromptItems converts review items for the reviews loop of the prompt.
func PromptItems(items []models.ReviewItem) []tplengine.Item {
	out := make([]tplengine.Item, 0, len(items))
	for _, it := range items {
		out = append(out, tplengine.Item{
			"dish":    it.Dish,
			"voto":    it.Rating,
			"snippet": it.Snippet,
		})
	}
	return out
}
