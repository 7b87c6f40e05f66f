package menu

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/aliases"
	"github.com/imkonsowa/restaurant-chatbot/metrics"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/tplengine"
	"github.com/imkonsowa/restaurant-chatbot/workpool"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultK             = 3
	DefaultSearchTimeout = 30 * time.Second
	DefaultMaxItems      = 8
)

type Searcher interface {
	Search(ctx context.Context, project, query string, k int) ([]models.MenuItem, error)
}

type BestMatcher interface {
	BestMatch(ctx context.Context, project, name string) (models.MenuItem, bool)
}

// Cache maps normalized dish names, raw and alias resolved, to their search
// results for a single turn. A present key with no rows means the dish was
// looked up and nothing matched.
type Cache map[string][]models.MenuItem

// Lookup tries the normalized name, then its alias resolved form.
func (c Cache) Lookup(name string) ([]models.MenuItem, bool) {
	if c == nil {
		return nil, false
	}

	key := aliases.Normalize(name)
	if rows, ok := c[key]; ok {
		return rows, true
	}

	aliasKey := aliases.Normalize(aliases.Resolve(strings.TrimSpace(name)))
	if aliasKey != key {
		if rows, ok := c[aliasKey]; ok {
			return rows, true
		}
	}

	return nil, false
}

// Lookups groups every product mention of criteria by the raw text to search
// for. Each query feeds the normalized raw key and, when the alias resolves
// elsewhere, the canonical key too.
func Lookups(criteria []models.Criterion) ([]string, map[string][]string) {
	var order []string
	keys := make(map[string][]string)

	add := func(query, key string) {
		existing, ok := keys[query]
		if !ok {
			order = append(order, query)
		}
		for _, k := range existing {
			if k == key {
				return
			}
		}
		keys[query] = append(existing, key)
	}

	for _, c := range criteria {
		for _, p := range c.ConfirmedProducts {
			raw := strings.TrimSpace(p.Name)
			if raw == "" {
				continue
			}
			rawKey := aliases.Normalize(raw)
			add(raw, rawKey)

			if canonKey := aliases.Normalize(aliases.Resolve(raw)); canonKey != rawKey {
				add(raw, canonKey)
			}
		}
	}

	return order, keys
}

// Prefetcher resolves every dish mentioned in a turn with one search per
// distinct name, run in parallel on the worker pool.
type Prefetcher struct {
	search  Searcher
	matcher BestMatcher
	pool    *workpool.Pool
	k       int
	timeout time.Duration
}

func NewPrefetcher(search Searcher, matcher BestMatcher, pool *workpool.Pool, k int, timeout time.Duration) *Prefetcher {
	if k < 1 {
		k = DefaultK
	}
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}

	return &Prefetcher{
		search:  search,
		matcher: matcher,
		pool:    pool,
		k:       k,
		timeout: timeout,
	}
}

// Prefetch returns once every search has finished; failed or empty searches
// fall back to the fuzzy matcher.
func (p *Prefetcher) Prefetch(ctx context.Context, project string, criteria []models.Criterion) Cache {
	queries, keys := Lookups(criteria)
	out := make(Cache, len(queries))
	if len(queries) == 0 {
		return out
	}

	futures := make([]*workpool.Future[[]models.MenuItem], len(queries))
	for i, query := range queries {
		futures[i] = workpool.Submit(p.pool, ctx, func(ctx context.Context) ([]models.MenuItem, error) {
			ctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			return p.search.Search(ctx, project, query, p.k)
		})
	}

	for i, f := range futures {
		query := queries[i]

		rows, err := f.Wait()
		if err != nil {
			slog.Warn("menu prefetch search failed", "query", query, "err", err)
		}
		result := metrics.PrefetchHit
		if err != nil || len(rows) == 0 {
			rows, result = p.fallback(ctx, project, query)
		}
		metrics.PrefetchQueries.WithLabelValues(result).Inc()

		for _, key := range keys[query] {
			// differently cased mentions share a key; keep the rows that matched
			if existing, ok := out[key]; ok && len(existing) > 0 && len(rows) == 0 {
				continue
			}
			out[key] = rows
		}
	}

	slog.Debug("prefetched menu keys", "keys", len(out), "queries", len(queries))

	return out
}

func (p *Prefetcher) fallback(ctx context.Context, project, name string) ([]models.MenuItem, string) {
	if item, ok := p.matcher.BestMatch(ctx, project, name); ok {
		return []models.MenuItem{item}, metrics.PrefetchFallback
	}
	return []models.MenuItem{}, metrics.PrefetchMiss
}

// Lookup returns the rows for one dish, searching directly when the cache has
// no entry and writing the result back.
func (p *Prefetcher) Lookup(ctx context.Context, project, name string, cache Cache) []models.MenuItem {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	if rows, ok := cache.Lookup(name); ok {
		return rows
	}

	searchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	rows, err := p.search.Search(searchCtx, project, name, p.k)
	cancel()
	if err != nil {
		slog.Warn("menu search failed", "query", name, "err", err)
	}
	if err != nil || len(rows) == 0 {
		rows, _ = p.fallback(ctx, project, name)
	}

	if cache != nil {
		cache[aliases.Normalize(name)] = rows
	}

	return rows
}

// PromptItems renders the best row of each confirmed product for the menu
// loop of the system prompt, at most maxItems of them.
func (p *Prefetcher) PromptItems(ctx context.Context, project string, criteria []models.Criterion, maxItems int, cache Cache) []tplengine.Item {
	if maxItems < 1 {
		maxItems = DefaultMaxItems
	}

	var items []tplengine.Item
	for _, c := range criteria {
		for _, prod := range c.ConfirmedProducts {
			if len(items) >= maxItems {
				return items
			}
			rows := p.Lookup(ctx, project, prod.Name, cache)
			if len(rows) == 0 {
				continue
			}
			items = append(items, PromptItem(rows[0]))
		}
	}

	return items
}

func PromptItem(row models.MenuItem) tplengine.Item {
	title := cases.Title(language.Italian)

	return tplengine.Item{
		"name":        title.String(row.Name),
		"type":        title.String(row.Type),
		"description": row.Description,
		"ingredients": strings.Join(row.Ingredients, ", "),
		"price":       row.Price.StringFixed(2),
	}
}
