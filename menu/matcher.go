package menu

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/patrickmn/go-cache"
)

const DefaultSnapshotTTL = 5 * time.Minute

// Catalog lists the menu of a project.
type Catalog interface {
	List(ctx context.Context, project, dishType string) ([]models.MenuItem, error)
	Database(project string) string
}

// Matcher is the lightweight fallback used when semantic search has nothing:
// it compares a requested name with every dish of a cached menu snapshot.
type Matcher struct {
	catalog   Catalog
	snapshots *cache.Cache
	mu        sync.Mutex
}

func NewMatcher(catalog Catalog, ttl time.Duration) *Matcher {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}

	return &Matcher{
		catalog:   catalog,
		snapshots: cache.New(ttl, 2*ttl),
	}
}

func (m *Matcher) snapshot(ctx context.Context, project string) ([]models.MenuItem, error) {
	key := m.catalog.Database(project)
	if items, ok := m.snapshots.Get(key); ok {
		return items.([]models.MenuItem), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if items, ok := m.snapshots.Get(key); ok {
		return items.([]models.MenuItem), nil
	}

	items, err := m.catalog.List(ctx, project, "")
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		m.snapshots.SetDefault(key, items)
	}
	slog.Debug("refreshed menu snapshot", "database", key, "items", len(items))

	return items, nil
}

// Invalidate drops the snapshot of a database so the next match reloads it.
func (m *Matcher) Invalidate(database string) {
	m.snapshots.Delete(database)
}

// BestMatch returns the dish whose name shares at least one word with name
// and scores highest.
func (m *Matcher) BestMatch(ctx context.Context, project, name string) (models.MenuItem, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.MenuItem{}, false
	}

	items, err := m.snapshot(ctx, project)
	if err != nil {
		slog.Warn("failed to load menu snapshot", "project", project, "err", err)
		return models.MenuItem{}, false
	}

	var (
		best      models.MenuItem
		bestScore float64
	)
	for _, item := range items {
		candidate := strings.TrimSpace(item.Name)
		if candidate == "" {
			continue
		}
		if score := Score(name, candidate); score > bestScore {
			best, bestScore = item, score
		}
	}

	return best, bestScore > 0
}

// Score is the similarity ratio of a and b plus 0.1 per shared word; it is
// zero when the two names share no word.
func Score(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}

	words := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		words[w] = struct{}{}
	}
	overlap := 0
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(b) {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := words[w]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}

	return ratio(a, b) + 0.1*float64(overlap)
}

func ratio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
