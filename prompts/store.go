package prompts

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/store"
)

const cacheSize = 8

// Store reads the latest system prompt saved for a project.
type Store struct {
	registry *store.Registry
	cache    *lru.Cache[string, string]
}

func NewStore(registry *store.Registry) *Store {
	cache, _ := lru.New[string, string](cacheSize)

	return &Store{
		registry: registry,
		cache:    cache,
	}
}

// Get returns the newest prompt for project, or "" when there is none or the
// prompt table does not exist.
func (s *Store) Get(ctx context.Context, project string) string {
	if txt, ok := s.cache.Get(project); ok {
		return txt
	}

	name := strings.TrimSpace(project)
	if name == "" {
		name = store.DefaultProject
	}

	db, err := s.registry.DB(project)
	if err != nil {
		slog.Warn("failed to open project database", "project", project, "err", err)
		return ""
	}

	var rows []string
	err = db.WithContext(ctx).
		Model(&models.Prompt{}).
		Where("project = ?", name).
		Order("created_at DESC").
		Limit(1).
		Pluck("prompt_txt", &rows).Error
	if err != nil {
		if store.IsUndefinedTable(err) {
			slog.Warn("prompt table missing, using payload prompt", "database", s.registry.Database(project))
			s.cache.Add(project, "")
			return ""
		}
		slog.Error("failed to load project prompt", "project", project, "err", err)
		return ""
	}

	var txt string
	if len(rows) > 0 {
		txt = rows[0]
	}
	s.cache.Add(project, txt)

	return txt
}

// Purge forgets every cached prompt.
func (s *Store) Purge() {
	s.cache.Purge()
}
