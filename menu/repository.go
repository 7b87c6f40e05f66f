package menu

import (
	"context"
	"fmt"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/store"
	"github.com/pgvector/pgvector-go"
)

const fields = "id, name, type, ingredients, description, price"

var menuSearch = store.Search{
	Table:  "menu",
	Fields: fields,
}

// Repository reads the menu table of a project's database.
type Repository struct {
	registry *store.Registry
	embedder store.Embedder
}

func NewRepository(registry *store.Registry, embedder store.Embedder) *Repository {
	return &Repository{
		registry: registry,
		embedder: embedder,
	}
}

func (r *Repository) Database(project string) string {
	return r.registry.Database(project)
}

// Search returns the k dishes closest to query.
func (r *Repository) Search(ctx context.Context, project, query string, k int) ([]models.MenuItem, error) {
	db, err := r.registry.DB(project)
	if err != nil {
		return nil, err
	}

	var items []models.MenuItem
	if err := store.SearchTable(ctx, db, r.embedder, menuSearch, query, k, &items); err != nil {
		return nil, err
	}

	return items, nil
}

// List returns the whole menu ordered by id, optionally only one dish type.
func (r *Repository) List(ctx context.Context, project, dishType string) ([]models.MenuItem, error) {
	db, err := r.registry.DB(project)
	if err != nil {
		return nil, err
	}

	q := db.WithContext(ctx).Model(&models.MenuItem{}).Select(fields)
	if dishType != "" {
		q = q.Where("LOWER(type) = LOWER(?)", dishType)
	}

	var items []models.MenuItem
	if err := q.Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}

	return items, nil
}

// Ingredients returns every distinct ingredient, sorted case-insensitively.
func (r *Repository) Ingredients(ctx context.Context, project string) ([]string, error) {
	db, err := r.registry.DB(project)
	if err != nil {
		return nil, err
	}

	var out []string
	err = db.WithContext(ctx).Raw(`
		SELECT ing
		FROM (
			SELECT DISTINCT UNNEST(ingredients) AS ing
			FROM menu
			WHERE ingredients IS NOT NULL
		) sub
		ORDER BY LOWER(ing)`).Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}

	return out, nil
}

func (r *Repository) Get(ctx context.Context, project string, id uint64) (*models.MenuItem, error) {
	db, err := r.registry.DB(project)
	if err != nil {
		return nil, err
	}

	var item models.MenuItem
	if err := db.WithContext(ctx).Select(fields).First(&item, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get menu item %d: %w", id, err)
	}

	return &item, nil
}

func (r *Repository) UpdateEmbedding(ctx context.Context, project string, id uint64, vector pgvector.Vector) error {
	db, err := r.registry.DB(project)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Model(&models.MenuItem{}).Where("id = ?", id).Update("embedding", vector).Error
}

// Unembedded lists the ids of dishes that have no embedding yet.
func (r *Repository) Unembedded(ctx context.Context, project string) ([]uint64, error) {
	db, err := r.registry.DB(project)
	if err != nil {
		return nil, err
	}

	var ids []uint64
	if err := db.WithContext(ctx).Model(&models.MenuItem{}).Where("embedding IS NULL").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list unembedded menu items: %w", err)
	}

	return ids, nil
}
