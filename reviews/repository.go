package reviews

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/store"
	"github.com/pgvector/pgvector-go"
)

// Reviews rank by similarity plus up to 0.3 for a five star rating.
var reviewSearch = store.Search{
	Table:      "recensioni",
	Fields:     "id, voto, recensione, piatti",
	ExtraScore: "(voto / 5.0) * 0.3",
}

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

// Search returns the k best reviews for query. Databases without a reviews
// table yield no rows.
func (r *Repository) Search(ctx context.Context, project, query string, k int) ([]models.Review, error) {
	db, err := r.registry.DB(project)
	if err != nil {
		return nil, err
	}

	var rows []models.Review
	if err := store.SearchTable(ctx, db, r.embedder, reviewSearch, query, k, &rows); err != nil {
		if store.IsUndefinedTable(err) {
			slog.Warn("reviews table missing", "database", r.registry.Database(project))
			return nil, nil
		}
		return nil, err
	}

	return rows, nil
}

func (r *Repository) Get(ctx context.Context, project, id string) (*models.Review, error) {
	db, err := r.registry.DB(project)
	if err != nil {
		return nil, err
	}

	var review models.Review
	if err := db.WithContext(ctx).Select(reviewSearch.Fields).First(&review, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}

	return &review, nil
}

func (r *Repository) UpdateEmbedding(ctx context.Context, project, id string, vector pgvector.Vector) error {
	db, err := r.registry.DB(project)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", id).Update("embedding", vector).Error
}

func (r *Repository) Unembedded(ctx context.Context, project string) ([]string, error) {
	db, err := r.registry.DB(project)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := db.WithContext(ctx).Model(&models.Review{}).Where("embedding IS NULL").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list unembedded reviews: %w", err)
	}

	return ids, nil
}
