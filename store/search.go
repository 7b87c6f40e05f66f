package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// ErrNoEmbedding means the query could not be embedded, so no semantic
// ranking is available.
var ErrNoEmbedding = errors.New("no embedding for query")

type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Search describes a cosine similarity lookup over a table with an
// "embedding" vector column. ExtraScore is an SQL expression added to the
// similarity to form the ranking score.
type Search struct {
	Table      string
	Fields     string
	ExtraScore string
}

// SearchTable scans the k best rows for query into dest.
func SearchTable(ctx context.Context, db *gorm.DB, embedder Embedder, s Search, query string, k int, dest any) error {
	vec := embedder.Embed(ctx, query)
	if len(vec) == 0 {
		return ErrNoEmbedding
	}
	v := pgvector.NewVector(vec)

	sim := "(1 - (embedding <=> ?))"
	score := sim
	if s.ExtraScore != "" {
		score = fmt.Sprintf("(%s + %s)", sim, s.ExtraScore)
	}

	fields := s.Fields
	if fields == "" {
		fields = "*"
	}

	err := db.WithContext(ctx).
		Table(s.Table).
		Select(fmt.Sprintf("%s, %s AS cos_sim, %s AS score", fields, sim, score), v, v).
		Order("score DESC").
		Limit(k).
		Scan(dest).Error
	if err != nil {
		return fmt.Errorf("search %s: %w", s.Table, err)
	}

	return nil
}

// IsUndefinedTable reports whether err is Postgres' "relation does not exist".
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
