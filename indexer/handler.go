package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/store"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

var ErrEmptyEmbedding = errors.New("embedding provider returned no vector")

type MenuRows interface {
	Get(ctx context.Context, project string, id uint64) (*models.MenuItem, error)
	UpdateEmbedding(ctx context.Context, project string, id uint64, vector pgvector.Vector) error
}

type ReviewRows interface {
	Get(ctx context.Context, project, id string) (*models.Review, error)
	UpdateEmbedding(ctx context.Context, project, id string, vector pgvector.Vector) error
}

type Handler struct {
	embedder store.Embedder
	menu     MenuRows
	reviews  ReviewRows
}

func NewHandler(embedder store.Embedder, menu MenuRows, reviews ReviewRows) *Handler {
	return &Handler{
		embedder: embedder,
		menu:     menu,
		reviews:  reviews,
	}
}

func (h *Handler) vector(ctx context.Context, text string) (pgvector.Vector, error) {
	vec := h.embedder.Embed(ctx, text)
	if len(vec) == 0 {
		return pgvector.Vector{}, ErrEmptyEmbedding
	}

	return pgvector.NewVector(vec), nil
}

// decode returns the event, or false when there is nothing to index.
func decode(msg []byte) (models.ChangeEvent, bool, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return event, false, fmt.Errorf("decode change event: %w", err)
	}
	if event.Kind == models.KindDelete || event.ID == "" {
		return event, false, nil
	}

	return event, true, nil
}

// HandleMenuCDCMessage embeds a changed menu row and stores its vector.
func (h *Handler) HandleMenuCDCMessage(ctx context.Context, msg []byte) error {
	event, ok, err := decode(msg)
	if err != nil || !ok {
		return err
	}

	id, err := event.NumericID()
	if err != nil {
		return fmt.Errorf("menu row id %q: %w", event.ID, err)
	}

	item, err := h.menu.Get(ctx, event.Database, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Warn("menu row gone before indexing", "id", id, "database", event.Database)
		return nil
	}
	if err != nil {
		return err
	}

	vector, err := h.vector(ctx, item.Stringify())
	if err != nil {
		return fmt.Errorf("embed menu row %d: %w", id, err)
	}

	if err := h.menu.UpdateEmbedding(ctx, event.Database, id, vector); err != nil {
		return fmt.Errorf("update menu row %d: %w", id, err)
	}

	slog.Debug("menu row indexed", "id", id, "database", event.Database)
	return nil
}

func (h *Handler) HandleReviewCDCMessage(ctx context.Context, msg []byte) error {
	event, ok, err := decode(msg)
	if err != nil || !ok {
		return err
	}

	id := string(event.ID)
	review, err := h.reviews.Get(ctx, event.Database, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Warn("review gone before indexing", "id", id, "database", event.Database)
		return nil
	}
	if err != nil {
		return err
	}

	vector, err := h.vector(ctx, review.Stringify())
	if err != nil {
		return fmt.Errorf("embed review %s: %w", id, err)
	}

	if err := h.reviews.UpdateEmbedding(ctx, event.Database, id, vector); err != nil {
		return fmt.Errorf("update review %s: %w", id, err)
	}

	slog.Debug("review indexed", "id", id, "database", event.Database)
	return nil
}
