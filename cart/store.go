package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/store"
	"gorm.io/gorm"
)

// Store persists carts in the cart_data table of each project database.
type Store struct {
	registry *store.Registry

	mu    sync.Mutex
	ready map[string]bool
}

func NewStore(registry *store.Registry) *Store {
	return &Store{
		registry: registry,
		ready:    make(map[string]bool),
	}
}

// db returns the project database, creating the cart table the first time a
// database is used.
func (s *Store) db(ctx context.Context, project string) (*gorm.DB, error) {
	db, err := s.registry.DB(project)
	if err != nil {
		return nil, err
	}

	name := s.registry.Database(project)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready[name] {
		if err := db.WithContext(ctx).AutoMigrate(&models.CartData{}); err != nil {
			return nil, fmt.Errorf("ensure cart table in %s: %w", name, err)
		}
		s.ready[name] = true
	}

	return db.WithContext(ctx), nil
}

// Fetch returns the newest cart saved for the session, or NotFound().
func (s *Store) Fetch(ctx context.Context, project, sessionID string) (Cart, error) {
	db, err := s.db(ctx, project)
	if err != nil {
		return NotFound(), err
	}

	var rows []models.CartData
	err = db.Where("sessionid = ?", sessionID).
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return NotFound(), fmt.Errorf("fetch cart: %w", err)
	}
	if len(rows) == 0 {
		return NotFound(), nil
	}

	slog.Debug("cart fetched", "session", sessionID, "record_id", rows[0].ID)

	return fromRow(rows[0]), nil
}

// Upsert writes the cart of u.SessionID, updating the existing row when the
// session already has one. It returns the row id.
func (s *Store) Upsert(ctx context.Context, project string, u Upsert) (uint64, error) {
	db, err := s.db(ctx, project)
	if err != nil {
		return 0, err
	}

	row := models.CartData{
		SessionID:  u.SessionID,
		ActionType: u.ActionType,
		CartItems:  u.Items,
		Total:      u.Total.InexactFloat64(),
		Product:    u.Product,
		Timestamp:  time.Now().Format(timestampLayout),
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var existing models.CartData
		err := tx.Select("id").Where("sessionid = ?", u.SessionID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&row).Error
		case err != nil:
			return err
		}

		row.ID = existing.ID
		return tx.Model(&models.CartData{}).
			Where("sessionid = ?", u.SessionID).
			Updates(map[string]any{
				"action_type": row.ActionType,
				"cart_items":  row.CartItems,
				"total":       row.Total,
				"product":     row.Product,
				"timestamp":   row.Timestamp,
			}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("upsert cart: %w", err)
	}

	slog.Debug("cart synchronized", "session", u.SessionID, "record_id", row.ID)

	return row.ID, nil
}
