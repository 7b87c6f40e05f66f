package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "convo:"
	DefaultTTL = 2 * time.Hour
)

// Store keeps the delivery preferences of each conversation in a Redis hash
// that expires after ttl of inactivity.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

func Key(sessionID string) string {
	return keyPrefix + sessionID
}

// Get returns the stored state, empty when the session is unknown or expired.
func (s *Store) Get(ctx context.Context, sessionID string) (models.DeliveryState, error) {
	fields, err := s.rdb.HGetAll(ctx, Key(sessionID)).Result()
	if err != nil {
		return models.DeliveryState{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	return models.DeliveryStateFromFields(fields), nil
}

// Save merges the non-empty fields of patch into the stored record and
// renews the expiry even when patch is empty.
func (s *Store) Save(ctx context.Context, sessionID string, patch models.DeliveryState) error {
	key := Key(sessionID)

	values := make(map[string]interface{})
	for k, v := range patch.Fields() {
		values[k] = v
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
		}
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}

	return nil
}

var sentinels = map[string]struct{}{
	"":        {},
	"-":       {},
	"n/a":     {},
	"no data": {},
}

// IsSentinel reports whether v is one of the "no data" markers the extractors
// emit for fields they could not fill.
func IsSentinel(v string) bool {
	_, ok := sentinels[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Merge overwrites the fields of current with every non-sentinel value of
// extracted and returns the full record.
func Merge(current, extracted models.DeliveryState) models.DeliveryState {
	merged := current
	for _, f := range models.DeliveryFields {
		v := strings.TrimSpace(extracted.Get(f))
		if IsSentinel(v) {
			continue
		}
		merged.Set(f, v)
	}

	return merged
}
