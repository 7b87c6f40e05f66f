package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, 2*time.Hour), mr
}

func TestStore_GetUnknownSession(t *testing.T) {
	s, _ := newTestStore(t)

	state, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, models.DeliveryState{}, state)
}

func TestStore_SaveMergesFields(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", models.DeliveryState{DeliveryType: "domicilio", Address: "Via Roma 15"}))
	require.NoError(t, s.Save(ctx, "abc", models.DeliveryState{DeliveryHour: "20:00"}))

	state, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, models.DeliveryState{DeliveryType: "domicilio", DeliveryHour: "20:00", Address: "Via Roma 15"}, state)
	require.Equal(t, "domicilio", mr.HGet("convo:abc", "delivery_type"))
}

func TestStore_SaveRenewsTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", models.DeliveryState{DeliveryType: "asporto"}))
	mr.FastForward(90 * time.Minute)

	// an empty patch still slides the window
	require.NoError(t, s.Save(ctx, "abc", models.DeliveryState{}))
	require.Equal(t, 2*time.Hour, mr.TTL("convo:abc"))

	mr.FastForward(90 * time.Minute)
	state, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "asporto", state.DeliveryType)
}

func TestStore_Expires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", models.DeliveryState{DeliveryType: "asporto"}))
	mr.FastForward(2*time.Hour + time.Second)

	state, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, models.DeliveryState{}, state)
}

func TestStore_RedisDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "abc")
	require.Error(t, err)
}

func TestIsSentinel(t *testing.T) {
	for _, v := range []string{"", " ", "-", "n/a", "N/A", "No data", " no data "} {
		require.True(t, IsSentinel(v), "%q", v)
	}
	for _, v := range []string{"domicilio", "0", "none"} {
		require.False(t, IsSentinel(v), "%q", v)
	}
}

func TestMerge_NeverRegressesToSentinel(t *testing.T) {
	current := models.DeliveryState{
		DeliveryType: "domicilio",
		DeliveryDay:  "2025-05-16",
		DeliveryHour: "20:00",
		Address:      "Via Roma 15",
	}

	merged := Merge(current, models.DeliveryState{
		DeliveryType: "n/a",
		DeliveryDay:  "",
		DeliveryHour: "-",
		Address:      "No data",
	})
	require.Equal(t, current, merged)
}

func TestMerge_OverwritesWithTrimmedValues(t *testing.T) {
	merged := Merge(
		models.DeliveryState{DeliveryType: "asporto", Address: "Via Po 1"},
		models.DeliveryState{DeliveryType: " domicilio ", DeliveryHour: "21:00"},
	)
	require.Equal(t, models.DeliveryState{DeliveryType: "domicilio", DeliveryHour: "21:00", Address: "Via Po 1"}, merged)
}
