package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/store"
	"github.com/imkonsowa/restaurant-chatbot/tplengine"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func payload(t *testing.T, raw string) map[string]json.RawMessage {
	t.Helper()
	var p map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestParseUpsert(t *testing.T) {
	u, err := ParseUpsert(payload(t, `{"type":"add","cart":[{"name":"gyoza","quantity":2}],"total":"12.50","sessionId":"abc","product":{"name":"gyoza"}}`))
	require.NoError(t, err)
	require.Equal(t, "abc", u.SessionID)
	require.Equal(t, "add", u.ActionType)
	require.JSONEq(t, `[{"name":"gyoza","quantity":2}]`, u.Items)
	require.Equal(t, "12.5", u.Total.String())
	require.NotNil(t, u.Product)
	require.JSONEq(t, `{"name":"gyoza"}`, *u.Product)
}

func TestParseUpsert_EmptyCartAndProduct(t *testing.T) {
	u, err := ParseUpsert(payload(t, `{"type":"remove","cart":null,"total":0,"sessionid":"abc","product":null}`))
	require.NoError(t, err)
	require.Equal(t, "[]", u.Items)
	require.Nil(t, u.Product)
	require.True(t, u.Total.IsZero())
}

func TestParseUpsert_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "missing fields", body: `{"type":"add","sessionid":"abc"}`, want: "Missing required fields: cart, total"},
		{name: "missing session", body: `{"type":"add","cart":[],"total":1}`, want: "Session ID not provided"},
		{name: "blank session", body: `{"type":"add","cart":[],"total":1,"sessionid":"  "}`, want: "Session ID not provided"},
		{name: "bad total", body: `{"type":"add","cart":[],"total":"lots","sessionid":"abc"}`, want: `Invalid total: "lots"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUpsert(payload(t, tt.body))
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.want, err.Error())
		})
	}
}

func TestFromRow(t *testing.T) {
	product := `{"name":"mochi"}`
	c := fromRow(models.CartData{
		ID:         7,
		ActionType: "add",
		CartItems:  `[{"name":"mochi yuzu","quantity":1}, "legacy"]`,
		Total:      float64(float32(12.3)),
		Product:    &product,
		Timestamp:  "2026-10-15 20:00:00",
	})

	require.True(t, c.Found())
	require.Equal(t, uint64(7), c.RecordID)
	require.Equal(t, "12.3", c.Total)
	require.Len(t, c.Items, 2)
	require.Equal(t, map[string]any{"name": "mochi"}, c.LastProduct)
	require.Equal(t, []tplengine.Item{{"name": "mochi yuzu", "quantity": float64(1)}}, c.PromptItems())
}

func TestFromRow_MalformedItems(t *testing.T) {
	c := fromRow(models.CartData{CartItems: "{oops"})
	require.NotNil(t, c.Items)
	require.Empty(t, c.Items)
	require.Nil(t, c.PromptItems())
}

func TestNotFound(t *testing.T) {
	raw, err := json.Marshal(NotFound())
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"not_found","message":"No cart data found for this session","cart":[],"total":"0.00"}`, string(raw))
}

func TestStore_DatabaseUnavailable(t *testing.T) {
	registry := store.NewRegistryWithOpener("main", func(string) (*gorm.DB, error) {
		return nil, errors.New("connection refused")
	})
	s := NewStore(registry)

	c, err := s.Fetch(context.Background(), "", "abc")
	require.Error(t, err)
	require.False(t, c.Found())

	_, err = s.Upsert(context.Background(), "", Upsert{SessionID: "abc"})
	require.Error(t, err)
}
