package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/tplengine"
	"github.com/shopspring/decimal"
)

const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"

	timestampLayout = "2006-01-02 15:04:05"
)

// Cart is the latest synchronized cart of a session.
type Cart struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	RecordID    uint64 `json:"record_id,omitempty"`
	ActionType  string `json:"action_type,omitempty"`
	Items       []any  `json:"cart"`
	Total       string `json:"total"`
	LastProduct any    `json:"last_product,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

func NotFound() Cart {
	return Cart{
		Status:  StatusNotFound,
		Message: "No cart data found for this session",
		Items:   []any{},
		Total:   "0.00",
	}
}

func (c Cart) Found() bool {
	return c.Status == StatusSuccess
}

// PromptItems returns the cart lines that are objects, for the products_cart
// loop of the system prompt.
func (c Cart) PromptItems() []tplengine.Item {
	var items []tplengine.Item
	for _, it := range c.Items {
		if m, ok := it.(map[string]any); ok {
			items = append(items, tplengine.Item(m))
		}
	}
	return items
}

func fromRow(row models.CartData) Cart {
	items := []any{}
	if err := json.Unmarshal([]byte(row.CartItems), &items); err != nil || items == nil {
		items = []any{}
	}

	var product any
	if row.Product != nil {
		if err := json.Unmarshal([]byte(*row.Product), &product); err != nil {
			product = nil
		}
	}

	return Cart{
		Status:      StatusSuccess,
		RecordID:    row.ID,
		ActionType:  row.ActionType,
		Items:       items,
		Total:       FormatTotal(row.Total),
		LastProduct: product,
		Timestamp:   row.Timestamp,
	}
}

// FormatTotal renders a stored total without float noise: the column is a
// single precision real.
func FormatTotal(total float64) string {
	return decimal.NewFromFloat32(float32(total)).String()
}

// ValidationError is a cart payload problem reported back to the caller.
type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

// Upsert is a validated cart synchronization request.
type Upsert struct {
	SessionID  string
	ActionType string
	Items      string
	Total      decimal.Decimal
	Product    *string
}

// ParseUpsert validates a raw cart payload. The session may come as sessionid
// or sessionId.
func ParseUpsert(payload map[string]json.RawMessage) (Upsert, error) {
	var missing []string
	for _, field := range []string{"type", "cart", "total"} {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Upsert{}, ValidationError("Missing required fields: " + strings.Join(missing, ", "))
	}

	session := text(payload["sessionid"])
	if session == "" {
		session = text(payload["sessionId"])
	}
	if session == "" {
		return Upsert{}, ValidationError("Session ID not provided")
	}

	total, err := decimal.NewFromString(text(payload["total"]))
	if err != nil {
		return Upsert{}, ValidationError(fmt.Sprintf("Invalid total: %s", bytes.TrimSpace(payload["total"])))
	}

	u := Upsert{
		SessionID:  session,
		ActionType: text(payload["type"]),
		Items:      "[]",
		Total:      total,
	}
	if raw := bytes.TrimSpace(payload["cart"]); !empty(raw) {
		u.Items = string(raw)
	}
	if raw := bytes.TrimSpace(payload["product"]); !empty(raw) {
		p := string(raw)
		u.Product = &p
	}

	return u, nil
}

func text(raw json.RawMessage) string {
	var s models.FlexString
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(string(s))
}

// empty reports JSON values a cart treats as absent.
func empty(raw []byte) bool {
	switch string(raw) {
	case "", "null", "[]", "{}", `""`, "false", "0":
		return true
	}
	return false
}
