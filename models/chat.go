package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// UnmarshalJSON accepts non-string content (numbers, objects) and keeps its
// textual form, the way chat widgets sometimes send it.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Name    string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Role = raw.Role
	m.Name = raw.Name
	m.Content = rawText(raw.Content)

	return nil
}

// DeliveryState is the per-session conversational memory.
type DeliveryState struct {
	DeliveryType string `json:"delivery_type,omitempty"`
	DeliveryDay  string `json:"delivery_day,omitempty"`
	DeliveryHour string `json:"delivery_hour,omitempty"`
	Address      string `json:"address,omitempty"`
}

var DeliveryFields = []string{"delivery_type", "delivery_day", "delivery_hour", "address"}

func (d DeliveryState) Get(field string) string {
	switch field {
	case "delivery_type":
		return d.DeliveryType
	case "delivery_day":
		return d.DeliveryDay
	case "delivery_hour":
		return d.DeliveryHour
	case "address":
		return d.Address
	}
	return ""
}

func (d *DeliveryState) Set(field, value string) {
	switch field {
	case "delivery_type":
		d.DeliveryType = value
	case "delivery_day":
		d.DeliveryDay = value
	case "delivery_hour":
		d.DeliveryHour = value
	case "address":
		d.Address = value
	}
}

// Fields returns the non-empty fields keyed by their storage names.
func (d DeliveryState) Fields() map[string]string {
	out := make(map[string]string, len(DeliveryFields))
	for _, f := range DeliveryFields {
		if v := d.Get(f); v != "" {
			out[f] = v
		}
	}
	return out
}

func DeliveryStateFromFields(fields map[string]string) DeliveryState {
	var d DeliveryState
	for _, f := range DeliveryFields {
		d.Set(f, fields[f])
	}
	return d
}

// FlexString decodes strings, numbers and booleans into text; null becomes "".
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	*s = FlexString(rawText(data))
	return nil
}

// Product is a confirmed product as extracted from the conversation. Fields
// other than name and quantity are carried through untouched.
type Product struct {
	Name     string
	Quantity *int
	Extra    map[string]json.RawMessage
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*p = Product{}
	for k, v := range fields {
		switch k {
		case "name":
			p.Name = rawText(v)
		case "quantity":
			if q, ok := parseQuantity(v); ok {
				p.Quantity = &q
				continue
			}
			p.setExtra(k, v)
		default:
			p.setExtra(k, v)
		}
	}

	return nil
}

func (p *Product) setExtra(k string, v json.RawMessage) {
	if p.Extra == nil {
		p.Extra = make(map[string]json.RawMessage)
	}
	p.Extra[k] = v
}

func (p Product) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["name"] = p.Name
	if p.Quantity != nil {
		out["quantity"] = *p.Quantity
	}
	return json.Marshal(out)
}

func parseQuantity(v json.RawMessage) (int, bool) {
	text := strings.TrimSpace(rawText(v))
	if text == "" {
		return 0, false
	}
	if q, err := strconv.Atoi(text); err == nil {
		return q, true
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}

// Criterion is one unit of ordering intent extracted from a user message.
type Criterion struct {
	DeliveryType      FlexString `json:"delivery_type"`
	DeliveryDay       FlexString `json:"delivery_day"`
	DeliveryHour      FlexString `json:"delivery_hour"`
	Address           FlexString `json:"address"`
	ConfirmedProducts []Product  `json:"confirmed_products"`
}

func (c *Criterion) UnmarshalJSON(data []byte) error {
	var raw struct {
		DeliveryType      FlexString        `json:"delivery_type"`
		DeliveryDay       FlexString        `json:"delivery_day"`
		DeliveryHour      FlexString        `json:"delivery_hour"`
		Address           FlexString        `json:"address"`
		ConfirmedProducts []json.RawMessage `json:"confirmed_products"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Criterion{
		DeliveryType: raw.DeliveryType,
		DeliveryDay:  raw.DeliveryDay,
		DeliveryHour: raw.DeliveryHour,
		Address:      raw.Address,
	}
	for _, item := range raw.ConfirmedProducts {
		var p Product
		if err := json.Unmarshal(item, &p); err != nil {
			continue
		}
		c.ConfirmedProducts = append(c.ConfirmedProducts, p)
	}

	return nil
}

func (c Criterion) Delivery() DeliveryState {
	return DeliveryState{
		DeliveryType: string(c.DeliveryType),
		DeliveryDay:  string(c.DeliveryDay),
		DeliveryHour: string(c.DeliveryHour),
		Address:      string(c.Address),
	}
}

type ReviewQuery struct {
	Dish     string   `json:"dish"`
	Keywords []string `json:"keywords"`
	Intent   string   `json:"intent"`
}

func (q *ReviewQuery) UnmarshalJSON(data []byte) error {
	var raw struct {
		Dish     FlexString      `json:"dish"`
		Keywords json.RawMessage `json:"keywords"`
		Intent   FlexString      `json:"intent"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*q = ReviewQuery{Dish: string(raw.Dish), Intent: string(raw.Intent)}

	var keywords []FlexString
	if err := json.Unmarshal(raw.Keywords, &keywords); err == nil {
		for _, k := range keywords {
			if k != "" {
				q.Keywords = append(q.Keywords, string(k))
			}
		}
	} else if single := rawText(raw.Keywords); single != "" {
		q.Keywords = strings.Fields(single)
	}

	return nil
}

type ReviewQueryIntent struct {
	NeedsReviews  bool          `json:"needs_reviews"`
	ReviewQueries []ReviewQuery `json:"review_queries"`
}

type ReviewItem struct {
	Dish    string `json:"dish"`
	Rating  string `json:"voto"`
	Snippet string `json:"snippet"`
}

type SimilarProduct struct {
	Name        string   `json:"name"`
	Ingredients []string `json:"ingredients"`
	Price       float64  `json:"price"`
	Score       int      `json:"score"`
}

type OrderProduct struct {
	OriginalProduct Product          `json:"original_product"`
	SimilarProducts []SimilarProduct `json:"similar_products"`
}

type OrderEntry struct {
	DeliveryType string         `json:"delivery_type"`
	DeliveryDay  string         `json:"delivery_day"`
	DeliveryHour string         `json:"delivery_hour"`
	Address      string         `json:"address"`
	Products     []OrderProduct `json:"products"`
}

func rawText(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}

	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		switch t := v.(type) {
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
	}

	return string(data)
}
