package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/shopspring/decimal"
)

type MenuItem struct {
	ID          uint64          `gorm:"primaryKey" json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Ingredients pq.StringArray  `gorm:"type:text[]" json:"ingredients"`
	Description string          `json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2)" json:"price"`
	Embedding   pgvector.Vector `gorm:"type:vector(768)" json:"-"`
}

func (m *MenuItem) TableName() string {
	return "menu"
}

// Stringify is the text the indexer embeds for a dish.
func (m *MenuItem) Stringify() string {
	return strings.Join([]string{
		m.Name,
		m.Type,
		m.Description,
		strings.Join(m.Ingredients, ", "),
	}, " | ")
}

// Review is a customer review. Column names follow the Italian schema the
// restaurants already load their data into.
type Review struct {
	ID        string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Rating    int             `gorm:"column:voto" json:"voto"`
	Text      string          `gorm:"column:recensione" json:"recensione"`
	Dishes    string          `gorm:"column:piatti" json:"piatti"`
	Embedding pgvector.Vector `gorm:"type:vector(768)" json:"-"`
}

func (r *Review) TableName() string {
	return "recensioni"
}

func (r *Review) Stringify() string {
	return r.Text
}

// DishList decodes the serialized dish list stored with a review. Older rows
// were written with single quoted strings, so both forms are accepted.
func (r *Review) DishList() []string {
	raw := strings.TrimSpace(r.Dishes)
	if raw == "" {
		return nil
	}

	var dishes []string
	if err := json.Unmarshal([]byte(raw), &dishes); err == nil {
		return dishes
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &dishes); err == nil {
		return dishes
	}

	return []string{raw}
}

type Prompt struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Project   string    `json:"project"`
	PromptTxt string    `gorm:"column:prompt_txt" json:"prompt_txt"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Prompt) TableName() string {
	return "prompt"
}

type CartData struct {
	ID         uint64  `gorm:"primaryKey" json:"id"`
	SessionID  string  `gorm:"column:sessionid;not null;index:idx_cart_data_sessionid" json:"sessionid"`
	ActionType string  `gorm:"not null" json:"action_type"`
	CartItems  string  `gorm:"not null" json:"cart_items"`
	Total      float64 `gorm:"type:real;not null" json:"total"`
	Product    *string `json:"product"`
	Timestamp  string  `gorm:"not null" json:"timestamp"`
}

func (c *CartData) TableName() string {
	return "cart_data"
}

func (c *CartData) String() string {
	return fmt.Sprintf("CartData: id=%d session=%s action=%s total=%.2f", c.ID, c.SessionID, c.ActionType, c.Total)
}
