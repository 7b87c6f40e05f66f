package main

import (
	"github.com/imkonsowa/restaurant-chatbot/models"
)

const (
	MessageTypeResponse = "response"
	MessageTypeError    = "error"
)

// WebSocketsMessage is one frame written on the chat websocket.
type WebSocketsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MenuEntry is a menu row as served by GET /menu, with a plain numeric price.
type MenuEntry struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Ingredients []string `json:"ingredients"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
}

func ToMenuEntries(items []models.MenuItem) []MenuEntry {
	entries := make([]MenuEntry, len(items))
	for i, item := range items {
		ingredients := []string(item.Ingredients)
		if ingredients == nil {
			ingredients = []string{}
		}

		entries[i] = MenuEntry{
			ID:          item.ID,
			Name:        item.Name,
			Type:        item.Type,
			Ingredients: ingredients,
			Description: item.Description,
			Price:       item.Price.InexactFloat64(),
		}
	}

	return entries
}

type CartSyncedResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	RecordID uint64 `json:"record_id"`
}
