package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/nats-io/nats.go"
)

type MenuInvalidator interface {
	Invalidate(database string)
}

type PromptPurger interface {
	Purge()
}

// Invalidator drops cached menu snapshots and stored prompts when the change
// stream reports edits to their tables.
type Invalidator struct {
	menu    MenuInvalidator
	prompts PromptPurger
}

func NewInvalidator(menu MenuInvalidator, prompts PromptPurger) *Invalidator {
	return &Invalidator{
		menu:    menu,
		prompts: prompts,
	}
}

func (i *Invalidator) HandleMenuChange(data []byte) {
	var event models.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Warn("malformed menu change event", "err", err)
		return
	}

	i.menu.Invalidate(event.Database)
	slog.Debug("menu snapshot invalidated", "database", event.Database, "kind", event.Kind)
}

func (i *Invalidator) HandlePromptChange(_ []byte) {
	i.prompts.Purge()
	slog.Debug("prompt cache purged")
}

// Listen subscribes to the change subjects until ctx is done. Every agent
// replica receives every event.
func (i *Invalidator) Listen(ctx context.Context, nc *nats.Conn, menuSubject, promptsSubject string) error {
	handlers := map[string]func([]byte){
		menuSubject:    i.HandleMenuChange,
		promptsSubject: i.HandlePromptChange,
	}

	var subs []*nats.Subscription
	for subject, handle := range handlers {
		sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
			handle(m.Data)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	<-ctx.Done()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe from subject", "subject", sub.Subject, "err", err)
		}
	}

	return nil
}
