package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"strconv"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/config"
	"github.com/imkonsowa/restaurant-chatbot/menu"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/reviews"
	"github.com/imkonsowa/restaurant-chatbot/store"
	"github.com/nats-io/nats.go"
)

func main() {
	cfg := config.LoadConfig()
	ctx := context.Background()

	registry := store.NewRegistry(cfg.Postgres)
	defer registry.Close()

	nc, err := nats.Connect(cfg.Nats.ConnStr())
	if err != nil {
		log.Fatal("failed to connect to nats:", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatal("failed to get jetstream context:", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Nats.Stream,
		Subjects:  cfg.Nats.Subjects(),
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Hour * 24 * 7,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		log.Fatal("failed to create stream:", err)
	}

	database := registry.Database(store.DefaultProject)

	menuIDs, err := menu.NewRepository(registry, nil).Unembedded(ctx, store.DefaultProject)
	if err != nil {
		log.Fatal("failed to query unembedded menu items:", err)
	}
	slog.Info("found unembedded menu items", "count", len(menuIDs))

	menuPublished := 0
	for _, id := range menuIDs {
		if publish(js, cfg.Nats.MenuSubject, "menu", strconv.FormatUint(id, 10), database) {
			menuPublished++
		}
	}

	reviewIDs, err := reviews.NewRepository(registry, nil).Unembedded(ctx, store.DefaultProject)
	if err != nil {
		log.Fatal("failed to query unembedded reviews:", err)
	}
	slog.Info("found unembedded reviews", "count", len(reviewIDs))

	reviewsPublished := 0
	for _, id := range reviewIDs {
		if publish(js, cfg.Nats.ReviewsSubject, "recensioni", id, database) {
			reviewsPublished++
		}
	}

	slog.Info("backfill complete", "database", database, "menu", menuPublished, "reviews", reviewsPublished)
}

func publish(js nats.JetStreamContext, subject, table, id, database string) bool {
	data, err := json.Marshal(models.ChangeEvent{
		Table:    table,
		Kind:     models.KindInsert,
		ID:       models.FlexString(id),
		Database: database,
	})
	if err != nil {
		slog.Error("failed to marshal message", "err", err)
		return false
	}

	if _, err := js.Publish(subject, data); err != nil {
		slog.Error("failed to publish change", "table", table, "id", id, "err", err)
		return false
	}

	slog.Debug("published row for embedding", "table", table, "id", id)
	return true
}
