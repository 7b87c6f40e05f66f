package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/imkonsowa/restaurant-chatbot/config"
	"github.com/imkonsowa/restaurant-chatbot/embedding"
	"github.com/imkonsowa/restaurant-chatbot/menu"
	"github.com/imkonsowa/restaurant-chatbot/reviews"
	"github.com/imkonsowa/restaurant-chatbot/store"
	"github.com/imkonsowa/restaurant-chatbot/workpool"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, err := NewNats(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer nc.Close()

	embedder, err := embedding.NewOllama(cfg)
	if err != nil {
		log.Fatal(err)
	}

	registry := store.NewRegistry(cfg.Postgres)
	defer registry.Close()

	handler := NewHandler(
		embedder,
		menu.NewRepository(registry, embedder),
		reviews.NewRepository(registry, embedder),
	)

	subjectHandlers := map[string]func(ctx context.Context, msg []byte) error{
		cfg.Nats.MenuSubject:    handler.HandleMenuCDCMessage,
		cfg.Nats.ReviewsSubject: handler.HandleReviewCDCMessage,
	}

	slog.Info("starting indexer", "workers", cfg.Embedder.Workers, "queueSize", cfg.Embedder.QueueSize)
	pool := workpool.New(ctx, cfg.Embedder.Workers, cfg.Embedder.QueueSize)
	defer pool.Stop()

	worker, workerCtx := errgroup.WithContext(ctx)
	for subject, h := range subjectHandlers {
		worker.Go(func() error {
			return nc.Subscribe(workerCtx, subject, Dispatch(workerCtx, pool, subject, h))
		})
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- worker.Wait()
	}()

	select {
	case <-shutdown:
		slog.Info("shutting down")
		cancel()
		<-errChan
	case err := <-errChan:
		slog.Error("shutting down due to error", "err", err)
		cancel()
	}
}

// Dispatch runs h for every message on the pool and acknowledges the message
// once h succeeds. Failed messages are redelivered.
func Dispatch(ctx context.Context, pool *workpool.Pool, subject string, h func(ctx context.Context, msg []byte) error) func(m *nats.Msg) {
	return func(m *nats.Msg) {
		err := pool.Go(ctx, func(ctx context.Context) {
			if err := h(ctx, m.Data); err != nil {
				slog.Error("failed to index change", "subject", subject, "err", err)
				nak(m)
				return
			}
			if err := m.Ack(); err != nil {
				slog.Warn("failed to ack message", "subject", subject, "err", err)
			}
		})
		if err != nil {
			nak(m)
		}
	}
}

func nak(m *nats.Msg) {
	if err := m.Nak(); err != nil {
		slog.Warn("failed to nak message", "subject", m.Subject, "err", err)
	}
}
