package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imkonsowa/restaurant-chatbot/cart"
	"github.com/imkonsowa/restaurant-chatbot/chat"
	"github.com/imkonsowa/restaurant-chatbot/config"
	"github.com/imkonsowa/restaurant-chatbot/embedding"
	"github.com/imkonsowa/restaurant-chatbot/extract"
	"github.com/imkonsowa/restaurant-chatbot/llm"
	"github.com/imkonsowa/restaurant-chatbot/menu"
	"github.com/imkonsowa/restaurant-chatbot/order"
	"github.com/imkonsowa/restaurant-chatbot/prompts"
	"github.com/imkonsowa/restaurant-chatbot/reviews"
	"github.com/imkonsowa/restaurant-chatbot/session"
	"github.com/imkonsowa/restaurant-chatbot/store"
	"github.com/imkonsowa/restaurant-chatbot/workpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Agent struct {
	config      *config.Config
	handler     *Handler
	invalidator *Invalidator
	nats        *nats.Conn
}

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := store.NewRegistry(cfg.Postgres)
	defer registry.Close()

	embedder, err := embedding.NewOllama(cfg)
	if err != nil {
		log.Fatal(err)
	}

	generator, err := llm.NewOpenAI(cfg.LLM)
	if err != nil {
		log.Fatal(err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, session memory degraded", "addr", cfg.Redis.Addr, "err", err)
	}

	pool := workpool.New(ctx, cfg.Chat.Workers, cfg.Chat.QueueSize)
	defer pool.Stop()

	menuRepo := menu.NewRepository(registry, embedder)
	matcher := menu.NewMatcher(menuRepo, cfg.Menu.SnapshotTTL)
	reviewsRepo := reviews.NewRepository(registry, embedder)
	promptStore := prompts.NewStore(registry)
	carts := cart.NewStore(registry)

	service := chat.NewService(chat.Deps{
		Pool:      pool,
		Criteria:  extract.NewCriteria(cfg.Extraction, generator),
		Reviews:   extract.NewReviewQueries(cfg.Extraction, generator),
		Sessions:  session.NewStore(rdb, cfg.Redis.SessionTTL),
		Prompts:   promptStore,
		Carts:     carts,
		Menu:      menu.NewPrefetcher(menuRepo, matcher, pool, cfg.Chat.PrefetchK, cfg.Chat.SearchTimeout),
		Feedback:  reviews.NewFetcher(reviewsRepo, cfg.Chat.ReviewsPerQuery),
		Orders:    order.NewBuilder(menuRepo, cfg.Chat.SearchTimeout),
		Generator: generator,
	}, chat.Options{
		DefaultPromptFile: cfg.Chat.DefaultPromptFile,
		FallbackPrompt:    prompts.DefaultChatPrompt,
		MaxMenuItems:      cfg.Chat.MaxMenuItems,
		MaxTokens:         cfg.LLM.MaxTokens,
		GenerateTimeout:   cfg.LLM.Timeout,
		ReviewsTimeout:    cfg.Chat.ReviewsTimeout,
	})

	nc, err := nats.Connect(cfg.Nats.ConnStr())
	if err != nil {
		log.Fatal("failed to connect to nats: ", err)
	}
	defer nc.Close()

	agent := &Agent{
		config:      cfg,
		handler:     NewHandler(service, menuRepo, carts),
		invalidator: NewInvalidator(matcher, promptStore),
		nats:        nc,
	}

	if err := agent.Run(ctx); err != nil {
		log.Fatalf("failed to run the agent: %v", err)
	}
}

func (a *Agent) Router() *gin.Engine {
	r := gin.Default()

	a.handler.Register(r.Group(a.config.Chat.RoutePrefix))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Run serves HTTP and listens for cache invalidations until ctx is done or
// either fails.
func (a *Agent) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    a.config.Server.Address(),
		Handler: a.Router(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("agent listening", "addr", server.Addr, "prefix", a.config.Chat.RoutePrefix)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return a.invalidator.Listen(ctx, a.nats, a.config.Nats.MenuSubject, a.config.Nats.PromptsSubject)
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
