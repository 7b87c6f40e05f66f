package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/imkonsowa/restaurant-chatbot/cart"
	"github.com/imkonsowa/restaurant-chatbot/llm"
	"github.com/imkonsowa/restaurant-chatbot/menu"
	"github.com/imkonsowa/restaurant-chatbot/metrics"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/prompts"
	"github.com/imkonsowa/restaurant-chatbot/reviews"
	"github.com/imkonsowa/restaurant-chatbot/session"
	"github.com/imkonsowa/restaurant-chatbot/tplengine"
	"github.com/imkonsowa/restaurant-chatbot/workpool"
)

const (
	DefaultMaxTokens       = 8192
	DefaultGenerateTimeout = 180 * time.Second
	DefaultReviewsTimeout  = 60 * time.Second

	createdAtLayout = "2006-01-02T15:04:05.000000"
)

type CriteriaExtractor interface {
	Extract(ctx context.Context, messages []models.Message, sessionID string) ([]models.Criterion, error)
}

type ReviewQueryExtractor interface {
	Extract(ctx context.Context, messages []models.Message, sessionID string) (models.ReviewQueryIntent, error)
}

type SessionStore interface {
	Get(ctx context.Context, sessionID string) (models.DeliveryState, error)
	Save(ctx context.Context, sessionID string, patch models.DeliveryState) error
}

type PromptSource interface {
	Get(ctx context.Context, project string) string
}

type CartSource interface {
	Fetch(ctx context.Context, project, sessionID string) (cart.Cart, error)
}

type MenuRetriever interface {
	Prefetch(ctx context.Context, project string, criteria []models.Criterion) menu.Cache
	PromptItems(ctx context.Context, project string, criteria []models.Criterion, maxItems int, cache menu.Cache) []tplengine.Item
}

type ReviewFetcher interface {
	Fetch(ctx context.Context, project string, queries []models.ReviewQuery) []models.ReviewItem
}

type OrderBuilder interface {
	Build(ctx context.Context, project string, criteria []models.Criterion, cache menu.Cache) ([]models.OrderEntry, string)
}

type Generator interface {
	Complete(ctx context.Context, messages []models.Message, opts llm.Options) (llm.Completion, error)
	Model() string
}

// Deps are the collaborators of a Service.
type Deps struct {
	Pool      *workpool.Pool
	Criteria  CriteriaExtractor
	Reviews   ReviewQueryExtractor
	Sessions  SessionStore
	Prompts   PromptSource
	Carts     CartSource
	Menu      MenuRetriever
	Feedback  ReviewFetcher
	Orders    OrderBuilder
	Generator Generator
}

type Options struct {
	// DefaultPromptFile is read on every turn that has neither a project
	// prompt nor a payload prompt.
	DefaultPromptFile string
	// FallbackPrompt is used when DefaultPromptFile cannot be read. Empty
	// means such turns fail with ERROR_MISSING_INPUT.
	FallbackPrompt  string
	MaxMenuItems    int
	MaxTokens       int
	GenerateTimeout time.Duration
	ReviewsTimeout  time.Duration
}

type Response struct {
	Model     string              `json:"model"`
	CreatedAt string              `json:"created_at"`
	Message   models.Message      `json:"message"`
	Done      bool                `json:"done"`
	Order     []models.OrderEntry `json:"order"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// Service answers chat turns.
type Service struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	if opts.MaxMenuItems < 1 {
		opts.MaxMenuItems = menu.DefaultMaxItems
	}
	if opts.MaxTokens < 1 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = DefaultGenerateTimeout
	}
	if opts.ReviewsTimeout <= 0 {
		opts.ReviewsTimeout = DefaultReviewsTimeout
	}

	return &Service{
		deps: deps,
		opts: opts,
		now:  time.Now,
	}
}

// HandleTurn runs one turn to completion. Failures that end the turn are
// returned as *Error; extraction and retrieval problems only degrade the
// reply.
func (s *Service) HandleTurn(ctx context.Context, req *Request) (*Response, error) {
	t := &turn{
		id:  uuid.NewString(),
		req: req,
	}
	t.log = slog.With("turn_id", t.id, "session", req.SessionID, "project", req.Project)

	err := s.run(ctx, t)

	outcome := metrics.OutcomeOK
	var chatErr *Error
	if errors.As(err, &chatErr) {
		switch chatErr.Code {
		case ErrorMissingInput:
			outcome = metrics.OutcomeMissingInput
		case ErrorModel:
			outcome = metrics.OutcomeModelError
		}
	}
	metrics.Turns.WithLabelValues(outcome).Inc()

	if err != nil {
		t.log.Error("chat turn failed", "err", err)
		return nil, err
	}

	return t.response, nil
}

// resolvePrompt picks the system prompt template: the project prompt, then
// the payload prompt, then the bundled file.
func (s *Service) resolvePrompt(ctx context.Context, t *turn) string {
	if s.deps.Prompts != nil {
		if p := s.deps.Prompts.Get(ctx, t.req.Project); p != "" {
			return p
		}
	}
	if t.req.Prompts != "" {
		return t.req.Prompts
	}

	if s.opts.DefaultPromptFile != "" {
		p, err := prompts.LoadDefault(s.opts.DefaultPromptFile)
		if err == nil && p != "" {
			t.log.Info("prompt loaded from file", "path", s.opts.DefaultPromptFile)
			return p
		}
		t.log.Error("default prompt file unavailable", "path", s.opts.DefaultPromptFile, "err", err)
	}

	return s.opts.FallbackPrompt
}

func (s *Service) normalize(ctx context.Context, t *turn) (string, error) {
	t.prompt = s.resolvePrompt(ctx, t)
	if t.prompt == "" || !t.req.HasHistory() {
		return evMissingInput, &Error{Code: ErrorMissingInput, Reason: reasonMissingInput}
	}

	t.history = t.req.History()
	if len(t.history) == 0 {
		return evMissingInput, &Error{Code: ErrorMissingInput, Reason: reasonEmptyHistory}
	}

	return evExtract, nil
}

func (s *Service) extract(ctx context.Context, t *turn) (string, error) {
	sid := t.req.SessionID
	last := []models.Message{{Role: models.RoleUser, Content: LastUserMessage(t.history)}}

	criteriaF := workpool.Submit(s.deps.Pool, ctx, func(ctx context.Context) ([]models.Criterion, error) {
		return s.deps.Criteria.Extract(ctx, last, sid)
	})
	intentF := workpool.Submit(s.deps.Pool, ctx, func(ctx context.Context) (models.ReviewQueryIntent, error) {
		return s.deps.Reviews.Extract(ctx, last, sid)
	})

	t.cart = cart.NotFound()
	if s.deps.Carts != nil && sid != "" {
		c, err := s.deps.Carts.Fetch(ctx, t.req.Project, sid)
		if err != nil {
			t.log.Warn("cart unavailable", "err", err)
		} else {
			t.cart = c
		}
	}

	if sid != "" {
		state, err := s.deps.Sessions.Get(ctx, sid)
		if err != nil {
			t.log.Warn("session state unavailable", "err", err)
		}
		t.state = state
	}

	criteria, err := criteriaF.Wait()
	if err != nil {
		t.log.Warn("criteria extraction failed", "err", err)
		t.warn("criteria extraction unavailable")
	}
	if criteria == nil {
		criteria = []models.Criterion{}
	}
	t.criteria = criteria

	intent, err := intentF.Wait()
	if err != nil {
		t.log.Warn("review query extraction failed", "err", err)
		t.warn("review query extraction unavailable")
	}
	t.intent = intent

	t.log.Debug("extraction done", "criteria", len(t.criteria), "needs_reviews", t.intent.NeedsReviews)

	return evMerge, nil
}

func (s *Service) mergeState(ctx context.Context, t *turn) (string, error) {
	var latest models.DeliveryState
	if len(t.criteria) > 0 {
		latest = t.criteria[0].Delivery()
	}
	t.state = session.Merge(t.state, latest)

	if t.req.SessionID != "" {
		if err := s.deps.Sessions.Save(ctx, t.req.SessionID, t.state); err != nil {
			t.log.Warn("failed to save session state", "err", err)
		}
	}

	return evRetrieve, nil
}

func (s *Service) retrieve(ctx context.Context, t *turn) (string, error) {
	if t.intent.NeedsReviews && s.deps.Feedback != nil {
		queries := t.intent.ReviewQueries
		t.reviewsF = workpool.Submit(s.deps.Pool, ctx, func(ctx context.Context) ([]models.ReviewItem, error) {
			ctx, cancel := context.WithTimeout(ctx, s.opts.ReviewsTimeout)
			defer cancel()
			return s.deps.Feedback.Fetch(ctx, t.req.Project, queries), nil
		})
	}

	t.menuCache = s.deps.Menu.Prefetch(ctx, t.req.Project, t.criteria)
	t.menuItems = s.deps.Menu.PromptItems(ctx, t.req.Project, t.criteria, s.opts.MaxMenuItems, t.menuCache)
	t.log.Debug("menu items ready", "items", len(t.menuItems), "keys", len(t.menuCache))

	return evBuildOrder, nil
}

func (s *Service) buildOrder(ctx context.Context, t *turn) (string, error) {
	t.order, _ = s.deps.Orders.Build(ctx, t.req.Project, t.criteria, t.menuCache)
	t.log.Debug("order built", "entries", len(t.order))

	return evRender, nil
}

func (s *Service) render(_ context.Context, t *turn) (string, error) {
	if t.reviewsF != nil {
		items, err := t.reviewsF.Wait()
		if err != nil {
			t.log.Warn("review fetch failed", "err", err)
		}
		t.reviewItems = items
	}

	data := tplengine.Context{
		Loops: map[string][]tplengine.Item{
			"menu":          t.menuItems,
			"products_cart": t.cart.PromptItems(),
			"reviews":       reviews.PromptItems(t.reviewItems),
		},
		Vars: map[string]string{
			"menu":     flag(len(t.menuItems) > 0),
			"cart":     flag(len(t.cart.Items) > 0),
			"reviews":  flag(len(t.reviewItems) > 0),
			"delivery": flag(t.state.DeliveryType != ""),
		},
		Values: map[string]string{
			"cart_total": t.cart.Total,
		},
	}
	for _, f := range models.DeliveryFields {
		data.Vars[f] = t.state.Get(f)
		data.Values[f] = t.state.Get(f)
	}
	t.system = tplengine.Render(tplengine.Parse(t.prompt), data)

	t.log.Debug("system prompt ready", "chars", len(t.system))

	return evGenerate, nil
}

func (s *Service) generate(ctx context.Context, t *turn) (string, error) {
	messages := make([]models.Message, 0, len(t.history)+1)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: t.system})
	messages = append(messages, t.history...)

	out, err := s.deps.Generator.Complete(ctx, messages, llm.Options{
		Temperature: t.req.temperature(),
		TopP:        t.req.topP(),
		TopK:        t.req.topK(),
		MaxTokens:   s.opts.MaxTokens,
		JSONMode:    t.req.jsonReply(),
		Timeout:     s.opts.GenerateTimeout,
	})
	if err != nil {
		return evModelFailed, &Error{Code: ErrorModel, Reason: reasonModel, Err: err}
	}

	t.completion = out

	return evRespond, nil
}

func (s *Service) respond(_ context.Context, t *turn) (string, error) {
	order := t.order
	if order == nil {
		order = []models.OrderEntry{}
	}

	t.response = &Response{
		Model:     s.deps.Generator.Model(),
		CreatedAt: s.now().UTC().Format(createdAtLayout),
		Message: models.Message{
			Role:    models.RoleAssistant,
			Content: llm.FixItalianEncoding(t.completion.Text),
		},
		Done:     t.completion.Done(),
		Order:    order,
		Warnings: t.warnings,
	}

	return "", nil
}

func flag(ok bool) string {
	if ok {
		return "1"
	}
	return ""
}

func (t *turn) warn(msg string) {
	t.warnings = append(t.warnings, msg)
}
