package extract

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/imkonsowa/restaurant-chatbot/config"
	"github.com/imkonsowa/restaurant-chatbot/metrics"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/prompts"
	"github.com/tidwall/gjson"
)

// ReviewQueries decides whether customer reviews should back the reply and
// which searches to run for them.
type ReviewQueries struct {
	tiers
}

func NewReviewQueries(cfg config.Extraction, model Completer) *ReviewQueries {
	prompt := prompts.LoadJSONPrompt(cfg.PromptsDir, cfg.Reviews.PromptBasename, "prompt", prompts.DefaultReviewsPrompt)

	return &ReviewQueries{
		tiers: newTiers("reviews", cfg.Reviews, cfg.RemoteAPIKey, model, prompt, 1.0),
	}
}

// Extract returns {needs_reviews: false} with ErrNoResult when no tier
// produced an intent.
func (r *ReviewQueries) Extract(ctx context.Context, messages []models.Message, sessionID string) (models.ReviewQueryIntent, error) {
	if r.mode == ModeLocal {
		intent, err := r.fromLocal(ctx, messages)
		if err == nil {
			return intent, nil
		}

		slog.Warn("local review query extraction failed, falling back to remote", "session", sessionID, "err", err)
		metrics.ExtractionFallbacks.WithLabelValues(r.name).Inc()
	}

	intent, err := r.fromRemote(ctx, messages, sessionID)
	if err != nil {
		if !errors.Is(err, errNoRemote) {
			slog.Error("remote review query extraction failed", "err", err)
		}
		return models.ReviewQueryIntent{}, ErrNoResult
	}

	return intent, nil
}

func (r *ReviewQueries) fromLocal(ctx context.Context, messages []models.Message) (models.ReviewQueryIntent, error) {
	out, err := r.local(ctx, messages)
	if err != nil {
		return models.ReviewQueryIntent{}, err
	}

	return ParseIntent(out)
}

func (r *ReviewQueries) fromRemote(ctx context.Context, messages []models.Message, sessionID string) (models.ReviewQueryIntent, error) {
	msgs, err := r.remote(ctx, messages, sessionID)
	if err != nil {
		return models.ReviewQueryIntent{}, err
	}
	if len(msgs) == 0 || msgs[0].Type != gjson.String {
		return models.ReviewQueryIntent{}, errors.New("remote reply has no intent message")
	}

	return ParseIntent(msgs[0].Str)
}

// ParseIntent reads a review query intent. The reply must be a JSON object
// carrying a needs_reviews key; review queries that are not objects are
// dropped.
func ParseIntent(text string) (models.ReviewQueryIntent, error) {
	clean := cleanJSON(text)
	if !gjson.Valid(clean) {
		return models.ReviewQueryIntent{}, errors.New("review intent is not valid JSON")
	}

	res := gjson.Parse(clean)
	needs := res.Get("needs_reviews")
	if !res.IsObject() || !needs.Exists() {
		return models.ReviewQueryIntent{}, errors.New("review intent lacks needs_reviews")
	}

	intent := models.ReviewQueryIntent{NeedsReviews: needs.Bool()}
	for _, item := range res.Get("review_queries").Array() {
		if !item.IsObject() {
			continue
		}
		var q models.ReviewQuery
		if err := json.Unmarshal([]byte(item.Raw), &q); err != nil {
			continue
		}
		intent.ReviewQueries = append(intent.ReviewQueries, q)
	}

	return intent, nil
}
