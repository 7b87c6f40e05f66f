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

// Criteria turns the latest user message into ordering criteria.
type Criteria struct {
	tiers
}

func NewCriteria(cfg config.Extraction, model Completer) *Criteria {
	prompt := prompts.LoadJSONPrompt(cfg.PromptsDir, cfg.Criteria.PromptBasename, "prompt", prompts.DefaultCriteriaPrompt)

	return &Criteria{
		tiers: newTiers("criteria", cfg.Criteria, cfg.RemoteAPIKey, model, prompt, 0.1),
	}
}

// Extract never returns a nil slice. ErrNoResult means no tier answered.
func (c *Criteria) Extract(ctx context.Context, messages []models.Message, sessionID string) ([]models.Criterion, error) {
	answered := false

	if c.mode == ModeLocal {
		res, err := c.fromLocal(ctx, messages)
		if err != nil {
			slog.Error("local criteria extraction failed", "err", err)
		} else if len(res) > 0 {
			return res, nil
		} else {
			answered = true
		}

		slog.Warn("local criteria extraction gave nothing, falling back to remote", "session", sessionID)
		metrics.ExtractionFallbacks.WithLabelValues(c.name).Inc()
	}

	res, err := c.fromRemote(ctx, messages, sessionID)
	if err != nil {
		if !errors.Is(err, errNoRemote) {
			slog.Error("remote criteria extraction failed", "err", err)
		}
		if answered {
			return []models.Criterion{}, nil
		}
		return []models.Criterion{}, ErrNoResult
	}

	return res, nil
}

func (c *Criteria) fromLocal(ctx context.Context, messages []models.Message) ([]models.Criterion, error) {
	out, err := c.local(ctx, messages)
	if err != nil {
		return nil, err
	}

	return ParseCriteria(out)
}

func (c *Criteria) fromRemote(ctx context.Context, messages []models.Message, sessionID string) ([]models.Criterion, error) {
	msgs, err := c.remote(ctx, messages, sessionID)
	if err != nil {
		return nil, err
	}

	out := []models.Criterion{}
	for _, msg := range msgs {
		var obj gjson.Result
		switch {
		case msg.IsObject():
			obj = msg
		case msg.Type == gjson.String:
			clean := cleanJSON(msg.Str)
			if !gjson.Valid(clean) {
				slog.Warn("malformed criteria message from remote", "message", truncate(msg.Str, 200))
				continue
			}
			obj = gjson.Parse(clean)
		}

		if !obj.IsObject() {
			continue
		}
		if cr, ok := decodeCriterion(obj); ok {
			out = append(out, cr)
		}
	}

	return out, nil
}

// ParseCriteria accepts a JSON array of objects, a single object, or a JSON
// string holding either, optionally wrapped in code fences. Non-object array
// items are dropped.
func ParseCriteria(text string) ([]models.Criterion, error) {
	clean := cleanJSON(text)
	if !gjson.Valid(clean) {
		return nil, errors.New("criteria reply is not valid JSON")
	}

	res := gjson.Parse(clean)
	if res.Type == gjson.String {
		return ParseCriteria(res.Str)
	}

	out := []models.Criterion{}
	switch {
	case res.IsArray():
		for _, item := range res.Array() {
			if !item.IsObject() {
				continue
			}
			if cr, ok := decodeCriterion(item); ok {
				out = append(out, cr)
			}
		}
	case res.IsObject():
		if cr, ok := decodeCriterion(res); ok {
			out = append(out, cr)
		}
	}

	return out, nil
}

func decodeCriterion(obj gjson.Result) (models.Criterion, bool) {
	var cr models.Criterion
	if err := json.Unmarshal([]byte(obj.Raw), &cr); err != nil {
		slog.Warn("dropping undecodable criterion", "err", err)
		return models.Criterion{}, false
	}
	return cr, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
