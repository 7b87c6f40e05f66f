package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/imkonsowa/restaurant-chatbot/config"
	"github.com/imkonsowa/restaurant-chatbot/llm"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/tidwall/gjson"
)

const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// ErrNoResult is returned alongside the default value when every configured
// tier failed.
var ErrNoResult = errors.New("extraction produced no result")

var errNoRemote = errors.New("remote extraction endpoint not configured")

var fenceRe = regexp.MustCompile("(?i)^```(?:json)?\\s*|\\s*```$")

// Completer runs one model generation.
type Completer interface {
	Complete(ctx context.Context, messages []models.Message, opts llm.Options) (llm.Completion, error)
}

// tiers holds what both extractors share: the local model call and the
// remote endpoint.
type tiers struct {
	name      string
	mode      string
	model     Completer
	prompt    string
	opts      llm.Options
	http      *resty.Client
	remoteURL string
}

func newTiers(name string, cfg config.Extractor, apiKey string, model Completer, prompt string, topP float64) tiers {
	client := resty.New().
		SetTimeout(cfg.RemoteTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-Authorization", apiKey)
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode != ModeRemote {
		mode = ModeLocal
	}

	if cfg.TopP > 0 {
		topP = cfg.TopP
	}

	return tiers{
		name:   name,
		mode:   mode,
		model:  model,
		prompt: prompt,
		opts: llm.Options{
			Temperature: 0,
			TopP:        topP,
			MaxTokens:   cfg.MaxTokens,
			JSONMode:    true,
			Timeout:     cfg.LocalTimeout,
		},
		http:      client,
		remoteURL: cfg.RemoteURL,
	}
}

// local asks the model with the extractor prompt as system message followed
// by the conversation.
func (t *tiers) local(ctx context.Context, messages []models.Message) (string, error) {
	if t.model == nil {
		return "", errors.New("no local model configured")
	}

	msgs := make([]models.Message, 0, len(messages)+1)
	msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: t.prompt})
	msgs = append(msgs, messages...)

	out, err := t.model.Complete(ctx, msgs, t.opts)
	if err != nil {
		return "", fmt.Errorf("%s local extraction: %w", t.name, err)
	}

	return out.Text, nil
}

// remote posts the conversation to the extraction endpoint and returns the
// entries of its "messages" array.
func (t *tiers) remote(ctx context.Context, messages []models.Message, sessionID string) ([]gjson.Result, error) {
	if t.remoteURL == "" {
		return nil, errNoRemote
	}

	payload := map[string]any{"chat": messages}
	if sessionID != "" {
		payload["sessionid4dataapi"] = sessionID
	}

	start := time.Now()
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(t.remoteURL)
	if err != nil {
		return nil, fmt.Errorf("%s remote extraction: %w", t.name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s remote extraction: status %d", t.name, resp.StatusCode())
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s remote extraction: invalid JSON reply", t.name)
	}

	slog.Debug("remote extraction", "extractor", t.name, "status", resp.StatusCode(), "duration", time.Since(start))

	return gjson.GetBytes(body, "messages").Array(), nil
}

// cleanJSON strips markdown code fences from a model reply.
func cleanJSON(s string) string {
	return fenceRe.ReplaceAllString(strings.TrimSpace(s), "")
}
