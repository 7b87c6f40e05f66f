package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/config"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// StopReasonStop is the finish reason of a normally completed generation.
const StopReasonStop = "stop"

var ErrEmptyCompletion = errors.New("model returned no choices")

type Options struct {
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
	JSONMode    bool
	Timeout     time.Duration
}

type Completion struct {
	Text       string
	StopReason string
}

func (c Completion) Done() bool {
	return c.StopReason == StopReasonStop
}

// Client sends chat messages to a generation model.
type Client struct {
	model llms.Model
	name  string
}

func New(model llms.Model, name string) *Client {
	return &Client{
		model: model,
		name:  name,
	}
}

// NewOpenAI connects to an OpenAI compatible chat completions server such as
// vLLM.
func NewOpenAI(cfg config.LLM) (*Client, error) {
	token := cfg.APIKey
	if token == "" {
		// vLLM ignores the token but the client requires one
		token = "EMPTY"
	}

	model, err := openai.New(
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.URL),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	return New(model, cfg.Model), nil
}

func (c *Client) Model() string {
	return c.name
}

// Complete makes one generation call with messages normalised by
// FormatMessages.
func (c *Client) Complete(ctx context.Context, messages []models.Message, opts Options) (Completion, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(opts.Temperature),
	}
	if opts.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(opts.TopP))
	}
	if opts.TopK > 0 {
		callOpts = append(callOpts, llms.WithTopK(opts.TopK))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := c.model.GenerateContent(ctx, ToContent(FormatMessages(messages)), callOpts...)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyCompletion
	}

	choice := resp.Choices[0]

	return Completion{
		Text:       choice.Content,
		StopReason: choice.StopReason,
	}, nil
}

// ToContent converts chat messages to langchaingo message content.
func ToContent(messages []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case models.RoleAssistant:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		case models.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{Name: m.Name, Content: m.Content},
				},
			})
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}
	return out
}
