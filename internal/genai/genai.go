// Package genai provides GenAI-enhanced operations using OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNoChoicesReturned is returned when the completion has no choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat                chatService
	model               string
	temperature         float64
	maxCompletionTokens int64
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey              string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// NewClient creates a GenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: string(openai.ChatModelGPT4oMini), Temperature: 0.7, MaxCompletionTokens: 400}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:                &cli.Chat.Completions,
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
	}, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxCompletionTokens)
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("GenAI GeneratePrompt failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

const recipeSystemPrompt = `Eres el asistente de cocina de Avellano, una empresa colombiana de pollo y carnes.
Responde en español, en formato WhatsApp (negritas con *asteriscos*), con una sola receta corta:
título, ingredientes en una línea y máximo 4 pasos numerados. No incluyas enlaces ni precios.`

// SuggestRecipe asks for a short recipe about topic ("pollo", "carnes").
func (c *Client) SuggestRecipe(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("empty recipe topic")
	}
	out, err := c.GeneratePrompt(ctx, recipeSystemPrompt,
		fmt.Sprintf("Sugiere una receta casera y rápida con %s de Avellano.", topic))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
