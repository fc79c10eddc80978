// Package synth asks the model backend for a structured action describing one HTTP
// call and compiles the reply into an executable action.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/action"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/api/openai"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
)

// Completer is the subset of the chat-completions client the synthesizer needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest, opts *openai.RequestOptions) (*openai.ChatCompletionResponse, error)
}

// Config holds synthesizer settings.
type Config struct {
	Model string

	// JSONMode requests response_format json_object from the backend
	JSONMode bool

	// Temperature is sent when non-nil
	Temperature *float32

	// MaxDescriptionTokens rejects longer descriptions; 0 disables the check
	MaxDescriptionTokens int

	Logger *slog.Logger
}

// Synthesizer turns request descriptions into compiled actions.
type Synthesizer struct {
	client  Completer
	cfg     Config
	counter *TokenCounter
	logger  *slog.Logger
}

var _ ports.Synthesizer = (*Synthesizer)(nil)

// New creates a Synthesizer backed by client.
func New(client Completer, cfg Config) *Synthesizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synthesizer{client: client, cfg: cfg, logger: logger}
	if cfg.MaxDescriptionTokens > 0 {
		s.counter = NewTokenCounter(cfg.Model)
	}
	return s
}

// Synthesize requests an action for description. Every failure is a synthesis error
// and nothing is retried.
func (s *Synthesizer) Synthesize(ctx context.Context, description string) (ports.Action, error) {
	return s.SynthesizeAction(ctx, description)
}

// SynthesizeAction is Synthesize with the concrete action type.
func (s *Synthesizer) SynthesizeAction(ctx context.Context, description string) (*action.Action, error) {
	ctx, span := otel.Tracer("relay/synth").Start(ctx, "synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", s.cfg.Model))

	act, err := s.synthesize(ctx, description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("action.summary", act.Summary()))
	return act, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, description string) (*action.Action, error) {
	if strings.TrimSpace(description) == "" {
		return nil, domain.ErrSynthesis("description is empty", nil)
	}

	if s.counter != nil {
		n, err := s.counter.Count(description)
		if err != nil {
			return nil, domain.ErrSynthesis("failed to count description tokens", err)
		}
		if n > s.cfg.MaxDescriptionTokens {
			return nil, domain.ErrSynthesis(fmt.Sprintf("description is %d tokens, limit is %d", n, s.cfg.MaxDescriptionTokens), nil)
		}
	}

	req := &openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: description},
		},
		Temperature: s.cfg.Temperature,
	}
	if s.cfg.JSONMode {
		req.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
	}

	resp, err := s.client.CreateChatCompletion(ctx, req, nil)
	if err != nil {
		var statusErr *openai.StatusError
		if errors.As(err, &statusErr) {
			return nil, domain.ErrSynthesis("model backend returned an error", err).WithStatusCode(http.StatusBadGateway)
		}
		return nil, domain.ErrSynthesis("model backend request failed", err)
	}

	if len(resp.Choices) == 0 {
		return nil, domain.ErrSynthesis("model reply has no choices", nil)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrSynthesis("model reply is empty", nil)
	}

	spec, err := ParseReply(content)
	if err != nil {
		s.logger.Debug("rejected model reply", "model", s.cfg.Model, "error", err.Error())
		return nil, domain.ErrSynthesis("model reply is not a valid action", err)
	}

	act, err := action.Compile(spec)
	if err != nil {
		return nil, domain.ErrSynthesis("model reply is not a valid action", err)
	}

	s.logger.Debug("synthesized action",
		"model", s.cfg.Model,
		"action", act.Summary(),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return act, nil
}
