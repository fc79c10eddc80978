package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
)

// ParseReply decodes the model's reply into an ActionSpec. The reply must be a single
// JSON object naming domain.ActionName; one surrounding markdown code fence is tolerated.
func ParseReply(reply string) (*domain.ActionSpec, error) {
	text := stripFence(strings.TrimSpace(reply))
	if text == "" {
		return nil, fmt.Errorf("empty reply")
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	var out domain.SynthesizedReply
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("reply is not a valid action object: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reply has trailing content after the action object")
	}

	if out.Action != domain.ActionName {
		return nil, fmt.Errorf("reply names action %q, want %q", out.Action, domain.ActionName)
	}
	if out.Request == nil {
		return nil, fmt.Errorf("reply has no request")
	}
	if err := out.Request.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return out.Request, nil
}

// stripFence removes one enclosing ``` or ```json fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		lang := strings.TrimSpace(inner[:nl])
		if lang == "" || strings.EqualFold(lang, "json") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}
