// Package action compiles a structured ActionSpec into an immutable, per-invocation
// Action and executes it against an injected HTTP client.
package action

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
)

// Action is a compiled ActionSpec. It holds no reference to shared state and can
// only be run with the client passed to Run.
type Action struct {
	method      string
	target      *url.URL
	header      http.Header
	body        []byte
	contentType string
	summary     string
}

// Compile validates spec and builds an Action from it.
func Compile(spec *domain.ActionSpec) (*Action, error) {
	if spec == nil {
		return nil, fmt.Errorf("action spec is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	target, err := url.Parse(spec.URL)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}
	if len(spec.Query) > 0 {
		q := target.Query()
		for k, v := range spec.Query {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	a := &Action{
		method:  strings.ToUpper(strings.TrimSpace(spec.Method)),
		target:  target,
		header:  make(http.Header, len(spec.Headers)),
		summary: spec.Summary(),
	}
	for k, v := range spec.Headers {
		// the transport only decompresses bodies when it negotiated the encoding itself
		if strings.EqualFold(k, "Accept-Encoding") {
			continue
		}
		a.header.Set(k, v)
	}

	switch {
	case len(spec.JSON) > 0 && string(spec.JSON) != "null":
		a.body = append([]byte(nil), spec.JSON...)
		a.contentType = "application/json"
	case len(spec.Form) > 0:
		form := url.Values{}
		for k, v := range spec.Form {
			form.Set(k, v)
		}
		a.body = []byte(form.Encode())
		a.contentType = "application/x-www-form-urlencoded"
	case spec.Body != "":
		a.body = []byte(spec.Body)
	}

	return a, nil
}

// Method returns the HTTP method.
func (a *Action) Method() string { return a.method }

// URL returns the final target URL, query parameters included.
func (a *Action) URL() string { return a.target.String() }

// Summary returns "METHOD URL" without headers or body.
func (a *Action) Summary() string { return a.summary }

// Run performs the HTTP call with client. The caller owns the returned response.
func (a *Action) Run(ctx context.Context, client *http.Client) (*http.Response, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}

	ctx, span := otel.Tracer("relay/action").Start(ctx, "action.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", a.method),
		attribute.String("url.full", a.target.String()),
	)

	var body io.Reader
	if a.body != nil {
		body = bytes.NewReader(a.body)
	}

	req, err := http.NewRequestWithContext(ctx, a.method, a.target.String(), body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = a.header.Clone()
	if a.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", a.contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

// Ensure Action implements the interface.
var _ ports.Action = (*Action)(nil)
