// Package webhook delivers response envelopes to caller-supplied webhook URLs.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/encode"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "polyglot-webhook-relay/1.0"

	// InvocationHeader carries the invocation ID on every delivery.
	InvocationHeader = "X-Relay-Invocation-ID"

	// maxDrain bounds how much of a webhook's reply is read before closing.
	maxDrain = 64 << 10
)

// Dispatcher POSTs envelopes to webhooks. It never retries.
type Dispatcher struct {
	client    *http.Client
	timeout   time.Duration
	headers   map[string]string
	userAgent string
}

// Config configures a Dispatcher.
type Config struct {
	// Client is the shared client; nil means a scoped client per delivery
	Client    *http.Client
	Timeout   time.Duration
	Headers   map[string]string
	UserAgent string
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Dispatcher{
		client:    cfg.Client,
		timeout:   timeout,
		headers:   cfg.Headers,
		userAgent: userAgent,
	}
}

type invocationIDKey struct{}

// WithInvocationID attaches an invocation ID that Deliver sends as InvocationHeader.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

// InvocationID returns the invocation ID attached to ctx, if any.
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey{}).(string)
	return id
}

// Deliver posts env as JSON to destination. The outcome is always returned; err is
// a DeliveryError when the webhook could not be reached or answered non-2xx.
func (d *Dispatcher) Deliver(ctx context.Context, env *domain.ResponseEnvelope, destination string) (*domain.DeliveryOutcome, error) {
	start := time.Now()
	outcome := &domain.DeliveryOutcome{Webhook: destination}

	ctx, span := otel.Tracer("relay/webhook").Start(ctx, "webhook.deliver")
	defer span.End()
	span.SetAttributes(attribute.String("url.full", destination))

	status, err := d.post(ctx, env, destination)
	outcome.StatusCode = status
	outcome.Duration = time.Since(start)
	outcome.DeliveredAt = time.Now()
	if err != nil {
		outcome.Error = err.Error()
		outcome.ErrorKind = domain.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	return outcome, nil
}

func (d *Dispatcher) post(ctx context.Context, env *domain.ResponseEnvelope, destination string) (int, error) {
	body, err := encode.Marshal(env)
	if err != nil {
		return 0, err
	}

	client := d.client
	if client == nil {
		// Scoped client, released on every return path
		transport := http.DefaultTransport.(*http.Transport).Clone()
		defer transport.CloseIdleConnections()
		client = &http.Client{Transport: transport}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return 0, domain.ErrDelivery("create request", err)
	}

	req.Header.Set("User-Agent", d.userAgent)
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
	// the envelope is always JSON and the invocation header always names this run
	req.Header.Set("Content-Type", "application/json")
	if id := InvocationID(ctx); id != "" {
		req.Header.Set(InvocationHeader, id)
	} else {
		req.Header.Del(InvocationHeader)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, domain.ErrDelivery("webhook request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, domain.ErrDelivery(
			fmt.Sprintf("webhook returned status %d: %s", resp.StatusCode, truncate(string(respBody), 256)), nil)
	}
	return resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure Dispatcher implements the interface.
var _ ports.Deliverer = (*Dispatcher)(nil)
