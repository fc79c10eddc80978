package ports

import (
	"context"
	"net/http"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
)

// Action is a compiled, per-invocation unit of work that performs one outbound
// HTTP call using the client it is given.
type Action interface {
	// Run executes the call; a returned response must be closed by the caller.
	Run(ctx context.Context, client *http.Client) (*http.Response, error)

	// Summary returns a short, log-safe description of the call.
	Summary() string
}

// Synthesizer turns a request description into an Action.
type Synthesizer interface {
	Synthesize(ctx context.Context, description string) (Action, error)
}

// Deliverer posts an envelope to a single webhook.
type Deliverer interface {
	Deliver(ctx context.Context, env *domain.ResponseEnvelope, destination string) (*domain.DeliveryOutcome, error)
}

// EventPublisher publishes invocation lifecycle events.
// Implementations: direct storage (default), Redis streams.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.LifecycleEvent) error
	Close() error
}
