// Package direct provides a direct event publisher that writes to storage.
package direct

import (
	"context"
	"fmt"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
)

// Publisher implements ports.EventPublisher by appending to the invocation journal.
// This is the default implementation for single-instance deployments.
type Publisher struct {
	store ports.InvocationStore
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a new direct event publisher.
func NewPublisher(store ports.InvocationStore) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("invocation store required")
	}
	return &Publisher{store: store}, nil
}

// Publish writes a lifecycle event directly to storage.
func (p *Publisher) Publish(ctx context.Context, event *domain.LifecycleEvent) error {
	return p.store.AppendEvent(ctx, event)
}

// Close is a no-op; the store is owned by the caller.
func (p *Publisher) Close() error {
	return nil
}
