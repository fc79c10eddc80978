package ports

import (
	"context"
	"errors"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
)

// ErrNotFound is returned when a stored record does not exist.
var ErrNotFound = errors.New("not found")

// InvocationStore defines the interface for the invocation journal
type InvocationStore interface {
	// CreateInvocation records a newly scheduled invocation
	CreateInvocation(ctx context.Context, inv *domain.Invocation) error

	// UpdateInvocation overwrites the stored state of an invocation
	UpdateInvocation(ctx context.Context, inv *domain.Invocation) error

	// GetInvocation retrieves an invocation by ID, returning ErrNotFound when absent
	GetInvocation(ctx context.Context, id string) (*domain.Invocation, error)

	// ListInvocations lists invocation summaries, newest first
	ListInvocations(ctx context.Context, opts ListOptions) ([]*domain.InvocationSummary, error)

	// AppendEvent records a lifecycle event for an invocation
	AppendEvent(ctx context.Context, event *domain.LifecycleEvent) error

	// ListEvents returns the recorded lifecycle events of an invocation, oldest first
	ListEvents(ctx context.Context, invocationID string) ([]*domain.LifecycleEvent, error)

	// Close closes the storage connection
	Close() error
}

// ListOptions contains options for listing invocations
type ListOptions struct {
	Status domain.InvocationStatus
	Limit  int
	Offset int
}

// DefaultListLimit is applied when ListOptions.Limit is zero.
const DefaultListLimit = 100
