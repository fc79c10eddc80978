// Package memory provides a process-local invocation journal.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
)

// DefaultMaxInvocations bounds the journal when no limit is given.
const DefaultMaxInvocations = 10000

// Store is an in-memory implementation of InvocationStore. Records are copied on the
// way in and out, so callers may keep mutating their own values.
//
// The store holds at most a fixed number of invocations. Once full, creating a new
// one evicts the oldest together with its events.
type Store struct {
	mu          sync.RWMutex
	invocations *simplelru.LRU[string, *domain.Invocation]
	events      map[string][]*domain.LifecycleEvent
}

var _ ports.InvocationStore = (*Store)(nil)

// New creates a new in-memory store holding up to DefaultMaxInvocations records.
func New() *Store {
	return NewWithLimit(DefaultMaxInvocations)
}

// NewWithLimit creates a store holding up to size invocations; size <= 0 selects
// DefaultMaxInvocations.
func NewWithLimit(size int) *Store {
	if size <= 0 {
		size = DefaultMaxInvocations
	}
	s := &Store{events: make(map[string][]*domain.LifecycleEvent)}
	// only fails for a non-positive size
	s.invocations, _ = simplelru.NewLRU[string, *domain.Invocation](size, s.evicted)
	return s
}

// evicted runs with s.mu held.
func (s *Store) evicted(id string, _ *domain.Invocation) {
	delete(s.events, id)
}

func (s *Store) CreateInvocation(ctx context.Context, inv *domain.Invocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.invocations.Contains(inv.ID) {
		return fmt.Errorf("invocation %s already exists", inv.ID)
	}
	s.invocations.Add(inv.ID, inv.Clone())
	return nil
}

// UpdateInvocation replaces the record in place so it keeps its eviction order.
func (s *Store) UpdateInvocation(ctx context.Context, inv *domain.Invocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invocations.Peek(inv.ID)
	if !ok {
		return fmt.Errorf("invocation %s: %w", inv.ID, ports.ErrNotFound)
	}
	*existing = *inv.Clone()
	return nil
}

func (s *Store) GetInvocation(ctx context.Context, id string) (*domain.Invocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invocations.Peek(id)
	if !ok {
		return nil, fmt.Errorf("invocation %s: %w", id, ports.ErrNotFound)
	}
	return inv.Clone(), nil
}

func (s *Store) ListInvocations(ctx context.Context, opts ports.ListOptions) ([]*domain.InvocationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.InvocationSummary
	for _, inv := range s.invocations.Values() {
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		summary := inv.Summarize()
		result = append(result, &summary)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = ports.DefaultListLimit
	}
	if opts.Offset >= len(result) {
		return []*domain.InvocationSummary{}, nil
	}
	result = result[opts.Offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AppendEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *event
	s.events[event.InvocationID] = append(s.events[event.InvocationID], &copied)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, invocationID string) ([]*domain.LifecycleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[invocationID]
	out := make([]*domain.LifecycleEvent, 0, len(events))
	for _, e := range events {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
