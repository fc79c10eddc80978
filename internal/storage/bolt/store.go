// Package bolt stores the invocation journal in a single BoltDB file.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
)

var (
	bucketInvocations = []byte("invocations")
	bucketEvents      = []byte("invocation_events")
)

// Store wraps a BoltDB instance.
type Store struct {
	db *bolt.DB
}

var _ ports.InvocationStore = (*Store)(nil)

// New opens (or creates) the database at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketInvocations); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEvents); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) CreateInvocation(ctx context.Context, inv *domain.Invocation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInvocations)
		if b.Get([]byte(inv.ID)) != nil {
			return fmt.Errorf("invocation %s already exists", inv.ID)
		}
		return b.Put([]byte(inv.ID), data)
	})
}

func (s *Store) UpdateInvocation(ctx context.Context, inv *domain.Invocation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInvocations)
		if b.Get([]byte(inv.ID)) == nil {
			return fmt.Errorf("invocation %s: %w", inv.ID, ports.ErrNotFound)
		}
		return b.Put([]byte(inv.ID), data)
	})
}

func (s *Store) GetInvocation(ctx context.Context, id string) (*domain.Invocation, error) {
	var inv *domain.Invocation
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInvocations).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("invocation %s: %w", id, ports.ErrNotFound)
		}
		inv = &domain.Invocation{}
		return json.Unmarshal(data, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvocations scans the whole bucket; the journal is expected to stay small.
func (s *Store) ListInvocations(ctx context.Context, opts ports.ListOptions) ([]*domain.InvocationSummary, error) {
	result := []*domain.InvocationSummary{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInvocations).ForEach(func(_, v []byte) error {
			var inv domain.Invocation
			if err := json.Unmarshal(v, &inv); err != nil {
				return err
			}
			if opts.Status != "" && inv.Status != opts.Status {
				return nil
			}
			summary := inv.Summarize()
			result = append(result, &summary)
			return nil
		})
	})
	if err != nil {
		return nil, err
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

// AppendEvent stores events in a nested bucket per invocation, keyed by sequence.
func (s *Store) AppendEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists([]byte(event.InvocationID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

func (s *Store) ListEvents(ctx context.Context, invocationID string) ([]*domain.LifecycleEvent, error) {
	events := []*domain.LifecycleEvent{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents).Bucket([]byte(invocationID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var raw struct {
				domain.LifecycleEvent
				Data json.RawMessage `json:"data,omitempty"`
			}
			if err := json.Unmarshal(v, &raw); err != nil {
				return err
			}
			event := raw.LifecycleEvent
			if len(raw.Data) > 0 {
				event.Data = raw.Data
			}
			events = append(events, &event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
