package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/storage/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.InvocationStore {
		store, err := New(filepath.Join(t.TempDir(), "journal.db"))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return store
	})
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	inv := &domain.Invocation{ID: "persisted", Webhooks: []string{"https://a.example"}, CreatedAt: time.Now().UTC()}
	if err := store.CreateInvocation(ctx, inv); err != nil {
		t.Fatalf("CreateInvocation() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	store, err = New(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	if _, err := store.GetInvocation(ctx, "persisted"); err != nil {
		t.Errorf("GetInvocation() after reopen error = %v", err)
	}
}
