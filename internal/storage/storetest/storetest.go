// Package storetest holds the behavior every InvocationStore backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
)

// Run exercises store against the InvocationStore contract. newStore must return an
// empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) ports.InvocationStore) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		inv := newInvocation("inv-1", time.Now().UTC())
		if err := store.CreateInvocation(ctx, inv); err != nil {
			t.Fatalf("CreateInvocation() error = %v", err)
		}

		got, err := store.GetInvocation(ctx, "inv-1")
		if err != nil {
			t.Fatalf("GetInvocation() error = %v", err)
		}
		if got.Description != inv.Description {
			t.Errorf("Description = %q, want %q", got.Description, inv.Description)
		}
		if len(got.Webhooks) != 2 || got.Webhooks[1] != "https://hooks.example.com/b" {
			t.Errorf("Webhooks = %v", got.Webhooks)
		}
		if got.Status != domain.InvocationStatusScheduled {
			t.Errorf("Status = %q, want scheduled", got.Status)
		}
		if got.CompletedAt != nil {
			t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
		}
	})

	t.Run("Update", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		inv := newInvocation("inv-2", time.Now().UTC())
		if err := store.CreateInvocation(ctx, inv); err != nil {
			t.Fatalf("CreateInvocation() error = %v", err)
		}

		done := time.Now().UTC()
		inv.Status = domain.InvocationStatusSucceeded
		inv.Action = "GET https://example.com"
		inv.ResponseStatusCode = 201
		inv.CompletedAt = &done
		inv.UpdatedAt = done
		inv.Deliveries = []domain.DeliveryOutcome{
			{Webhook: "https://hooks.example.com/a", StatusCode: 200, DeliveredAt: done},
			{Webhook: "https://hooks.example.com/b", Error: "connection refused", ErrorKind: domain.ErrorKindDelivery, DeliveredAt: done},
		}
		if err := store.UpdateInvocation(ctx, inv); err != nil {
			t.Fatalf("UpdateInvocation() error = %v", err)
		}

		got, err := store.GetInvocation(ctx, "inv-2")
		if err != nil {
			t.Fatalf("GetInvocation() error = %v", err)
		}
		if got.Status != domain.InvocationStatusSucceeded || got.ResponseStatusCode != 201 {
			t.Errorf("got status %q / %d", got.Status, got.ResponseStatusCode)
		}
		if got.CompletedAt == nil {
			t.Fatal("CompletedAt = nil")
		}
		if len(got.Deliveries) != 2 || got.Deliveries[1].Succeeded() {
			t.Errorf("Deliveries = %+v", got.Deliveries)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if _, err := store.GetInvocation(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("GetInvocation() error = %v, want ErrNotFound", err)
		}
		if err := store.UpdateInvocation(ctx, newInvocation("missing", time.Now())); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("UpdateInvocation() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DuplicateCreate", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		inv := newInvocation("dup", time.Now().UTC())
		if err := store.CreateInvocation(ctx, inv); err != nil {
			t.Fatalf("CreateInvocation() error = %v", err)
		}
		if err := store.CreateInvocation(ctx, inv); err == nil {
			t.Error("expected error on duplicate create")
		}
	})

	t.Run("List", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			inv := newInvocation(fmt.Sprintf("list-%d", i), base.Add(time.Duration(i)*time.Minute))
			if i%2 == 0 {
				inv.Status = domain.InvocationStatusFailed
			}
			if err := store.CreateInvocation(ctx, inv); err != nil {
				t.Fatalf("CreateInvocation() error = %v", err)
			}
		}

		all, err := store.ListInvocations(ctx, ports.ListOptions{})
		if err != nil {
			t.Fatalf("ListInvocations() error = %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("count = %d, want 5", len(all))
		}
		if all[0].ID != "list-4" || all[4].ID != "list-0" {
			t.Errorf("order = %s..%s, want newest first", all[0].ID, all[4].ID)
		}
		if all[0].WebhookCount != 2 {
			t.Errorf("WebhookCount = %d, want 2", all[0].WebhookCount)
		}

		page, err := store.ListInvocations(ctx, ports.ListOptions{Limit: 2, Offset: 1})
		if err != nil {
			t.Fatalf("ListInvocations() error = %v", err)
		}
		if len(page) != 2 || page[0].ID != "list-3" {
			t.Errorf("page = %+v", page)
		}

		failed, err := store.ListInvocations(ctx, ports.ListOptions{Status: domain.InvocationStatusFailed})
		if err != nil {
			t.Fatalf("ListInvocations() error = %v", err)
		}
		if len(failed) != 3 {
			t.Errorf("failed count = %d, want 3", len(failed))
		}

		empty, err := store.ListInvocations(ctx, ports.ListOptions{Offset: 10})
		if err != nil {
			t.Fatalf("ListInvocations() error = %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("past-the-end page = %d, want 0", len(empty))
		}
	})

	t.Run("Events", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		types := []domain.LifecycleEventType{
			domain.LifecycleEventScheduled,
			domain.LifecycleEventSucceeded,
			domain.LifecycleEventDelivered,
		}
		for _, typ := range types {
			event := &domain.LifecycleEvent{
				Type:         typ,
				InvocationID: "ev-1",
				RequestID:    "req-1",
				Timestamp:    time.Now().UTC(),
				Data:         domain.LifecycleSucceededData{ResponseStatusCode: 200},
			}
			if err := store.AppendEvent(ctx, event); err != nil {
				t.Fatalf("AppendEvent() error = %v", err)
			}
		}

		events, err := store.ListEvents(ctx, "ev-1")
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(events) != len(types) {
			t.Fatalf("count = %d, want %d", len(events), len(types))
		}
		for i, e := range events {
			if e.Type != types[i] {
				t.Errorf("events[%d].Type = %q, want %q", i, e.Type, types[i])
			}
			if e.RequestID != "req-1" {
				t.Errorf("events[%d].RequestID = %q", i, e.RequestID)
			}
			data, err := json.Marshal(e.Data)
			if err != nil {
				t.Fatalf("marshal data: %v", err)
			}
			var decoded domain.LifecycleSucceededData
			if err := json.Unmarshal(data, &decoded); err != nil || decoded.ResponseStatusCode != 200 {
				t.Errorf("events[%d].Data = %s", i, data)
			}
		}

		none, err := store.ListEvents(ctx, "other")
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(none) != 0 {
			t.Errorf("unrelated events = %d, want 0", len(none))
		}
	})
}

func newInvocation(id string, created time.Time) *domain.Invocation {
	return &domain.Invocation{
		ID:          id,
		RequestID:   "req-" + id,
		Description: "fetch https://example.com/status",
		Webhooks:    []string{"https://hooks.example.com/a", "https://hooks.example.com/b"},
		Status:      domain.InvocationStatusScheduled,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}
