package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
)

type received struct {
	body        string
	contentType string
	invocation  string
	custom      string
}

func newWebhook(t *testing.T, status int) (*httptest.Server, chan received) {
	t.Helper()
	ch := make(chan received, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ch <- received{
			body:        string(data),
			contentType: r.Header.Get("Content-Type"),
			invocation:  r.Header.Get(InvocationHeader),
			custom:      r.Header.Get("X-Custom"),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestDeliver_Success(t *testing.T) {
	srv, ch := newWebhook(t, http.StatusOK)

	d := NewDispatcher(Config{Client: srv.Client(), Headers: map[string]string{"X-Custom": "yes"}})
	env := &domain.ResponseEnvelope{StatusCode: 201, Data: json.RawMessage(`{"a":1}`)}

	ctx := WithInvocationID(context.Background(), "inv-1")
	outcome, err := d.Deliver(ctx, env, srv.URL)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	got := <-ch
	if got.body != `{"response_status_code":201,"response_data":{"a":1}}` {
		t.Errorf("body = %s", got.body)
	}
	if got.contentType != "application/json" {
		t.Errorf("Content-Type = %q", got.contentType)
	}
	if got.invocation != "inv-1" {
		t.Errorf("%s = %q, want inv-1", InvocationHeader, got.invocation)
	}
	if got.custom != "yes" {
		t.Errorf("X-Custom = %q", got.custom)
	}
	if outcome.StatusCode != http.StatusOK || !outcome.Succeeded() {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestDeliver_ConfiguredHeadersCannotOverrideEnvelope(t *testing.T) {
	srv, ch := newWebhook(t, http.StatusOK)

	d := NewDispatcher(Config{Client: srv.Client(), Headers: map[string]string{
		"content-type":   "text/plain",
		InvocationHeader: "spoofed",
		"X-Custom":       "yes",
	}})
	env := &domain.ResponseEnvelope{StatusCode: 200, Data: json.RawMessage(`"ok"`)}

	ctx := WithInvocationID(context.Background(), "inv-2")
	if _, err := d.Deliver(ctx, env, srv.URL); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	got := <-ch
	if got.contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got.contentType)
	}
	if got.invocation != "inv-2" {
		t.Errorf("%s = %q, want inv-2", InvocationHeader, got.invocation)
	}
	if got.custom != "yes" {
		t.Errorf("X-Custom = %q", got.custom)
	}
}

func TestDeliver_ScopedClient(t *testing.T) {
	srv, ch := newWebhook(t, http.StatusNoContent)

	d := NewDispatcher(Config{})
	env := &domain.ResponseEnvelope{StatusCode: 200, Data: "ok"}

	if _, err := d.Deliver(context.Background(), env, srv.URL); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := <-ch; got.body != `{"response_status_code":200,"response_data":"ok"}` {
		t.Errorf("body = %s", got.body)
	}
}

func TestDeliver_Non2xx(t *testing.T) {
	srv, _ := newWebhook(t, http.StatusInternalServerError)

	d := NewDispatcher(Config{Client: srv.Client()})
	outcome, err := d.Deliver(context.Background(), &domain.ResponseEnvelope{StatusCode: 200, Data: "x"}, srv.URL)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !domain.IsKind(err, domain.ErrorKindDelivery) {
		t.Errorf("expected delivery error, got %v", err)
	}
	if outcome.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", outcome.StatusCode)
	}
	if outcome.ErrorKind != domain.ErrorKindDelivery || outcome.Succeeded() {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestDeliver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewDispatcher(Config{})
	outcome, err := d.Deliver(context.Background(), &domain.ResponseEnvelope{StatusCode: 200, Data: "x"}, url)
	if !domain.IsKind(err, domain.ErrorKindDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if outcome.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", outcome.StatusCode)
	}
}

func TestDeliver_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := NewDispatcher(Config{Client: srv.Client(), Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := d.Deliver(context.Background(), &domain.ResponseEnvelope{StatusCode: 200, Data: "x"}, srv.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout not applied")
	}
}
