package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/auth"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
)

// =============================================================================
// RequestIDMiddleware Tests
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request ID is in context
		requestID := GetRequestID(r.Context())
		if requestID == "" {
			t.Error("Expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	// Verify X-Request-ID header is set
	requestID := rec.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	// Make two requests
	req1 := httptest.NewRequest("GET", "/", nil)
	rec1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest("GET", "/", nil)
	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, req2)

	id1 := rec1.Header().Get("X-Request-ID")
	id2 := rec2.Header().Get("X-Request-ID")

	if id1 == id2 {
		t.Errorf("Expected unique request IDs, got same: %s", id1)
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	ctx := context.Background()
	if id := GetRequestID(ctx); id != "" {
		t.Errorf("Expected empty string, got %q", id)
	}
}

func TestRequestIDMiddleware_ReusesInboundID(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		reuse   bool
	}{
		{name: "uuid", inbound: "6f1c2a44-4b1e-4c59-9d5e-0c7f3f1f6c11", reuse: true},
		{name: "token", inbound: "job_42.retry:1", reuse: true},
		{name: "spaces", inbound: "not a valid id", reuse: false},
		{name: "too long", inbound: strings.Repeat("a", 200), reuse: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest("POST", "/", nil)
			req.Header.Set(RequestIDHeader, tt.inbound)
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			if got := seen == tt.inbound; got != tt.reuse {
				t.Errorf("reused = %v, want %v (id %q)", got, tt.reuse, seen)
			}
			if rec.Header().Get(RequestIDHeader) != seen {
				t.Errorf("response header = %q, context = %q", rec.Header().Get(RequestIDHeader), seen)
			}
		})
	}
}

// =============================================================================
// TimeoutMiddleware Tests
// =============================================================================

func TestTimeoutMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check that context has deadline
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("Expected context to have deadline")
		}
		if deadline.IsZero() {
			t.Error("Expected non-zero deadline")
		}
		w.WriteHeader(http.StatusOK)
	})

	wrapped := TimeoutMiddleware(30 * time.Second)(handler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	// Create a handler that checks if context is cancelled
	contextCancelled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			contextCancelled = true
		case <-time.After(100 * time.Millisecond):
			// Context should be cancelled before this
		}
		w.WriteHeader(http.StatusOK)
	})

	// Very short timeout
	wrapped := TimeoutMiddleware(10 * time.Millisecond)(handler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if !contextCancelled {
		t.Error("Expected context to be cancelled due to timeout")
	}
}

func TestTimeoutMiddleware_Disabled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("Expected no deadline when timeout is disabled")
		}
	})

	req := httptest.NewRequest("GET", "/", nil)
	TimeoutMiddleware(0)(handler).ServeHTTP(httptest.NewRecorder(), req)
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) domain.Ack {
	t.Helper()
	var ack domain.Ack
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("response is not an ack: %v (%s)", err, rec.Body.String())
	}
	return ack
}

func TestAuthMiddleware(t *testing.T) {
	authenticator := auth.NewAuthenticator([]auth.Key{
		{Hash: auth.HashAPIKey("valid-key-123"), Description: "ci"},
	})

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantMsg    string
	}{
		{name: "valid bearer", header: "Authorization", value: "Bearer valid-key-123", wantStatus: http.StatusOK},
		{name: "valid api key header", header: auth.APIKeyHeader, value: "valid-key-123", wantStatus: http.StatusOK},
		{name: "invalid key", header: "Authorization", value: "Bearer wrong", wantStatus: http.StatusUnauthorized, wantMsg: "Invalid API key"},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantMsg: "missing Authorization header"},
		{name: "without bearer prefix", header: "Authorization", value: "valid-key-123", wantStatus: http.StatusUnauthorized, wantMsg: "invalid Authorization header format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var key *auth.Key
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				key = auth.KeyFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(authenticator)(handler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if key == nil || key.Description != "ci" {
					t.Errorf("key in context = %+v", key)
				}
				return
			}
			ack := decodeAck(t, rec)
			if ack.Code != tt.wantStatus || ack.Msg != tt.wantMsg || ack.Data != "" {
				t.Errorf("ack = %+v", ack)
			}
		})
	}
}

func TestAuthMiddleware_NoKeysConfigured(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	for _, a := range []*auth.Authenticator{nil, auth.NewAuthenticator(nil)} {
		called = false
		req := httptest.NewRequest("POST", "/", nil)
		AuthMiddleware(a)(handler).ServeHTTP(httptest.NewRecorder(), req)
		if !called {
			t.Error("handler not called with auth disabled")
		}
	}
}

// =============================================================================
// LoggingMiddleware Tests
// =============================================================================

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(handler)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Chain RequestIDMiddleware -> LoggingMiddleware -> handler
	wrapped := RequestIDMiddleware(LoggingMiddleware(logger)(testHandler))

	req := httptest.NewRequest("GET", "/test-path", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	output := buf.String()

	// Verify both start and completion logs are present
	if !strings.Contains(output, "request started") {
		t.Error("Expected 'request started' in log output")
	}
	if !strings.Contains(output, "request completed") {
		t.Error("Expected 'request completed' in log output")
	}
	if !strings.Contains(output, "/test-path") {
		t.Error("Expected path in log output")
	}
	if !strings.Contains(output, "bytes=2") {
		t.Errorf("Expected response size in log output, got: %s", output)
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusAccepted, "level=INFO"},
		{http.StatusBadRequest, "level=WARN"},
		{http.StatusBadGateway, "level=ERROR"},
	}

	for _, tt := range tests {
		var buf strings.Builder
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

		wrapped := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", nil))

		if !strings.Contains(buf.String(), tt.level) {
			t.Errorf("status %d: expected %s, got: %s", tt.status, tt.level, buf.String())
		}
	}
}

func TestAddLogField(t *testing.T) {
	var buf strings.Builder
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "custom_field", "custom_value")
		w.WriteHeader(http.StatusOK)
	})

	wrapped := LoggingMiddleware(logger)(testHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	output := buf.String()
	if !strings.Contains(output, "custom_field") || !strings.Contains(output, "custom_value") {
		t.Errorf("Expected custom field in log output, got: %s", output)
	}
}

func TestAddLogField_EmptyValue(t *testing.T) {
	var buf strings.Builder
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "empty_field", "")
		w.WriteHeader(http.StatusOK)
	})

	wrapped := LoggingMiddleware(logger)(testHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	output := buf.String()
	// Empty values should not be added
	if strings.Contains(output, "empty_field") {
		t.Errorf("Empty field should not be in log output, got: %s", output)
	}
}

func TestAddLogField_NoContext(t *testing.T) {
	// Should not panic when called with a context that doesn't have log fields
	ctx := context.Background()
	AddLogField(ctx, "key", "value") // Should be a no-op
}

func TestAddError(t *testing.T) {
	var buf strings.Builder
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddError(r.Context(), errors.New("test error message"))
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := LoggingMiddleware(logger)(testHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	output := buf.String()
	if !strings.Contains(output, "error") || !strings.Contains(output, "test error message") {
		t.Errorf("Expected error in log output, got: %s", output)
	}
}

func TestAddError_Nil(t *testing.T) {
	// Should not panic when called with nil error
	ctx := context.Background()
	AddError(ctx, nil) // Should be a no-op
}
