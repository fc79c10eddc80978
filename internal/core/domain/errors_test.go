package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      &Error{Kind: ErrorKindValidation, Op: "validate", Message: "description is required"},
			expected: "validation validate: description is required",
		},
		{
			name:     "cause only",
			err:      &Error{Kind: ErrorKindDelivery, Op: "deliver", Err: cause},
			expected: "delivery deliver: connection refused",
		},
		{
			name:     "message and cause",
			err:      &Error{Kind: ErrorKindSynthesis, Op: "synthesize", Message: "backend call failed", Err: cause},
			expected: "synthesis synthesize: backend call failed: connection refused",
		},
		{
			name:     "no op",
			err:      &Error{Kind: ErrorKindEncoding, Message: "bad json"},
			expected: "encoding: bad json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected int
	}{
		{"validation", ErrValidation("bad"), http.StatusBadRequest},
		{"synthesis", ErrSynthesis("bad", nil), http.StatusInternalServerError},
		{"synthesis upstream status", ErrSynthesis("bad", nil).WithStatusCode(http.StatusBadGateway), http.StatusBadGateway},
		{"action", ErrActionExecution("bad", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("outer: %w", ErrDelivery("post failed", cause))

	if !IsKind(wrapped, ErrorKindDelivery) {
		t.Error("expected wrapped delivery error to match")
	}
	if IsKind(wrapped, ErrorKindEncoding) {
		t.Error("expected wrapped delivery error not to match encoding")
	}
	if IsKind(cause, ErrorKindDelivery) {
		t.Error("plain error should not match any kind")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if got := KindOf(wrapped); got != ErrorKindDelivery {
		t.Errorf("KindOf() = %q, want %q", got, ErrorKindDelivery)
	}
}
