package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ActionName is the single well-known name a synthesized action must carry.
const ActionName = "handle_request"

// SynthesizedReply is the exact shape the model backend is asked to emit.
type SynthesizedReply struct {
	// Action must equal ActionName
	Action string `json:"action"`

	// Request describes the one HTTP call the action performs
	Request *ActionSpec `json:"request"`
}

// ActionSpec is the structured form of a synthesized action. It is data, never code:
// a fixed executor interprets it against the shared HTTP client.
type ActionSpec struct {
	// Method is the HTTP method (GET, POST, ...)
	Method string `json:"method"`

	// URL is the absolute http/https target
	URL string `json:"url"`

	// Headers are added to the outbound request
	Headers map[string]string `json:"headers,omitempty"`

	// Query parameters are merged into the URL's query string
	Query map[string]string `json:"query,omitempty"`

	// JSON is sent as an application/json body
	JSON json.RawMessage `json:"json,omitempty"`

	// Form is sent as an application/x-www-form-urlencoded body
	Form map[string]string `json:"form,omitempty"`

	// Body is sent verbatim
	Body string `json:"body,omitempty"`
}

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Validate checks the spec against the strict action shape.
func (s *ActionSpec) Validate() error {
	method := strings.ToUpper(strings.TrimSpace(s.Method))
	if method == "" {
		return fmt.Errorf("method is required")
	}
	if !allowedMethods[method] {
		return fmt.Errorf("method %q is not allowed", s.Method)
	}
	if err := ValidateHTTPURL(s.URL); err != nil {
		return fmt.Errorf("url: %w", err)
	}

	bodies := 0
	if len(s.JSON) > 0 && string(s.JSON) != "null" {
		if !json.Valid(s.JSON) {
			return fmt.Errorf("json body is not valid JSON")
		}
		bodies++
	}
	if len(s.Form) > 0 {
		bodies++
	}
	if s.Body != "" {
		bodies++
	}
	if bodies > 1 {
		return fmt.Errorf("only one of json, form, or body may be set")
	}

	for name, value := range s.Headers {
		if !validHeaderName(name) {
			return fmt.Errorf("invalid header name %q", name)
		}
		if strings.ContainsAny(value, "\r\n\x00") {
			return fmt.Errorf("invalid value for header %q", name)
		}
	}
	return nil
}

// Summary is a short, log-safe description of the action (no headers or body).
func (s *ActionSpec) Summary() string {
	return strings.ToUpper(strings.TrimSpace(s.Method)) + " " + s.URL
}

// validHeaderName reports whether name is an RFC 7230 token.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if c >= 0x7f || c <= ' ' {
			return false
		}
		if strings.ContainsRune(`"(),/:;<=>?@[\]{}`, c) {
			return false
		}
	}
	return true
}
