package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ForwardRequest is the inbound description of an outbound HTTP request together
// with the webhooks that should receive its outcome.
type ForwardRequest struct {
	// Description is the free-text (or pseudo-code) description of the request
	Description string `json:"description"`

	// Webhooks receive the response envelope once the action completes.
	// The field is required; an empty list is allowed.
	Webhooks []string `json:"webhooks"`
}

// UnmarshalJSON accepts "http_desc" as an alias for "description".
func (r *ForwardRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Description *string   `json:"description"`
		HTTPDesc    *string   `json:"http_desc"`
		Webhooks    *[]string `json:"webhooks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Description != nil:
		r.Description = *raw.Description
	case raw.HTTPDesc != nil:
		r.Description = *raw.HTTPDesc
	}
	r.Webhooks = nil
	if raw.Webhooks != nil {
		r.Webhooks = *raw.Webhooks
		if r.Webhooks == nil {
			r.Webhooks = []string{}
		}
	}
	return nil
}

// Validate checks the request before any backend call is made.
func (r *ForwardRequest) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return ErrValidation("description is required")
	}
	if r.Webhooks == nil {
		return ErrValidation("webhooks is required")
	}
	for i, hook := range r.Webhooks {
		if err := ValidateHTTPURL(hook); err != nil {
			return ErrValidation(fmt.Sprintf("webhooks[%d]: %v", i, err))
		}
	}
	return nil
}

// ValidateHTTPURL checks that raw is an absolute http or https URL with a host.
func ValidateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" || u.Hostname() == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}

// Ack is the immediate acknowledgment returned once an action is scheduled.
type Ack struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

// SuccessAck is returned to the caller as soon as the action is scheduled.
func SuccessAck() Ack {
	return Ack{Code: 200, Msg: "success", Data: ""}
}
