package domain

import (
	"net/http"
	"time"
)

// CapturedResponse is a completed target response with its body read into memory,
// so it can be encoded once per webhook.
type CapturedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the declared Content-Type header.
func (r *CapturedResponse) ContentType() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// ResponseEnvelope is the normalized body POSTed to every webhook.
type ResponseEnvelope struct {
	// StatusCode is the target's HTTP status (0 for failure envelopes)
	StatusCode int `json:"response_status_code"`

	// Data is a JSON value, a text string, or a base64 string
	Data any `json:"response_data"`

	// Error is only set on failure envelopes
	Error string `json:"error,omitempty"`
}

// FailureEnvelope builds the envelope delivered when an action fails and the
// failure policy asks for webhooks to be notified.
func FailureEnvelope(err error) *ResponseEnvelope {
	return &ResponseEnvelope{StatusCode: 0, Data: nil, Error: err.Error()}
}

// DeliveryOutcome records one POST of an envelope to one webhook.
type DeliveryOutcome struct {
	// Webhook is the destination URL
	Webhook string `json:"webhook"`

	// StatusCode is the webhook's HTTP status, 0 when no response was received
	StatusCode int `json:"status_code,omitempty"`

	// Duration is the time spent on the attempt
	Duration time.Duration `json:"duration_ns"`

	// Error is set when encoding or delivery failed
	Error string `json:"error,omitempty"`

	// ErrorKind is "encoding" or "delivery" when Error is set
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// DeliveredAt is when the attempt finished
	DeliveredAt time.Time `json:"delivered_at"`
}

// Succeeded reports whether the webhook accepted the envelope.
func (o *DeliveryOutcome) Succeeded() bool {
	return o.Error == ""
}
