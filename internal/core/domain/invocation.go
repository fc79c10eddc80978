package domain

import "time"

// InvocationStatus tracks where an invocation is in the pipeline.
type InvocationStatus string

const (
	InvocationStatusScheduled InvocationStatus = "scheduled"
	InvocationStatusRunning   InvocationStatus = "running"
	InvocationStatusSucceeded InvocationStatus = "succeeded"
	InvocationStatusFailed    InvocationStatus = "failed"
)

// Invocation is one pass through the synthesize-execute-deliver pipeline.
// It is recorded in the operator journal; callers never receive it synchronously.
type Invocation struct {
	// ID uniquely identifies this invocation
	ID string `json:"id"`

	// RequestID is the inbound HTTP request ID, if any
	RequestID string `json:"request_id,omitempty"`

	// Description is the caller's request description
	Description string `json:"description"`

	// Webhooks are the delivery destinations in caller order
	Webhooks []string `json:"webhooks"`

	// Action is a short summary of the synthesized action (method and URL)
	Action string `json:"action,omitempty"`

	// Status is the current state
	Status InvocationStatus `json:"status"`

	// ResponseStatusCode is the target's HTTP status once the action succeeded
	ResponseStatusCode int `json:"response_status_code,omitempty"`

	// Error is the action execution error, if any
	Error string `json:"error,omitempty"`

	// Deliveries holds one outcome per webhook once delivery has finished
	Deliveries []DeliveryOutcome `json:"deliveries,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// InvocationSummary is the list-view projection of an Invocation.
type InvocationSummary struct {
	ID                 string           `json:"id"`
	Action             string           `json:"action,omitempty"`
	Status             InvocationStatus `json:"status"`
	ResponseStatusCode int              `json:"response_status_code,omitempty"`
	WebhookCount       int              `json:"webhook_count"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Summarize projects an invocation into its summary.
func (inv *Invocation) Summarize() InvocationSummary {
	return InvocationSummary{
		ID:                 inv.ID,
		Action:             inv.Action,
		Status:             inv.Status,
		ResponseStatusCode: inv.ResponseStatusCode,
		WebhookCount:       len(inv.Webhooks),
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
	}
}

// Clone returns a deep copy of inv.
func (inv *Invocation) Clone() *Invocation {
	out := *inv
	out.Webhooks = append([]string(nil), inv.Webhooks...)
	if inv.Deliveries != nil {
		out.Deliveries = append([]DeliveryOutcome(nil), inv.Deliveries...)
	}
	if inv.CompletedAt != nil {
		t := *inv.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
