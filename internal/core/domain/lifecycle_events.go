package domain

import (
	"time"
)

// LifecycleEvent represents a high-level lifecycle event for an invocation.
// These events are published to event buses for decoupled consumers (storage, analytics, etc.).
type LifecycleEvent struct {
	Type         LifecycleEventType `json:"type"`
	InvocationID string             `json:"invocation_id"`
	RequestID    string             `json:"request_id,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Data         any                `json:"data,omitempty"`
}

// LifecycleEventType identifies the type of lifecycle event.
type LifecycleEventType string

const (
	LifecycleEventScheduled LifecycleEventType = "invocation.scheduled"
	LifecycleEventSucceeded LifecycleEventType = "invocation.succeeded"
	LifecycleEventFailed    LifecycleEventType = "invocation.failed"
	LifecycleEventDelivered LifecycleEventType = "invocation.delivered"
)

// LifecycleScheduledData contains data for invocation.scheduled events.
type LifecycleScheduledData struct {
	Action   string   `json:"action"`
	Webhooks []string `json:"webhooks"`
}

// LifecycleSucceededData contains data for invocation.succeeded events.
type LifecycleSucceededData struct {
	ResponseStatusCode int           `json:"response_status_code"`
	Duration           time.Duration `json:"duration_ns"`
}

// LifecycleFailedData contains data for invocation.failed events.
type LifecycleFailedData struct {
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration_ns"`
}

// LifecycleDeliveredData contains data for invocation.delivered events.
type LifecycleDeliveredData struct {
	Deliveries []DeliveryOutcome `json:"deliveries"`
}
