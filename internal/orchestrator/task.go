package orchestrator

import (
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
)

// Task is the handle for one submitted invocation. Results are only meaningful
// after Done is closed; no cancellation is exposed.
type Task struct {
	id   string
	done chan struct{}

	err        error
	response   *domain.CapturedResponse
	deliveries []domain.DeliveryOutcome
}

func newTask(id string) *Task {
	return &Task{id: id, done: make(chan struct{})}
}

// ID returns the invocation ID.
func (t *Task) ID() string { return t.id }

// Done is closed once the action has run and every delivery has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the action execution error, or nil on success or while running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Response returns the captured target response, or nil if the action failed or is still running.
func (t *Task) Response() *domain.CapturedResponse {
	select {
	case <-t.done:
		return t.response
	default:
		return nil
	}
}

// Deliveries returns one outcome per webhook in caller order once the task is done.
func (t *Task) Deliveries() []domain.DeliveryOutcome {
	select {
	case <-t.done:
		return t.deliveries
	default:
		return nil
	}
}

func (t *Task) finish(resp *domain.CapturedResponse, deliveries []domain.DeliveryOutcome, err error) {
	t.response = resp
	t.deliveries = deliveries
	t.err = err
	close(t.done)
}
