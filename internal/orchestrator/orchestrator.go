// Package orchestrator runs synthesized actions in the background and fans the
// result out to every webhook.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/encode"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/metrics"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/webhook"
)

// FailurePolicy decides what webhooks see when an action fails.
type FailurePolicy string

const (
	// FailurePolicyLog reports the failure to the error handler only.
	FailurePolicyLog FailurePolicy = "log"

	// FailurePolicyNotify also delivers a failure envelope to every webhook.
	FailurePolicyNotify FailurePolicy = "notify"
)

// ParseFailurePolicy parses a configured policy name. Empty means FailurePolicyLog.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailurePolicyLog:
		return FailurePolicyLog, nil
	case FailurePolicyNotify:
		return FailurePolicyNotify, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// ErrorHandler receives background action failures, which no caller observes.
type ErrorHandler func(inv *domain.Invocation, err error)

// ErrShutdown is returned by tasks submitted after Wait was called.
var ErrShutdown = errors.New("orchestrator is shutting down")

const (
	defaultActionTimeout    = 60 * time.Second
	defaultMaxResponseBytes = 10 << 20
)

// Config configures an Orchestrator.
type Config struct {
	// Client is the shared outbound client actions run with (required)
	Client *http.Client

	// Deliverer posts envelopes to webhooks (required)
	Deliverer ports.Deliverer

	// ActionTimeout bounds one action run, including reading its body
	ActionTimeout time.Duration

	// MaxResponseBytes caps the captured target body
	MaxResponseBytes int64

	// Concurrency bounds parallel deliveries per invocation; 0 means unlimited
	Concurrency int

	FailurePolicy FailurePolicy

	// OnError replaces the default handler, which logs at ERROR
	OnError ErrorHandler

	// Store and Events are optional
	Store  ports.InvocationStore
	Events ports.EventPublisher

	Logger *slog.Logger
}

// Orchestrator schedules invocations. It is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("orchestrator: http client is required")
	}
	if cfg.Deliverer == nil {
		return nil, fmt.Errorf("orchestrator: deliverer is required")
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailurePolicyLog
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	o := &Orchestrator{cfg: cfg, logger: cfg.Logger}
	if o.cfg.OnError == nil {
		o.cfg.OnError = o.logError
	}
	return o, nil
}

// Submit schedules act for inv and returns without waiting for it. The work runs
// detached from ctx's cancellation but keeps its values.
func (o *Orchestrator) Submit(ctx context.Context, inv *domain.Invocation, act ports.Action) *Task {
	task := newTask(inv.ID)

	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		task.finish(nil, nil, ErrShutdown)
		return task
	}
	o.inflight.Add(1)
	o.mu.Unlock()

	bg := webhook.WithInvocationID(context.WithoutCancel(ctx), inv.ID)
	go func() {
		defer o.inflight.Done()
		o.run(bg, inv, act, task)
	}()
	return task
}

// Wait stops accepting submissions and blocks until in-flight invocations finish
// or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	o.draining = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, inv *domain.Invocation, act ports.Action, task *Task) {
	metrics.InflightAdd(1)
	defer metrics.InflightAdd(-1)

	logger := o.logger.With(
		slog.String("invocation_id", inv.ID),
		slog.String("request_id", inv.RequestID),
	)

	now := time.Now().UTC()
	inv.Action = act.Summary()
	inv.Status = domain.InvocationStatusScheduled
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	o.record(ctx, logger, inv, true)
	o.publish(ctx, logger, inv, domain.LifecycleEventScheduled, domain.LifecycleScheduledData{
		Action:   inv.Action,
		Webhooks: inv.Webhooks,
	})

	inv.Status = domain.InvocationStatusRunning
	o.record(ctx, logger, inv, false)

	logger.Info("running action", slog.String("action", inv.Action))
	start := time.Now()
	resp, err := o.execute(ctx, act)
	elapsed := time.Since(start)

	var deliveries []domain.DeliveryOutcome
	if err != nil {
		metrics.IncInvocation("failed")
		metrics.IncUnhandledError(string(domain.KindOf(err)))
		o.cfg.OnError(inv, err)

		inv.Status = domain.InvocationStatusFailed
		inv.Error = err.Error()
		o.publish(ctx, logger, inv, domain.LifecycleEventFailed, domain.LifecycleFailedData{
			Error:    err.Error(),
			Duration: elapsed,
		})

		if o.cfg.FailurePolicy == FailurePolicyNotify {
			env := domain.FailureEnvelope(err)
			deliveries = o.fanOut(ctx, logger, inv.Webhooks, func() (*domain.ResponseEnvelope, error) {
				return env, nil
			})
		}
	} else {
		metrics.IncInvocation("succeeded")
		logger.Info("action completed",
			slog.Int("status", resp.StatusCode),
			slog.Int("body_bytes", len(resp.Body)),
			slog.Duration("duration", elapsed),
		)

		inv.Status = domain.InvocationStatusSucceeded
		inv.ResponseStatusCode = resp.StatusCode
		o.publish(ctx, logger, inv, domain.LifecycleEventSucceeded, domain.LifecycleSucceededData{
			ResponseStatusCode: resp.StatusCode,
			Duration:           elapsed,
		})

		deliveries = o.fanOut(ctx, logger, inv.Webhooks, func() (*domain.ResponseEnvelope, error) {
			return encode.Encode(resp)
		})
	}

	if deliveries != nil {
		inv.Deliveries = deliveries
		o.publish(ctx, logger, inv, domain.LifecycleEventDelivered, domain.LifecycleDeliveredData{
			Deliveries: deliveries,
		})
	}

	completed := time.Now().UTC()
	inv.CompletedAt = &completed
	inv.UpdatedAt = completed
	o.record(ctx, logger, inv, false)

	task.finish(resp, deliveries, err)
}

// execute runs the action and captures its response under the action timeout.
func (o *Orchestrator) execute(ctx context.Context, act ports.Action) (*domain.CapturedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
	defer cancel()

	resp, err := act.Run(ctx, o.cfg.Client)
	if err != nil {
		return nil, domain.ErrActionExecution(act.Summary(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, o.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, domain.ErrActionExecution("failed to read response body", err)
	}
	if int64(len(body)) > o.cfg.MaxResponseBytes {
		return nil, domain.ErrActionExecution(fmt.Sprintf("response body exceeds %d bytes", o.cfg.MaxResponseBytes), nil)
	}

	return &domain.CapturedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// fanOut builds and delivers an envelope to every webhook. Each webhook is independent;
// a failure is recorded in its outcome and never affects its siblings.
func (o *Orchestrator) fanOut(ctx context.Context, logger *slog.Logger, webhooks []string, envelope func() (*domain.ResponseEnvelope, error)) []domain.DeliveryOutcome {
	outcomes := make([]domain.DeliveryOutcome, len(webhooks))

	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.Concurrency > 0 {
		g.SetLimit(o.cfg.Concurrency)
	}
	for i, dest := range webhooks {
		i, dest := i, dest
		g.Go(func() error {
			outcomes[i] = o.deliverOne(gctx, logger.With(slog.String("webhook", dest)), dest, envelope)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) deliverOne(ctx context.Context, logger *slog.Logger, dest string, envelope func() (*domain.ResponseEnvelope, error)) domain.DeliveryOutcome {
	env, err := envelope()
	if err != nil {
		metrics.IncDelivery("encoding_error")
		logger.Error("failed to encode response", slog.String("error", err.Error()))
		return domain.DeliveryOutcome{
			Webhook:     dest,
			Error:       err.Error(),
			ErrorKind:   domain.ErrorKindEncoding,
			DeliveredAt: time.Now().UTC(),
		}
	}

	outcome, err := o.cfg.Deliverer.Deliver(ctx, env, dest)
	if outcome == nil {
		outcome = &domain.DeliveryOutcome{Webhook: dest, DeliveredAt: time.Now().UTC()}
	}
	if err != nil {
		if outcome.Error == "" {
			outcome.Error = err.Error()
			outcome.ErrorKind = domain.ErrorKindDelivery
		}
		metrics.IncDelivery("delivery_error")
		logger.Error("webhook delivery failed",
			slog.Int("status", outcome.StatusCode),
			slog.String("error", err.Error()),
		)
		return *outcome
	}

	metrics.IncDelivery("delivered")
	logger.Info("webhook delivered",
		slog.Int("status", outcome.StatusCode),
		slog.Duration("duration", outcome.Duration),
	)
	return *outcome
}

func (o *Orchestrator) logError(inv *domain.Invocation, err error) {
	o.logger.Error("unhandled invocation error",
		slog.String("invocation_id", inv.ID),
		slog.String("request_id", inv.RequestID),
		slog.String("action", inv.Action),
		slog.String("error_kind", string(domain.KindOf(err))),
		slog.String("error", err.Error()),
	)
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, inv *domain.Invocation, create bool) {
	if o.cfg.Store == nil {
		return
	}
	var err error
	if create {
		err = o.cfg.Store.CreateInvocation(ctx, inv)
	} else {
		err = o.cfg.Store.UpdateInvocation(ctx, inv)
	}
	if err != nil {
		logger.Warn("failed to record invocation", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, inv *domain.Invocation, typ domain.LifecycleEventType, data any) {
	if o.cfg.Events == nil {
		return
	}
	event := &domain.LifecycleEvent{
		Type:         typ,
		InvocationID: inv.ID,
		RequestID:    inv.RequestID,
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}
	if err := o.cfg.Events.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish lifecycle event",
			slog.String("event", string(typ)),
			slog.String("error", err.Error()),
		)
	}
}
