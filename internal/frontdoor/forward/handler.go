// Package forward is the relay's inbound API: it validates a forward request,
// synthesizes its action and schedules it, answering before the action runs.
package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/metrics"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/orchestrator"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/server"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/webhook"
)

// Scheduler accepts synthesized actions for background execution.
type Scheduler interface {
	Submit(ctx context.Context, inv *domain.Invocation, act ports.Action) *orchestrator.Task
}

const defaultMaxBodyBytes = 1 << 20

type Handler struct {
	synth        ports.Synthesizer
	scheduler    Scheduler
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewHandler(synth ports.Synthesizer, scheduler Scheduler, maxBodyBytes int64, logger *slog.Logger) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{synth: synth, scheduler: scheduler, maxBodyBytes: maxBodyBytes, logger: logger}
}

// HandleForward answers {"code":200,"msg":"success","data":""} once the action is
// scheduled. Validation and synthesis failures are answered synchronously, as is
// a 503 when the scheduler is already draining. Nothing that happens after
// scheduling is reported to the caller.
func (h *Handler) HandleForward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req domain.ForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, domain.ErrValidation(fmt.Sprintf("request body exceeds %d bytes", h.maxBodyBytes)).WithStatusCode(http.StatusRequestEntityTooLarge))
			return
		}
		h.fail(w, r, domain.ErrValidation("invalid JSON body: "+err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	act, err := h.synth.Synthesize(ctx, req.Description)
	if err != nil {
		metrics.IncSynthesisFailure()
		h.fail(w, r, err)
		return
	}

	inv := &domain.Invocation{
		ID:          uuid.New().String(),
		RequestID:   server.GetRequestID(ctx),
		Description: req.Description,
		Webhooks:    req.Webhooks,
		Action:      act.Summary(),
		Status:      domain.InvocationStatusScheduled,
		CreatedAt:   time.Now().UTC(),
	}
	invocationID := inv.ID

	// inv belongs to the scheduler from here on
	task := h.scheduler.Submit(ctx, inv, act)
	if task != nil && errors.Is(task.Err(), orchestrator.ErrShutdown) {
		h.logger.Warn("forward request refused during shutdown",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("invocation_id", invocationID),
		)
		server.AddError(ctx, orchestrator.ErrShutdown)
		metrics.IncInbound(strconv.Itoa(http.StatusServiceUnavailable))
		server.WriteAck(w, http.StatusServiceUnavailable, orchestrator.ErrShutdown.Error())
		return
	}

	server.AddLogField(ctx, "invocation_id", invocationID)
	server.AddLogField(ctx, "action", act.Summary())
	w.Header().Set(webhook.InvocationHeader, invocationID)
	metrics.IncInbound(strconv.Itoa(http.StatusOK))
	server.WriteJSON(w, http.StatusOK, domain.SuccessAck())
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var relayErr *domain.Error
	if errors.As(err, &relayErr) {
		status = relayErr.HTTPStatusCode()
	}

	server.AddError(r.Context(), err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("forward request failed",
			slog.String("request_id", server.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
	metrics.IncInbound(strconv.Itoa(status))
	server.WriteAck(w, status, err.Error())
}
