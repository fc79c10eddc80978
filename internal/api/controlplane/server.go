// Package controlplane serves the operator's read-only view of the relay:
// process stats, effective configuration and the invocation journal.
package controlplane

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/pkg/config"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Server struct {
	router    *chi.Mux
	startTime time.Time
	cfg       *config.Config
	store     ports.InvocationStore
}

// NewServer builds the control plane. store may be nil when the journal is disabled.
func NewServer(cfg *config.Config, store ports.InvocationStore) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		cfg:       cfg,
		store:     store,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/stats", s.handleStats)
	s.router.Get("/overview", s.handleOverview)
	s.router.Get("/invocations", s.handleListInvocations)
	s.router.Get("/invocations/{invocation_id}", s.handleInvocationDetail)
	s.router.Get("/invocations/{invocation_id}/events", s.handleInvocationEvents)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeJSON(w, http.StatusOK, StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	})
}

// OverviewResponse is the effective configuration with secrets left out.
type OverviewResponse struct {
	LLM      LLMSummary      `json:"llm"`
	Action   ActionSummary   `json:"action"`
	Delivery DeliverySummary `json:"delivery"`
	Storage  StorageSummary  `json:"storage"`
	Events   EventsSummary   `json:"events"`
	Auth     AuthSummary     `json:"auth"`
}

type LLMSummary struct {
	BaseURL              string `json:"base_url"`
	Model                string `json:"model"`
	JSONMode             bool   `json:"json_mode"`
	MaxDescriptionTokens int    `json:"max_description_tokens,omitempty"`
}

type ActionSummary struct {
	Timeout              string `json:"timeout"`
	MaxResponseBytes     int64  `json:"max_response_bytes"`
	BlockPrivateNetworks bool   `json:"block_private_networks"`
}

type DeliverySummary struct {
	Timeout       string `json:"timeout"`
	Concurrency   int    `json:"concurrency"`
	FailurePolicy string `json:"failure_policy"`
}

type StorageSummary struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"`
	Path    string `json:"path,omitempty"`
}

type EventsSummary struct {
	Type   string `json:"type"`
	Stream string `json:"stream,omitempty"`
}

type AuthSummary struct {
	Enabled bool `json:"enabled"`
	Keys    int  `json:"keys"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "configuration not available")
		return
	}
	cfg := s.cfg

	resp := OverviewResponse{
		LLM: LLMSummary{
			BaseURL:              cfg.LLM.BaseURL,
			Model:                cfg.LLM.Model,
			JSONMode:             cfg.LLM.JSONMode,
			MaxDescriptionTokens: cfg.LLM.MaxDescriptionTokens,
		},
		Action: ActionSummary{
			Timeout:              cfg.Action.Timeout.String(),
			MaxResponseBytes:     cfg.Action.MaxResponseBytes,
			BlockPrivateNetworks: cfg.HTTPClient.BlockPrivateNetworks,
		},
		Delivery: DeliverySummary{
			Timeout:       cfg.Delivery.Timeout.String(),
			Concurrency:   cfg.Delivery.Concurrency,
			FailurePolicy: cfg.Delivery.FailurePolicy,
		},
		Storage: StorageSummary{
			Enabled: s.store != nil,
			Type:    cfg.Storage.Type,
		},
		Events: EventsSummary{
			Type: cfg.Events.Type,
		},
		Auth: AuthSummary{
			Enabled: len(cfg.Server.APIKeys) > 0,
			Keys:    len(cfg.Server.APIKeys),
		},
	}

	switch cfg.Storage.Type {
	case "sqlite":
		resp.Storage.Path = cfg.Storage.SQLite.Path
	case "bolt":
		resp.Storage.Path = cfg.Storage.Bolt.Path
	}
	if cfg.Events.Type == "redis" {
		resp.Events.Stream = cfg.Events.Redis.Stream
	}

	writeJSON(w, http.StatusOK, resp)
}

// InvocationListResponse is one page of invocations. Count is the size of this
// page, not of the journal.
type InvocationListResponse struct {
	Invocations []*domain.InvocationSummary `json:"invocations"`
	Count       int                         `json:"count"`
	Limit       int                         `json:"limit"`
	Offset      int                         `json:"offset"`
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	limit := defaultListLimit
	offset := 0

	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= maxListLimit {
			limit = v
		}
	}
	if q := r.URL.Query().Get("offset"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v >= 0 {
			offset = v
		}
	}

	status := domain.InvocationStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.InvocationStatusScheduled, domain.InvocationStatusRunning,
		domain.InvocationStatusSucceeded, domain.InvocationStatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(status)))
		return
	}

	invocations, err := s.store.ListInvocations(r.Context(), ports.ListOptions{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invocations: "+err.Error())
		return
	}
	if invocations == nil {
		invocations = []*domain.InvocationSummary{}
	}

	writeJSON(w, http.StatusOK, InvocationListResponse{
		Invocations: invocations,
		Count:       len(invocations),
		Limit:       limit,
		Offset:      offset,
	})
}

func (s *Server) handleInvocationDetail(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	id := chi.URLParam(r, "invocation_id")
	inv, err := s.store.GetInvocation(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "invocation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleInvocationEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	id := chi.URLParam(r, "invocation_id")
	if _, err := s.store.GetInvocation(r.Context(), id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invocation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*domain.LifecycleEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"invocation_id": id,
		"events":        events,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
