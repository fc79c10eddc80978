package forward

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/action"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/api/openai"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/orchestrator"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/synth"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/webhook"
)

type stubSynth struct {
	act   ports.Action
	err   error
	calls int
}

func (s *stubSynth) Synthesize(_ context.Context, _ string) (ports.Action, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.act, nil
}

type recordingScheduler struct {
	invocations []*domain.Invocation
}

func (r *recordingScheduler) Submit(_ context.Context, inv *domain.Invocation, _ ports.Action) *orchestrator.Task {
	r.invocations = append(r.invocations, inv)
	return nil
}

func mustCompile(t *testing.T) *action.Action {
	t.Helper()
	act, err := action.Compile(&domain.ActionSpec{Method: "GET", URL: "https://example.com/status"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return act
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) domain.Ack {
	t.Helper()
	var ack domain.Ack
	if err := json.NewDecoder(rec.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	return ack
}

func TestHandleForward_Scheduled(t *testing.T) {
	syn := &stubSynth{act: mustCompile(t)}
	sched := &recordingScheduler{}
	h := NewHandler(syn, sched, 0, nil)

	body := `{"description":"get the status page","webhooks":["https://hooks.example.com/a"]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleForward(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	ack := decodeAck(t, rec)
	if ack != domain.SuccessAck() {
		t.Errorf("ack = %+v", ack)
	}
	if len(sched.invocations) != 1 {
		t.Fatalf("scheduled %d invocations, want 1", len(sched.invocations))
	}
	inv := sched.invocations[0]
	if inv.ID == "" || rec.Header().Get(webhook.InvocationHeader) != inv.ID {
		t.Errorf("invocation header = %q, id = %q", rec.Header().Get(webhook.InvocationHeader), inv.ID)
	}
	if inv.Status != domain.InvocationStatusScheduled {
		t.Errorf("Status = %q", inv.Status)
	}
	if len(inv.Webhooks) != 1 || inv.Webhooks[0] != "https://hooks.example.com/a" {
		t.Errorf("Webhooks = %v", inv.Webhooks)
	}
}

func TestHandleForward_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		synthErr   error
		wantStatus int
		wantSynth  int
		wantMsg    string
	}{
		{
			name:       "malformed json",
			body:       `{"description":`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid JSON body",
		},
		{
			name:       "missing description",
			body:       `{"webhooks":[]}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "description is required",
		},
		{
			name:       "missing webhooks",
			body:       `{"description":"x"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "webhooks is required",
		},
		{
			name:       "null webhooks",
			body:       `{"http_desc":"x","webhooks":null}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "webhooks is required",
		},
		{
			name:       "malformed webhook",
			body:       `{"description":"x","webhooks":["not a url"]}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "webhooks[0]",
		},
		{
			name:       "non-http webhook",
			body:       `{"description":"x","webhooks":["https://ok.example.com","ftp://files.example.com"]}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "webhooks[1]",
		},
		{
			name:       "synthesis failure",
			body:       `{"description":"x","webhooks":["https://hooks.example.com"]}`,
			synthErr:   domain.ErrSynthesis("reply is not a valid action object", errors.New("boom")),
			wantStatus: http.StatusInternalServerError,
			wantSynth:  1,
			wantMsg:    "reply is not a valid action object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syn := &stubSynth{act: mustCompile(t), err: tt.synthErr}
			sched := &recordingScheduler{}
			h := NewHandler(syn, sched, 0, nil)

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.HandleForward(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			ack := decodeAck(t, rec)
			if ack.Code != tt.wantStatus {
				t.Errorf("ack code = %d, want %d", ack.Code, tt.wantStatus)
			}
			if !strings.Contains(ack.Msg, tt.wantMsg) {
				t.Errorf("ack msg = %q, want it to contain %q", ack.Msg, tt.wantMsg)
			}
			if syn.calls != tt.wantSynth {
				t.Errorf("synth calls = %d, want %d", syn.calls, tt.wantSynth)
			}
			if len(sched.invocations) != 0 {
				t.Errorf("scheduled %d invocations, want 0", len(sched.invocations))
			}
		})
	}
}

func TestHandleForward_BodyTooLarge(t *testing.T) {
	syn := &stubSynth{act: mustCompile(t)}
	h := NewHandler(syn, &recordingScheduler{}, 32, nil)

	body := `{"description":"` + strings.Repeat("a", 100) + `","webhooks":[]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleForward(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if syn.calls != 0 {
		t.Errorf("synth calls = %d, want 0", syn.calls)
	}
}

func TestHandleForward_EmptyWebhooksStillScheduled(t *testing.T) {
	sched := &recordingScheduler{}
	h := NewHandler(&stubSynth{act: mustCompile(t)}, sched, 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"http_desc":"get the status page","webhooks":[]}`))
	rec := httptest.NewRecorder()
	h.HandleForward(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(sched.invocations) != 1 || len(sched.invocations[0].Webhooks) != 0 {
		t.Errorf("unexpected invocations: %+v", sched.invocations)
	}
}

type replyCompleter struct {
	content string
}

func (c *replyCompleter) CreateChatCompletion(_ context.Context, _ *openai.ChatCompletionRequest, _ *openai.RequestOptions) (*openai.ChatCompletionResponse, error) {
	return &openai.ChatCompletionResponse{
		Choices: []openai.Choice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: c.content}}},
	}, nil
}

type hookSink struct {
	mu     sync.Mutex
	bodies []string
	ids    []string
}

func (s *hookSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.bodies = append(s.bodies, string(body))
	s.ids = append(s.ids, r.Header.Get(webhook.InvocationHeader))
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *hookSink) snapshot() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...), append([]string(nil), s.ids...)
}

func newPipeline(t *testing.T, reply string) (*Handler, *orchestrator.Orchestrator) {
	t.Helper()
	client := &http.Client{}
	orch, err := orchestrator.New(orchestrator.Config{
		Client:    client,
		Deliverer: webhook.NewDispatcher(webhook.Config{Client: client, Timeout: 2 * time.Second}),
	})
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}
	s := synth.New(&replyCompleter{content: reply}, synth.Config{Model: "gpt-4o-mini", JSONMode: true})
	return NewHandler(s, orch, 0, nil), orch
}

func TestHandleForward_EndToEnd(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer target.Close()
	sink := &hookSink{}
	hook := httptest.NewServer(sink)
	defer hook.Close()

	reply := `{"action":"handle_request","request":{"method":"GET","url":"` + target.URL + `/status"}}`
	h, orch := newPipeline(t, reply)

	body := `{"description":"get the status page","webhooks":["` + hook.URL + `"]}`
	rec := httptest.NewRecorder()
	h.HandleForward(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	bodies, ids := sink.snapshot()
	if len(bodies) != 1 {
		t.Fatalf("webhook received %d posts, want 1", len(bodies))
	}
	if !strings.Contains(bodies[0], "ok") {
		t.Errorf("webhook body = %q", bodies[0])
	}
	if ids[0] != rec.Header().Get(webhook.InvocationHeader) {
		t.Errorf("delivery invocation id = %q, ack header = %q", ids[0], rec.Header().Get(webhook.InvocationHeader))
	}
}

func TestHandleForward_InvalidModelReplyDeliversNothing(t *testing.T) {
	sink := &hookSink{}
	hook := httptest.NewServer(sink)
	defer hook.Close()

	h, orch := newPipeline(t, "Sure! Here is the request you asked for.")

	body := `{"description":"get the status page","webhooks":["` + hook.URL + `"]}`
	rec := httptest.NewRecorder()
	h.HandleForward(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if bodies, _ := sink.snapshot(); len(bodies) != 0 {
		t.Errorf("webhook received %d posts, want 0", len(bodies))
	}
}

func TestHandleForward_RefusedWhileDraining(t *testing.T) {
	h, orch := newPipeline(t, `{"action":"handle_request","request":{"method":"GET","url":"https://example.com/status"}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	body := `{"description":"get the status page","webhooks":["https://hooks.example.com/a"]}`
	rec := httptest.NewRecorder()
	h.HandleForward(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	ack := decodeAck(t, rec)
	if ack.Code != http.StatusServiceUnavailable || ack == domain.SuccessAck() {
		t.Errorf("ack = %+v", ack)
	}
	if rec.Header().Get(webhook.InvocationHeader) != "" {
		t.Errorf("invocation header set on a refused request: %q", rec.Header().Get(webhook.InvocationHeader))
	}
}
