// Package runtime wires the relay's components together and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/adapters/events/direct"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/adapters/events/redisstream"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/api/controlplane"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/api/openai"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/auth"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/frontdoor/forward"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/metrics"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/orchestrator"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/pkg/config"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/pkg/safehttp"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/server"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/storage"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/synth"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/telemetry"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/webhook"
)

const serviceName = "polyglot-webhook-relay"

// Relay is the main entry point for running the webhook relay.
// It owns the shared outbound client, the journal, the background
// orchestrator and the HTTP server.
type Relay struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string

	// Dependencies (injected via options or built from cfg)
	completer synth.Completer
	store     ports.InvocationStore
	events    ports.EventPublisher

	ownStore  bool
	ownEvents bool

	client        *http.Client
	orchestrator  *orchestrator.Orchestrator
	server        *server.Server
	traceShutdown telemetry.ShutdownFunc

	mu      sync.Mutex
	started bool
	serveWG sync.WaitGroup
}

// New builds a Relay. WithConfig or WithConfigFile is required.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if r.cfg == nil {
		return nil, errors.New("config required (use WithConfig or WithConfigFile)")
	}

	if err := r.init(); err != nil {
		r.closeResources()
		return nil, err
	}
	return r, nil
}

func (r *Relay) init() error {
	cfg := r.cfg

	shutdown, err := telemetry.InitTracer(telemetry.Options{
		ServiceName: serviceName,
		Version:     r.version,
		Enabled:     cfg.Telemetry.Enabled,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	r.traceShutdown = shutdown

	if r.store == nil {
		store, err := storage.Open(storage.Config{
			Type:                 cfg.Storage.Type,
			SQLitePath:           cfg.Storage.SQLite.Path,
			BoltPath:             cfg.Storage.Bolt.Path,
			MemoryMaxInvocations: cfg.Storage.Memory.MaxInvocations,
		})
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		r.store = store
		r.ownStore = true
	}

	if r.events == nil {
		events, err := r.newEventPublisher()
		if err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
		r.events = events
		r.ownEvents = true
	}

	// One client for every action and delivery, built once.
	transport := safehttp.NewTransport(safehttp.Options{
		ConnectTimeout:       cfg.HTTPClient.ConnectTimeout,
		InsecureSkipVerify:   cfg.HTTPClient.InsecureSkipVerify,
		BlockPrivateNetworks: cfg.HTTPClient.BlockPrivateNetworks,
	})
	r.client = safehttp.Client(otelhttp.NewTransport(transport), cfg.HTTPClient.Timeout)

	if r.completer == nil {
		llmHTTP := &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.LLM.Timeout,
		}
		r.completer = openai.NewClient(cfg.LLM.APIKey,
			openai.WithBaseURL(cfg.LLM.BaseURL),
			openai.WithHTTPClient(llmHTTP),
		)
	}

	synthCfg := synth.Config{
		Model:                cfg.LLM.Model,
		JSONMode:             cfg.LLM.JSONMode,
		MaxDescriptionTokens: cfg.LLM.MaxDescriptionTokens,
		Logger:               r.logger,
	}
	if cfg.LLM.Temperature != nil {
		temp := float32(*cfg.LLM.Temperature)
		synthCfg.Temperature = &temp
	}
	synthesizer := synth.New(r.completer, synthCfg)

	policy, err := orchestrator.ParseFailurePolicy(cfg.Delivery.FailurePolicy)
	if err != nil {
		return err
	}
	r.orchestrator, err = orchestrator.New(orchestrator.Config{
		Client: r.client,
		Deliverer: webhook.NewDispatcher(webhook.Config{
			Client:    r.client,
			Timeout:   cfg.Delivery.Timeout,
			Headers:   cfg.Delivery.Headers,
			UserAgent: cfg.Delivery.UserAgent,
		}),
		ActionTimeout:    cfg.Action.Timeout,
		MaxResponseBytes: cfg.Action.MaxResponseBytes,
		Concurrency:      cfg.Delivery.Concurrency,
		FailurePolicy:    policy,
		Store:            r.store,
		Events:           r.events,
		Logger:           r.logger,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	r.server = server.New(server.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         r.logger,
	})
	r.routes(synthesizer)
	return nil
}

func (r *Relay) newEventPublisher() (ports.EventPublisher, error) {
	switch r.cfg.Events.Type {
	case "", "direct":
		if r.store == nil {
			return nil, errors.New("direct events require storage")
		}
		return direct.NewPublisher(r.store)
	case "redis":
		redisCfg := r.cfg.Events.Redis
		return redisstream.NewPublisher(redisstream.Config{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			Stream:   redisCfg.Stream,
			MaxLen:   redisCfg.MaxLen,
		}, r.logger)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown events type %q", r.cfg.Events.Type)
	}
}

func (r *Relay) routes(synthesizer ports.Synthesizer) {
	keys := make([]auth.Key, 0, len(r.cfg.Server.APIKeys))
	for _, k := range r.cfg.Server.APIKeys {
		keys = append(keys, auth.Key{Hash: k.KeyHash, Description: k.Description})
	}
	authenticator := auth.NewAuthenticator(keys)

	router := r.server.Router
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		server.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if r.cfg.Metrics.Enabled {
		router.Handle("/metrics", metrics.Handler())
	}

	fwd := forward.NewHandler(synthesizer, r.orchestrator, r.cfg.Server.MaxBodyBytes, r.logger)
	router.Group(func(g chi.Router) {
		g.Use(server.AuthMiddleware(authenticator))
		g.Post("/", fwd.HandleForward)
		g.Post("/v1/forward", fwd.HandleForward)
		g.Mount("/admin", controlplane.NewServer(r.cfg, r.store))
	})

	r.logger.Info("routes registered",
		slog.Bool("auth", authenticator.Enabled()),
		slog.Bool("metrics", r.cfg.Metrics.Enabled),
		slog.Bool("journal", r.store != nil))
}

// Handler returns the relay's HTTP handler, for embedding in another server.
func (r *Relay) Handler() http.Handler {
	return r.server.Router
}

// Start begins serving on the configured port in the background.
func (r *Relay) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return r.Serve(ctx, ln)
}

// Serve begins serving on ln in the background.
func (r *Relay) Serve(_ context.Context, ln net.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("relay already started")
	}
	r.started = true

	r.serveWG.Add(1)
	go func() {
		defer r.serveWG.Done()
		if err := r.server.Serve(ln); err != nil {
			r.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	r.logger.Info("relay started",
		slog.String("addr", ln.Addr().String()),
		slog.String("model", r.cfg.LLM.Model),
		slog.String("storage", r.cfg.Storage.Type),
		slog.String("events", r.cfg.Events.Type))
	return nil
}

// Shutdown stops the server, waits for scheduled actions and their deliveries,
// then releases the shared client, the journal and the tracer.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("shutting down relay")

	var errs []error
	if r.started {
		if err := r.server.Shutdown(ctx); err != nil {
			r.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		r.serveWG.Wait()
	}

	if err := r.orchestrator.Wait(ctx); err != nil {
		r.logger.Error("background tasks did not finish", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	r.client.CloseIdleConnections()
	r.closeResources()

	if err := r.traceShutdown(ctx); err != nil {
		r.logger.Error("failed to flush tracer", slog.String("error", err.Error()))
	}

	r.logger.Info("relay shutdown complete")
	return errors.Join(errs...)
}

func (r *Relay) closeResources() {
	if r.ownEvents && r.events != nil {
		if err := r.events.Close(); err != nil {
			r.logger.Error("failed to close events", slog.String("error", err.Error()))
		}
	}
	if r.ownStore && r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}
}
