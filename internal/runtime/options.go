package runtime

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/pkg/config"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/synth"
)

// Option is a functional option for configuring a Relay.
type Option func(*Relay) error

// WithConfigFile loads configuration from path, then the environment.
// A missing file is not an error.
func WithConfigFile(path string) Option {
	return func(r *Relay) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		r.cfg = cfg
		return nil
	}
}

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(r *Relay) error {
		if cfg == nil {
			return errors.New("nil config")
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		r.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithVersion is reported in traces and logs.
func WithVersion(version string) Option {
	return func(r *Relay) error {
		r.version = version
		return nil
	}
}

// WithCompleter replaces the OpenAI-compatible backend client.
func WithCompleter(c synth.Completer) Option {
	return func(r *Relay) error {
		r.completer = c
		return nil
	}
}

// WithInvocationStore sets a custom journal. The caller keeps ownership and closes it.
func WithInvocationStore(store ports.InvocationStore) Option {
	return func(r *Relay) error {
		r.store = store
		return nil
	}
}

// WithEventPublisher sets a custom event publisher. The caller keeps ownership and closes it.
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(r *Relay) error {
		r.events = publisher
		return nil
	}
}
