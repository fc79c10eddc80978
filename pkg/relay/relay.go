// Package relay provides the public API for embedding the webhook relay.
// This is the stable API for external consumers.
package relay

import (
	"github.com/tjfontaine/polyglot-webhook-relay/internal/runtime"
)

// Relay is the main entry point for running the webhook relay.
// See internal/runtime.Relay for full documentation.
type Relay = runtime.Relay

// Option is a functional option for configuring a Relay.
type Option = runtime.Option

// New creates a new Relay with the given options.
// Example:
//
//	r, err := relay.New(
//	    relay.WithConfigFile("config.yaml"),
//	)
//	if err != nil { ... }
//	err = r.Start(ctx)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithConfigFile = runtime.WithConfigFile
	WithConfig     = runtime.WithConfig

	// Advanced options
	WithLogger          = runtime.WithLogger
	WithVersion         = runtime.WithVersion
	WithCompleter       = runtime.WithCompleter
	WithInvocationStore = runtime.WithInvocationStore
	WithEventPublisher  = runtime.WithEventPublisher
)
