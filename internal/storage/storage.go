// Package storage opens the configured invocation journal backend.
package storage

import (
	"fmt"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/storage/bolt"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/storage/memory"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/storage/sqlite"
)

// Backend types accepted by Open.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeBolt   = "bolt"
	TypeNone   = "none"
)

// Config selects and locates a journal backend.
type Config struct {
	Type       string
	SQLitePath string
	BoltPath   string

	// MemoryMaxInvocations caps the memory journal; 0 selects memory.DefaultMaxInvocations
	MemoryMaxInvocations int
}

// Open returns the journal for cfg. TypeNone yields a nil store and no error.
func Open(cfg Config) (ports.InvocationStore, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return memory.NewWithLimit(cfg.MemoryMaxInvocations), nil
	case TypeSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("storage: sqlite path is required")
		}
		return sqlite.New(cfg.SQLitePath)
	case TypeBolt:
		if cfg.BoltPath == "" {
			return nil, fmt.Errorf("storage: bolt path is required")
		}
		return bolt.New(cfg.BoltPath)
	case TypeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("storage: unknown type %q", cfg.Type)
	}
}
