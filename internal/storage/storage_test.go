package storage

import (
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     Config
		wantNil bool
		wantErr bool
	}{
		{name: "default memory", cfg: Config{}},
		{name: "memory", cfg: Config{Type: TypeMemory}},
		{name: "capped memory", cfg: Config{Type: TypeMemory, MemoryMaxInvocations: 5}},
		{name: "sqlite", cfg: Config{Type: TypeSQLite, SQLitePath: filepath.Join(dir, "relay.db")}},
		{name: "bolt", cfg: Config{Type: TypeBolt, BoltPath: filepath.Join(dir, "relay.bolt")}},
		{name: "none", cfg: Config{Type: TypeNone}, wantNil: true},
		{name: "sqlite without path", cfg: Config{Type: TypeSQLite}, wantErr: true},
		{name: "bolt without path", cfg: Config{Type: TypeBolt}, wantErr: true},
		{name: "unknown", cfg: Config{Type: "postgres"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if tt.wantNil {
				if store != nil {
					t.Errorf("store = %T, want nil", store)
				}
				return
			}
			if store == nil {
				t.Fatal("store is nil")
			}
			if err := store.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}
