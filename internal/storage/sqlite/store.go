package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
)

// Store is a SQLite implementation of InvocationStore
type Store struct {
	db *sql.DB
}

var _ ports.InvocationStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			description TEXT NOT NULL,
			webhooks TEXT NOT NULL,
			action TEXT,
			status TEXT NOT NULL,
			response_status_code INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			deliveries TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS invocation_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			invocation_id TEXT NOT NULL,
			type TEXT NOT NULL,
			request_id TEXT,
			data TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_created ON invocations(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_invocation_events_invocation ON invocation_events(invocation_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) CreateInvocation(ctx context.Context, inv *domain.Invocation) error {
	webhooks, deliveries, err := marshalLists(inv)
	if err != nil {
		return err
	}

	query := `INSERT INTO invocations (id, request_id, description, webhooks, action, status,
	          response_status_code, error, deliveries, created_at, updated_at, completed_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		inv.ID, inv.RequestID, inv.Description, webhooks, inv.Action, string(inv.Status),
		inv.ResponseStatusCode, inv.Error, deliveries, inv.CreatedAt, inv.UpdatedAt, nullTime(inv.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create invocation: %w", err)
	}
	return nil
}

func (s *Store) UpdateInvocation(ctx context.Context, inv *domain.Invocation) error {
	webhooks, deliveries, err := marshalLists(inv)
	if err != nil {
		return err
	}

	query := `UPDATE invocations SET request_id = ?, description = ?, webhooks = ?, action = ?, status = ?,
	          response_status_code = ?, error = ?, deliveries = ?, updated_at = ?, completed_at = ?
	          WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query,
		inv.RequestID, inv.Description, webhooks, inv.Action, string(inv.Status),
		inv.ResponseStatusCode, inv.Error, deliveries, inv.UpdatedAt, nullTime(inv.CompletedAt),
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invocation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("invocation %s: %w", inv.ID, ports.ErrNotFound)
	}
	return nil
}

func (s *Store) GetInvocation(ctx context.Context, id string) (*domain.Invocation, error) {
	query := `SELECT id, request_id, description, webhooks, action, status, response_status_code,
	          error, deliveries, created_at, updated_at, completed_at
	          FROM invocations WHERE id = ?`

	var inv domain.Invocation
	var requestID, action, errMsg, deliveries sql.NullString
	var webhooks, status string
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID, &requestID, &inv.Description, &webhooks, &action, &status, &inv.ResponseStatusCode,
		&errMsg, &deliveries, &inv.CreatedAt, &inv.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invocation %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invocation: %w", err)
	}

	inv.RequestID = requestID.String
	inv.Action = action.String
	inv.Error = errMsg.String
	inv.Status = domain.InvocationStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		inv.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(webhooks), &inv.Webhooks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhooks: %w", err)
	}
	if deliveries.Valid && deliveries.String != "" {
		if err := json.Unmarshal([]byte(deliveries.String), &inv.Deliveries); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deliveries: %w", err)
		}
	}

	return &inv, nil
}

func (s *Store) ListInvocations(ctx context.Context, opts ports.ListOptions) ([]*domain.InvocationSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = ports.DefaultListLimit
	}

	query := `SELECT id, action, status, response_status_code, json_array_length(webhooks), created_at, updated_at
	          FROM invocations`
	args := []any{}
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	result := []*domain.InvocationSummary{}
	for rows.Next() {
		var (
			summary domain.InvocationSummary
			action  sql.NullString
			status  string
		)
		if err := rows.Scan(&summary.ID, &action, &status, &summary.ResponseStatusCode,
			&summary.WebhookCount, &summary.CreatedAt, &summary.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		summary.Action = action.String
		summary.Status = domain.InvocationStatus(status)
		result = append(result, &summary)
	}

	return result, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	var data sql.NullString
	if event.Data != nil {
		b, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}

	query := `INSERT INTO invocation_events (invocation_id, type, request_id, data, created_at)
	          VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, event.InvocationID, string(event.Type), event.RequestID, data, event.Timestamp); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, invocationID string) ([]*domain.LifecycleEvent, error) {
	query := `SELECT type, request_id, data, created_at FROM invocation_events
	          WHERE invocation_id = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, invocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*domain.LifecycleEvent{}
	for rows.Next() {
		var (
			event           domain.LifecycleEvent
			typ             string
			requestID, data sql.NullString
		)
		if err := rows.Scan(&typ, &requestID, &data, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.InvocationID = invocationID
		event.Type = domain.LifecycleEventType(typ)
		event.RequestID = requestID.String
		if data.Valid {
			event.Data = json.RawMessage(data.String)
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func marshalLists(inv *domain.Invocation) (string, sql.NullString, error) {
	webhooks, err := json.Marshal(inv.Webhooks)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to marshal webhooks: %w", err)
	}
	var deliveries sql.NullString
	if inv.Deliveries != nil {
		b, err := json.Marshal(inv.Deliveries)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("failed to marshal deliveries: %w", err)
		}
		deliveries = sql.NullString{String: string(b), Valid: true}
	}
	return string(webhooks), deliveries, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
