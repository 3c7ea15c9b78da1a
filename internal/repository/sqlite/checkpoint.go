// Package sqlite stores conversation checkpoints in a local SQLite file.
// It backs the CLI and MCP binaries, which run without a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
	"labmate/internal/domain/repositories"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeLayout is fixed width so updated_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CheckpointStore implements repositories.CheckpointRepository on SQLite.
type CheckpointStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ repositories.CheckpointRepository = (*CheckpointStore)(nil)

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, logger *slog.Logger) (*CheckpointStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &CheckpointStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

func (s *CheckpointStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id  TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			version    INTEGER NOT NULL,
			phase      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load implements repositories.CheckpointRepository.
func (s *CheckpointStore) Load(ctx context.Context, threadID string) (*orchestration.ConversationState, error) {
	var (
		raw     string
		version int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT state, version FROM checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&raw, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("thread %s not found", threadID)}
		}
		return nil, fmt.Errorf("sqlite: load checkpoint: %w", err)
	}

	var state orchestration.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("sqlite: decode checkpoint %s: %w", threadID, err)
	}
	state.EnsureDefaults()
	state.Version = version
	return &state, nil
}

// Save implements repositories.CheckpointRepository.
func (s *CheckpointStore) Save(ctx context.Context, state *orchestration.ConversationState) error {
	expected := state.Version
	next := *state
	next.Version = expected + 1
	next.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("sqlite: encode checkpoint: %w", err)
	}

	var res sql.Result
	if expected == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO checkpoints (thread_id, state, version, phase, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (thread_id) DO NOTHING`,
			next.ThreadID, string(payload), next.Version, string(next.Phase), next.UpdatedAt.Format(timeLayout),
		)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE checkpoints
			SET state = ?, version = ?, phase = ?, updated_at = ?
			WHERE thread_id = ? AND version = ?`,
			string(payload), next.Version, string(next.Phase), next.UpdatedAt.Format(timeLayout),
			next.ThreadID, expected,
		)
	}
	if err != nil {
		return fmt.Errorf("sqlite: write checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("checkpoint for thread %s changed since version %d", next.ThreadID, expected),
			ResourceType: "checkpoint",
			ResourceID:   next.ThreadID,
		}
	}

	state.Version = next.Version
	state.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete implements repositories.CheckpointRepository.
func (s *CheckpointStore) Delete(ctx context.Context, threadID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("sqlite: delete checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("thread %s not found", threadID)}
	}
	return nil
}

// List returns thread ids ordered by most recent update, newest first.
func (s *CheckpointStore) List(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id FROM checkpoints ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
