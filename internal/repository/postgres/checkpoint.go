package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
	"labmate/internal/domain/repositories"
)

// PostgresCheckpointRepository stores each thread's state as one JSONB document.
// Writes use optimistic concurrency on the version column and append a row
// to the checkpoint history in the same transaction.
type PostgresCheckpointRepository struct {
	pool      *pgxpool.Pool
	tables    *TableNames
	txManager repositories.TransactionManager
	logger    *slog.Logger
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(config *RepositoryConfig, txManager repositories.TransactionManager) repositories.CheckpointRepository {
	return &PostgresCheckpointRepository{
		pool:      config.Pool,
		tables:    config.Tables,
		txManager: txManager,
		logger:    config.Logger,
	}
}

// Load retrieves the latest checkpoint for a thread
func (r *PostgresCheckpointRepository) Load(ctx context.Context, threadID string) (*orchestration.ConversationState, error) {
	query := fmt.Sprintf(`
		SELECT state, version
		FROM %s
		WHERE thread_id = $1
	`, r.tables.Checkpoints)

	var (
		raw     []byte
		version int
	)
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, threadID).Scan(&raw, &version)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("thread %s not found", threadID)}
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var state orchestration.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	state.EnsureDefaults()
	// The column is authoritative if the document was edited out of band.
	state.Version = version

	return &state, nil
}

// Save writes the checkpoint if nobody else saved the thread since it was loaded
func (r *PostgresCheckpointRepository) Save(ctx context.Context, state *orchestration.ConversationState) error {
	expected := state.Version
	next := *state
	next.Version = expected + 1
	next.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	plan, err := json.Marshal(next.OrchestrationPlan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	err = r.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		executor := GetExecutor(txCtx, r.pool)

		var query string
		var args []any
		if expected == 0 {
			query = fmt.Sprintf(`
				INSERT INTO %s (thread_id, state, version, phase, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (thread_id) DO NOTHING
			`, r.tables.Checkpoints)
			args = []any{next.ThreadID, payload, next.Version, string(next.Phase), next.CreatedAt, next.UpdatedAt}
		} else {
			query = fmt.Sprintf(`
				UPDATE %s
				SET state = $2, version = $3, phase = $4, updated_at = $5
				WHERE thread_id = $1 AND version = $6
			`, r.tables.Checkpoints)
			args = []any{next.ThreadID, payload, next.Version, string(next.Phase), next.UpdatedAt, expected}
		}

		tag, err := executor.Exec(txCtx, query, args...)
		if err != nil {
			return fmt.Errorf("write checkpoint: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("checkpoint for thread %s changed since version %d", next.ThreadID, expected),
				ResourceType: "checkpoint",
				ResourceID:   next.ThreadID,
			}
		}

		historyQuery := fmt.Sprintf(`
			INSERT INTO %s (thread_id, version, phase, current_step, plan, saved_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.tables.CheckpointHistory)
		if _, err := executor.Exec(txCtx, historyQuery,
			next.ThreadID,
			next.Version,
			string(next.Phase),
			next.CurrentStep,
			plan,
			next.UpdatedAt,
		); err != nil {
			if IsPgDuplicateError(err) {
				return fmt.Errorf("checkpoint history for %s v%d: %w", next.ThreadID, next.Version, domain.ErrConflict)
			}
			return fmt.Errorf("write checkpoint history: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	state.Version = next.Version
	state.UpdatedAt = next.UpdatedAt
	r.logger.Debug("checkpoint saved",
		"thread_id", state.ThreadID,
		"version", state.Version,
		"phase", state.Phase,
	)
	return nil
}

// Delete removes a thread's checkpoint and its history
func (r *PostgresCheckpointRepository) Delete(ctx context.Context, threadID string) error {
	return r.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		executor := GetExecutor(txCtx, r.pool)

		historyQuery := fmt.Sprintf(`DELETE FROM %s WHERE thread_id = $1`, r.tables.CheckpointHistory)
		if _, err := executor.Exec(txCtx, historyQuery, threadID); err != nil {
			return fmt.Errorf("delete checkpoint history: %w", err)
		}

		query := fmt.Sprintf(`DELETE FROM %s WHERE thread_id = $1`, r.tables.Checkpoints)
		tag, err := executor.Exec(txCtx, query, threadID)
		if err != nil {
			return fmt.Errorf("delete checkpoint: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &domain.NotFoundError{Message: fmt.Sprintf("thread %s not found", threadID)}
		}
		return nil
	})
}
