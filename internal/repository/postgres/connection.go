package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"labmate/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Checkpoints       string
	CheckpointHistory string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Checkpoints:       fmt.Sprintf("%sconversation_checkpoints", prefix),
		CheckpointHistory: fmt.Sprintf("%scheckpoint_history", prefix),
	}
}

// CreateConnectionPool creates a new pgx connection pool with automatic PgBouncer compatibility.
//
// Port 6543 (Supabase transaction pooler) does not support prepared statements, so
// the pool switches to QueryExecModeCacheDescribe there unless the connection string
// sets default_query_exec_mode explicitly. Direct connections keep the default
// statement cache.
//
// Dynamic table prefixes (dev_, test_, prod_) are interpolated with fmt.Sprintf
// before the SQL reaches the server, so each environment gets its own statements.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// Configure pool size
	config.MaxConns = 25
	config.MinConns = 2

	// CacheDescribe keeps the extended protocol (needed for JSONB) without
	// creating server-side prepared statements.
	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the appropriate query executor for the context.
// If a transaction is present in the context, it returns the transaction.
// Otherwise, it returns the provided pool.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}

// EnsureSchema creates the checkpoint tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				thread_id    TEXT PRIMARY KEY,
				state        JSONB NOT NULL,
				version      INTEGER NOT NULL,
				phase        TEXT NOT NULL,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, tables.Checkpoints),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				thread_id    TEXT NOT NULL,
				version      INTEGER NOT NULL,
				phase        TEXT NOT NULL,
				current_step INTEGER NOT NULL,
				plan         JSONB NOT NULL,
				saved_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (thread_id, version)
			)`, tables.CheckpointHistory),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
