package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/compozy/transcripts/pkg/logger"

	// Register pgx stdlib driver for database/sql usage in migrations.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DimensionEnv carries the embedding dimension into the passages migration.
const DimensionEnv = "TRANSCRIPTS_EMBEDDING_DIMENSION"

//go:embed migrations/*.sql
var migrationsFS embed.FS
var gooseMu sync.Mutex

// MigrationOptions parameterize the embedded schema.
type MigrationOptions struct {
	// Dimension sizes the passages embedding column; 0 keeps the migration default.
	Dimension int
}

// ApplyMigrations runs database migrations from the embedded SQL files
// using goose. It expects a DSN understood by database/sql with the
// pgx stdlib driver name ("pgx").
func ApplyMigrations(ctx context.Context, dsn string, opts MigrationOptions) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()
	return runMigrations(ctx, db, opts)
}

// ApplyMigrationsWithLock acquires a Postgres advisory lock before running
// migrations so concurrent replicas do not race during startup.
func ApplyMigrationsWithLock(ctx context.Context, dsn string, opts MigrationOptions) error {
	const defaultLockTimeout = 45 * time.Second
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire dedicated connection: %w", err)
	}
	defer conn.Close()
	log := logger.FromContext(ctx)
	lockCtx, cancel := context.WithTimeout(ctx, defaultLockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(
		lockCtx,
		"select pg_advisory_lock(hashtext($1), hashtext($2))",
		"transcripts",
		"migrations",
	); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(
			context.WithoutCancel(ctx),
			"select pg_advisory_unlock(hashtext($1), hashtext($2))",
			"transcripts",
			"migrations",
		); err != nil {
			log.Warn("Failed to release migration advisory lock", "error", err)
		}
	}()
	return runMigrations(ctx, db, opts)
}

// runMigrations applies migrations on the provided *sql.DB.
func runMigrations(ctx context.Context, db *sql.DB, opts MigrationOptions) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if opts.Dimension > 0 {
		restore := setEnv(DimensionEnv, strconv.Itoa(opts.Dimension))
		defer restore()
	}
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	logger.FromContext(ctx).Info("Database migrations applied")
	return nil
}

func setEnv(key, value string) func() {
	prev, had := os.LookupEnv(key)
	_ = os.Setenv(key, value)
	return func() {
		if had {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	}
}

// RunMigrationsForDB exposes migration execution on an existing *sql.DB.
func RunMigrationsForDB(ctx context.Context, db *sql.DB, opts MigrationOptions) error {
	return runMigrations(ctx, db, opts)
}
