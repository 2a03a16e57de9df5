package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/ruteri/collection-factory/interfaces"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRegistry persists committed child accounts in a SQLite database.
type SQLiteRegistry struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLiteRegistry opens (or creates) the database at path and applies pending migrations.
func OpenSQLiteRegistry(ctx context.Context, path string) (*SQLiteRegistry, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer connection keeps SQLite from returning SQLITE_BUSY under concurrent inserts.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &SQLiteRegistry{db: db, path: path, now: time.Now}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRegistry) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Contains reports whether id was committed.
func (r *SQLiteRegistry) Contains(ctx context.Context, id interfaces.AccountID) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM children WHERE child_id = ? LIMIT 1`, string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query child %s: %w", id, err)
	}
	return true, nil
}

// Insert commits id. Inserting an existing id keeps the original commit time.
func (r *SQLiteRegistry) Insert(ctx context.Context, id interfaces.AccountID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO children (child_id, committed_at) VALUES (?, ?) ON CONFLICT(child_id) DO NOTHING`,
		string(id), r.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert child %s: %w", id, err)
	}
	return nil
}

// Len returns the number of committed ids.
func (r *SQLiteRegistry) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM children`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}
