package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements RevisionStore using SQLite.
type SQLiteStore struct {
	db          *sql.DB
	cfg         Config
	defaultText string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// DefaultText is stored as the first revision of an empty database.
	// Empty means DefaultText().
	DefaultText string
}

// NewSQLiteStore creates a new SQLite store instance. Call Init and Migrate
// before use, or use OpenSQLiteStore.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns, cfg.MaxIdleConns = 1, 1
		cfg.ConnMaxLifetime = 0
	}

	text := cfg.DefaultText
	if text == "" {
		text = DefaultText()
	}

	return &SQLiteStore{cfg: cfg, defaultText: text}, nil
}

// OpenSQLiteStore creates, initializes and migrates a store.
func OpenSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database connection and enables WAL mode for file
// databases, creating the parent directory if needed.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Name returns "sqlite".
func (s *SQLiteStore) Name() string {
	return "sqlite"
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Load returns the newest revision, inserting the default document first
// if the history is empty.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap, err := s.latest(ctx)
	if errors.Is(err, ErrNotFound) {
		snap = &Snapshot{Text: s.defaultText}
		if err := s.Save(ctx, snap); err != nil {
			return nil, fmt.Errorf("failed to store default config: %w", err)
		}
		return snap, nil
	}
	return snap, err
}

func (s *SQLiteStore) latest(ctx context.Context) (*Snapshot, error) {
	query := `
		SELECT id, content, checksum, created_at
		FROM config_revisions
		ORDER BY seq DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query))
}

// Save appends snap as a new revision.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.Checksum == "" {
		snap.Checksum = Checksum(snap.Text)
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO config_revisions (id, seq, content, checksum, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM config_revisions), ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, snap.ID, snap.Text, snap.Checksum, snap.CreatedAt); err != nil {
		return fmt.Errorf("failed to save revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revision: %w", err)
	}
	return nil
}

// GetRevision retrieves a revision by ID.
func (s *SQLiteStore) GetRevision(ctx context.Context, id string) (*Snapshot, error) {
	query := `
		SELECT id, content, checksum, created_at
		FROM config_revisions
		WHERE id = ?
	`
	snap, err := s.scanOne(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("revision %s: %w", id, ErrNotFound)
	}
	return snap, err
}

// ListRevisions returns revisions newest first.
func (s *SQLiteStore) ListRevisions(ctx context.Context, limit, offset int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, content, checksum, created_at
		FROM config_revisions
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		snap := &Snapshot{}
		if err := rows.Scan(&snap.ID, &snap.Text, &snap.Checksum, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}

	return snaps, nil
}

// PruneRevisions deletes all but the newest keep revisions and returns the
// number removed.
func (s *SQLiteStore) PruneRevisions(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	query := `
		DELETE FROM config_revisions
		WHERE seq NOT IN (SELECT seq FROM config_revisions ORDER BY seq DESC LIMIT ?)
	`
	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune revisions: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*Snapshot, error) {
	snap := &Snapshot{}
	err := row.Scan(&snap.ID, &snap.Text, &snap.Checksum, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read revision: %w", err)
	}
	return snap, nil
}
