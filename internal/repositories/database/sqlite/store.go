// Package sqlite stores schedules in an embedded SQLite database for single-household
// deployments. Dates are ISO-8601 text and timestamps fixed-width UTC text so that
// string order matches time order.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements every repository port on one *sql.DB.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for ledger timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Open opens (creating when missing) the database at path and applies the embedded
// migrations. busyTimeout of zero leaves SQLite's default.
func Open(ctx context.Context, path string, busyTimeout time.Duration, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serializes writers, which is what the schedule lock relies on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite driver instance for migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	// m.Close would close db as well, so only the source is released.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ portsrepo.ReferenceChecker  = (*Store)(nil)
	_ portsrepo.ReferenceRegistry = (*Store)(nil)
)

// NewRepositoryProvider exposes s through the repository ports.
func NewRepositoryProvider(s *Store) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		ScheduleRepo: s,
		LedgerRepo:   s,
		References:   s,
		Registry:     s,
		Close:        s.Close,
	}
}

// UpsertAccount registers an account so schedules and ledger rows may reference it.
func (s *Store) UpsertAccount(ctx context.Context, householdID, accountID, name string, active bool) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO accounts(account_id, household_id, name, is_active) VALUES(?,?,?,?)
		 ON CONFLICT(account_id) DO UPDATE SET household_id=excluded.household_id, name=excluded.name, is_active=excluded.is_active`,
		accountID, householdID, name, active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", accountID, err)
	}
	return nil
}

// UpsertCategory registers a category.
func (s *Store) UpsertCategory(ctx context.Context, householdID, categoryID, name string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO categories(category_id, household_id, name) VALUES(?,?,?)
		 ON CONFLICT(category_id) DO UPDATE SET household_id=excluded.household_id, name=excluded.name`,
		categoryID, householdID, name,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert category %s: %w", categoryID, err)
	}
	return nil
}

// DeleteCategory removes a category of householdID.
func (s *Store) DeleteCategory(ctx context.Context, householdID, categoryID string) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM categories WHERE category_id = ? AND household_id = ?`, categoryID, householdID)
	if err != nil {
		return fmt.Errorf("failed to delete category %s: %w", categoryID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("category " + categoryID + " not found")
	}
	return nil
}

// AccountExists implements portsrepo.ReferenceChecker.
func (s *Store) AccountExists(ctx context.Context, householdID, accountID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = ? AND household_id = ? AND is_active = 1)`, accountID, householdID)
}

// CategoryExists implements portsrepo.ReferenceChecker.
func (s *Store) CategoryExists(ctx context.Context, householdID, categoryID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE category_id = ? AND household_id = ?)`, categoryID, householdID)
}

func (s *Store) exists(ctx context.Context, query, id, householdID string) (bool, error) {
	var ok bool
	if err := s.q(ctx).QueryRowContext(ctx, query, id, householdID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to look up reference %s: %w", id, err)
	}
	return ok, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txCtxKey struct{}

type ctxTx struct {
	store *Store
	tx    *sql.Tx
}

// q returns the transaction opened by WithScheduleLock when ctx carries one. Going
// around it would wait forever for the single connection.
func (s *Store) q(ctx context.Context) querier {
	if v, ok := ctx.Value(txCtxKey{}).(ctxTx); ok && v.store == s {
		return v.tx
	}
	return s.db
}

func formatDate(d civil.Date) string {
	return d.String()
}

func formatDatePtr(d *civil.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDatePtr(ns sql.NullString) (*civil.Date, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := civil.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
