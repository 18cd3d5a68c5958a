// Package sqlite provides a SQLite implementation of the bhaktisync LocalStore.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	stdSync "sync"
	"time"

	bhaktisync "github.com/bhaktidev/bhakti-sync"
	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
	"github.com/bhaktidev/bhakti-sync/logging"
	"github.com/bhaktidev/bhakti-sync/record"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreClosed is returned for any operation on a closed store.
var ErrStoreClosed = fmt.Errorf("store is closed")

// Config holds configuration options for the LocalStore.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// Connection pool settings. The local store is single-device state, so
	// the defaults are deliberately small.
	MaxOpenConns    int           // Default: 4
	MaxIdleConns    int           // Default: 2
	ConnMaxLifetime time.Duration // Default: 1h
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "_journal_mode=") {
			if strings.Contains(c.DataSourceName, "?") {
				c.DataSourceName += "&_journal_mode=WAL"
			} else {
				c.DataSourceName += "?_journal_mode=WAL"
			}
		}
	}
}

// DefaultConfig returns a Config with WAL enabled.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// LocalStore implements the bhaktisync.LocalStore interface for SQLite.
type LocalStore struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *logging.Logger
	now    func() time.Time
}

// Compile-time check to ensure LocalStore satisfies the interface
var _ bhaktisync.LocalStore = (*LocalStore)(nil)

// NewWithDataSource is a convenience constructor using default settings.
func NewWithDataSource(dataSourceName string) (*LocalStore, error) {
	return New(DefaultConfig(dataSourceName))
}

// New creates a new LocalStore from a Config.
func New(config *Config) (*LocalStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &LocalStore{
		db:     db,
		logger: logging.WithComponent("local-store"),
		now:    time.Now,
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

// setupSchema creates the record tables if they don't exist. The dirty
// indexes back QueryDirty sweeps without a full scan.
func (s *LocalStore) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS counters (
        name        TEXT NOT NULL,
        date        TEXT NOT NULL,
        count       INTEGER NOT NULL DEFAULT 0,
        target      INTEGER,
        dirty       INTEGER NOT NULL DEFAULT 0,
        modified_at INTEGER NOT NULL,
        PRIMARY KEY (name, date)
    );
    CREATE INDEX IF NOT EXISTS idx_counters_date ON counters (date);
    CREATE INDEX IF NOT EXISTS idx_counters_dirty ON counters (dirty);

    CREATE TABLE IF NOT EXISTS activities (
        name          TEXT NOT NULL,
        date          TEXT NOT NULL,
        display_label TEXT NOT NULL DEFAULT '',
        category      TEXT NOT NULL DEFAULT '',
        completed     INTEGER NOT NULL DEFAULT 0,
        completed_at  INTEGER,
        dirty         INTEGER NOT NULL DEFAULT 0,
        modified_at   INTEGER NOT NULL,
        PRIMARY KEY (name, date)
    );
    CREATE INDEX IF NOT EXISTS idx_activities_date ON activities (date);
    CREATE INDEX IF NOT EXISTS idx_activities_dirty ON activities (dirty);
    `
	_, err := s.db.Exec(query)
	return err
}

func (s *LocalStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// EnsureDefaults materializes the default catalog for a date if absent.
// INSERT OR IGNORE keeps it idempotent under the (name, date) primary key.
func (s *LocalStore) EnsureDefaults(ctx context.Context, date string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := record.ValidateDate(date); err != nil {
		return syncErrors.NewValidationError(syncErrors.OpGet, err)
	}

	now := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	defer tx.Rollback()

	counterStmt := `INSERT OR IGNORE INTO counters (name, date, count, target, dirty, modified_at) VALUES (?, ?, 0, ?, 0, ?)`
	for _, spec := range record.DefaultCounters {
		var target sql.NullInt64
		if spec.Target != nil {
			target = sql.NullInt64{Int64: int64(*spec.Target), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, counterStmt, spec.Name, date, target, now); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpPut, err)
		}
	}

	activityStmt := `INSERT OR IGNORE INTO activities (name, date, display_label, category, completed, dirty, modified_at) VALUES (?, ?, ?, ?, 0, 0, ?)`
	for _, spec := range record.DefaultActivities {
		if _, err := tx.ExecContext(ctx, activityStmt, spec.Name, date, spec.DisplayLabel, spec.Category, now); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpPut, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	return nil
}

// Get returns all records for a date, materializing defaults first.
// Records come back in canonical catalog order.
func (s *LocalStore) Get(ctx context.Context, date string) (*record.DayRecords, error) {
	if err := s.EnsureDefaults(ctx, date); err != nil {
		return nil, err
	}

	counters, err := s.queryCounters(ctx, `SELECT name, date, count, target, dirty, modified_at FROM counters WHERE date = ?`, date)
	if err != nil {
		return nil, err
	}

	checklist, err := s.queryActivities(ctx, `SELECT name, date, display_label, category, completed, completed_at, dirty, modified_at FROM activities WHERE date = ?`, date)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(counters, func(i, j int) bool {
		return record.CounterOrder(counters[i].Name) < record.CounterOrder(counters[j].Name)
	})
	sort.SliceStable(checklist, func(i, j int) bool {
		return record.ChecklistOrder(checklist[i].Name) < record.ChecklistOrder(checklist[j].Name)
	})

	return &record.DayRecords{Date: date, Counters: counters, Checklist: checklist}, nil
}

// CountersForDate returns the counters stored for a date without
// materializing defaults. Dates that were never touched come back empty,
// which is what derived statistics need: a day with no rows was not
// practiced.
func (s *LocalStore) CountersForDate(ctx context.Context, date string) ([]*record.CounterRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	counters, err := s.queryCounters(ctx, `SELECT name, date, count, target, dirty, modified_at FROM counters WHERE date = ?`, date)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(counters, func(i, j int) bool {
		return record.CounterOrder(counters[i].Name) < record.CounterOrder(counters[j].Name)
	})
	return counters, nil
}

// PutCounters upserts counter records by (name, date).
func (s *LocalStore) PutCounters(ctx context.Context, recs ...*record.CounterRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	defer tx.Rollback()

	stmt := `
    INSERT INTO counters (name, date, count, target, dirty, modified_at)
    VALUES (?, ?, ?, ?, ?, ?)
    ON CONFLICT (name, date) DO UPDATE SET
        count = excluded.count,
        target = excluded.target,
        dirty = excluded.dirty,
        modified_at = excluded.modified_at`

	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return syncErrors.NewValidationError(syncErrors.OpPut, err)
		}
		var target sql.NullInt64
		if rec.Target != nil {
			target = sql.NullInt64{Int64: int64(*rec.Target), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, stmt, rec.Name, rec.Date, rec.Count, target, boolToInt(rec.Dirty), rec.ModifiedAt.UnixMilli()); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpPut, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	return nil
}

// PutChecklist upserts checklist records by (name, date).
func (s *LocalStore) PutChecklist(ctx context.Context, recs ...*record.ChecklistRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	defer tx.Rollback()

	stmt := `
    INSERT INTO activities (name, date, display_label, category, completed, completed_at, dirty, modified_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT (name, date) DO UPDATE SET
        display_label = excluded.display_label,
        category = excluded.category,
        completed = excluded.completed,
        completed_at = excluded.completed_at,
        dirty = excluded.dirty,
        modified_at = excluded.modified_at`

	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return syncErrors.NewValidationError(syncErrors.OpPut, err)
		}
		var completedAt sql.NullInt64
		if rec.CompletedAt != nil {
			completedAt = sql.NullInt64{Int64: rec.CompletedAt.UnixMilli(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, stmt, rec.Name, rec.Date, rec.DisplayLabel, rec.Category, boolToInt(rec.Completed), completedAt, boolToInt(rec.Dirty), rec.ModifiedAt.UnixMilli()); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpPut, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	return nil
}

// GetCounter returns one counter record, or nil if absent.
func (s *LocalStore) GetCounter(ctx context.Context, name, date string) (*record.CounterRecord, error) {
	recs, err := s.queryCounters(ctx, `SELECT name, date, count, target, dirty, modified_at FROM counters WHERE name = ? AND date = ?`, name, date)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// GetChecklistItem returns one checklist record, or nil if absent.
func (s *LocalStore) GetChecklistItem(ctx context.Context, name, date string) (*record.ChecklistRecord, error) {
	recs, err := s.queryActivities(ctx, `SELECT name, date, display_label, category, completed, completed_at, dirty, modified_at FROM activities WHERE name = ? AND date = ?`, name, date)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// MarkSynced clears the dirty flag for exactly one record.
func (s *LocalStore) MarkSynced(ctx context.Context, kind record.Kind, name, date string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	table := "counters"
	if kind == record.KindChecklist {
		table = "activities"
	}

	res, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET dirty = 0 WHERE name = ? AND date = ?`, name, date)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpMarkSynced, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return syncErrors.NewValidationError(syncErrors.OpMarkSynced,
			fmt.Errorf("no %s record for %s@%s", kind, name, date))
	}
	return nil
}

// QueryDirty returns every record across all dates with dirty=true.
func (s *LocalStore) QueryDirty(ctx context.Context) ([]*record.CounterRecord, []*record.ChecklistRecord, error) {
	counters, err := s.queryCounters(ctx, `SELECT name, date, count, target, dirty, modified_at FROM counters WHERE dirty = 1`)
	if err != nil {
		return nil, nil, err
	}
	checklist, err := s.queryActivities(ctx, `SELECT name, date, display_label, category, completed, completed_at, dirty, modified_at FROM activities WHERE dirty = 1`)
	if err != nil {
		return nil, nil, err
	}
	return counters, checklist, nil
}

// CountDirty returns the number of dirty records across all dates.
func (s *LocalStore) CountDirty(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
        SELECT (SELECT COUNT(*) FROM counters WHERE dirty = 1)
             + (SELECT COUNT(*) FROM activities WHERE dirty = 1)`).Scan(&n)
	if err != nil {
		return 0, syncErrors.NewStorageError(syncErrors.OpQueryDirty, err)
	}
	return n, nil
}

// Close closes the store and releases resources.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpClose, err)
	}
	return nil
}

func (s *LocalStore) queryCounters(ctx context.Context, query string, args ...any) ([]*record.CounterRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	defer rows.Close()

	var out []*record.CounterRecord
	for rows.Next() {
		var (
			rec        record.CounterRecord
			target     sql.NullInt64
			dirty      int
			modifiedAt int64
		)
		if err := rows.Scan(&rec.Name, &rec.Date, &rec.Count, &target, &dirty, &modifiedAt); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
		}
		if target.Valid {
			t := int(target.Int64)
			rec.Target = &t
		}
		rec.Dirty = dirty != 0
		rec.ModifiedAt = time.UnixMilli(modifiedAt)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	return out, nil
}

func (s *LocalStore) queryActivities(ctx context.Context, query string, args ...any) ([]*record.ChecklistRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	defer rows.Close()

	var out []*record.ChecklistRecord
	for rows.Next() {
		var (
			rec         record.ChecklistRecord
			completed   int
			completedAt sql.NullInt64
			dirty       int
			modifiedAt  int64
		)
		if err := rows.Scan(&rec.Name, &rec.Date, &rec.DisplayLabel, &rec.Category, &completed, &completedAt, &dirty, &modifiedAt); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
		}
		rec.Completed = completed != 0
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64)
			rec.CompletedAt = &t
		}
		rec.Dirty = dirty != 0
		rec.ModifiedAt = time.UnixMilli(modifiedAt)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
