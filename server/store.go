// Package server implements the tracker's HTTP peer: a sqlite-backed record
// store and the handler exposing the sync API the client engine talks to.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
	"github.com/bhaktidev/bhakti-sync/record"
)

const schema = `
CREATE TABLE IF NOT EXISTS mantras (
	name       TEXT NOT NULL,
	date       TEXT NOT NULL,
	count      INTEGER NOT NULL DEFAULT 0,
	target     INTEGER,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (name, date)
);

CREATE TABLE IF NOT EXISTS activities (
	name          TEXT NOT NULL,
	date          TEXT NOT NULL,
	display_label TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	completed     INTEGER NOT NULL DEFAULT 0,
	updated_at    TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (name, date)
);

CREATE INDEX IF NOT EXISTS idx_mantras_date ON mantras(date);
CREATE INDEX IF NOT EXISTS idx_activities_date ON activities(date);
`

// Mantra is the server-side view of one counter for one date.
type Mantra struct {
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Target *int   `json:"target"`
}

// Activity is the server-side view of one checklist item for one date.
type Activity struct {
	Name         string `json:"name"`
	DisplayLabel string `json:"displayName"`
	Category     string `json:"category"`
	Completed    bool   `json:"completed"`
}

// WeeklyCount is one (date, name) cell of the weekly summary.
type WeeklyCount struct {
	Date   string `json:"date"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Target *int   `json:"target"`
}

// Store is the server's record store. Days materialize lazily: every read
// inserts the default catalog for the date first, so a date that was never
// written still answers with zeroed defaults.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the server database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, fmt.Errorf("open database: %w", err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, fmt.Errorf("initialize schema: %w", err))
	}
	return &Store{db: db}, nil
}

// ensureDate inserts the default catalogs for date, leaving existing rows
// untouched.
func (s *Store) ensureDate(ctx context.Context, date string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	defer tx.Rollback()

	for _, spec := range record.DefaultCounters {
		var target sql.NullInt64
		if spec.Target != nil {
			target = sql.NullInt64{Int64: int64(*spec.Target), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO mantras (name, date, count, target) VALUES (?, ?, 0, ?)`,
			spec.Name, date, target); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpPut, err)
		}
	}
	for _, spec := range record.DefaultActivities {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO activities (name, date, display_label, category, completed) VALUES (?, ?, ?, ?, 0)`,
			spec.Name, date, spec.DisplayLabel, spec.Category); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpPut, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	return nil
}

// MantrasForDate returns every counter for a date in catalog order,
// materializing defaults first.
func (s *Store) MantrasForDate(ctx context.Context, date string) ([]Mantra, error) {
	if err := s.ensureDate(ctx, date); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, count, target FROM mantras WHERE date = ?`, date)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	defer rows.Close()

	var out []Mantra
	for rows.Next() {
		var m Mantra
		var target sql.NullInt64
		if err := rows.Scan(&m.Name, &m.Count, &target); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
		}
		if target.Valid {
			v := int(target.Int64)
			m.Target = &v
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}

	sortMantras(out)
	return out, nil
}

// IncrementMantra adds one to a counter and returns the updated row.
func (s *Store) IncrementMantra(ctx context.Context, name, date string) (*Mantra, error) {
	if err := s.ensureDate(ctx, date); err != nil {
		return nil, err
	}
	// Unknown names insert at zero first so the increment always lands.
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO mantras (name, date, count) VALUES (?, ?, 0)`, name, date); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpIncrement, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE mantras SET count = count + 1, updated_at = CURRENT_TIMESTAMP WHERE name = ? AND date = ?`,
		name, date); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpIncrement, err)
	}
	return s.getMantra(ctx, name, date)
}

// SetMantraCount overwrites a counter's count and returns the updated row.
func (s *Store) SetMantraCount(ctx context.Context, name, date string, count int) (*Mantra, error) {
	if err := s.ensureDate(ctx, date); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO mantras (name, date, count) VALUES (?, ?, 0)`, name, date); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE mantras SET count = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ? AND date = ?`,
		count, name, date); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	return s.getMantra(ctx, name, date)
}

func (s *Store) getMantra(ctx context.Context, name, date string) (*Mantra, error) {
	var m Mantra
	var target sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, count, target FROM mantras WHERE name = ? AND date = ?`,
		name, date).Scan(&m.Name, &m.Count, &target)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	if target.Valid {
		v := int(target.Int64)
		m.Target = &v
	}
	return &m, nil
}

// ActivitiesForDate returns every checklist item for a date in catalog
// order, materializing defaults first.
func (s *Store) ActivitiesForDate(ctx context.Context, date string) ([]Activity, error) {
	if err := s.ensureDate(ctx, date); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, display_label, category, completed FROM activities WHERE date = ?`, date)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		var completed int
		if err := rows.Scan(&a.Name, &a.DisplayLabel, &a.Category, &completed); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
		}
		a.Completed = completed != 0
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}

	sortActivities(out)
	return out, nil
}

// SetActivityState overwrites a checklist item's completed flag and returns
// the updated row.
func (s *Store) SetActivityState(ctx context.Context, name, date string, completed bool) (*Activity, error) {
	if err := s.ensureDate(ctx, date); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO activities (name, date, completed) VALUES (?, ?, 0)`, name, date); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpPut, err)
	}
	state := 0
	if completed {
		state = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE activities SET completed = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ? AND date = ?`,
		state, name, date); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpPut, err)
	}

	var a Activity
	var flag int
	err := s.db.QueryRowContext(ctx,
		`SELECT name, display_label, category, completed FROM activities WHERE name = ? AND date = ?`,
		name, date).Scan(&a.Name, &a.DisplayLabel, &a.Category, &flag)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	a.Completed = flag != 0
	return &a, nil
}

// WeeklySummary returns every counter row in [start, end] ordered by date
// then name.
func (s *Store) WeeklySummary(ctx context.Context, start, end string) ([]WeeklyCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, name, count, target FROM mantras WHERE date >= ? AND date <= ? ORDER BY date, name`,
		start, end)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	defer rows.Close()

	var out []WeeklyCount
	for rows.Next() {
		var w WeeklyCount
		var target sql.NullInt64
		if err := rows.Scan(&w.Date, &w.Name, &w.Count, &target); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
		}
		if target.Valid {
			v := int(target.Int64)
			w.Target = &v
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpGet, err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpClose, err)
	}
	return nil
}

func sortMantras(ms []Mantra) {
	sort.SliceStable(ms, func(i, j int) bool {
		return record.CounterOrder(ms[i].Name) < record.CounterOrder(ms[j].Name)
	})
}

func sortActivities(as []Activity) {
	sort.SliceStable(as, func(i, j int) bool {
		return record.ChecklistOrder(as[i].Name) < record.ChecklistOrder(as[j].Name)
	})
}
