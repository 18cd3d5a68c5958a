// Package bhaktisync implements the offline-first synchronization engine for
// a daily practice tracker: per-day recitation counters and a fixed checklist
// of ritual activities, mutated locally and reconciled against a remote
// server under intermittent connectivity.
//
// The engine is built from four collaborators wired together by Engine:
//
//   - LocalStore: durable per-device state keyed by (name, date)
//   - RemoteClient: thin timeboxed HTTP wrappers over the server contract
//   - Reconciler: the per-date merge of local and remote state
//   - RetrySupervisor: bounded, deduplicated retry of failed pushes
//
// All conflict resolution is deterministic and silent: counters resolve by
// magnitude (they only grow), checklist items resolve by local intent.
package bhaktisync

import (
	"context"

	"github.com/bhaktidev/bhakti-sync/record"
)

// RemoteCounter is the server's view of one counter for one day.
type RemoteCounter struct {
	Name   string
	Count  int
	Target *int
}

// RemoteChecklistItem is the server's view of one activity for one day.
type RemoteChecklistItem struct {
	Name         string
	DisplayLabel string
	Category     string
	Completed    bool
}

// RemoteClient is the transport to the tracker server. Every call is
// independently timeboxed; all failure causes (timeout, connection error,
// non-2xx, undecodable body) are reported uniformly as unreachable via
// errors.IsUnreachable.
type RemoteClient interface {
	// FetchCounters retrieves the server's counter set for a date.
	FetchCounters(ctx context.Context, date string) ([]RemoteCounter, error)

	// FetchChecklist retrieves the server's activity set for a date.
	FetchChecklist(ctx context.Context, date string) ([]RemoteChecklistItem, error)

	// PushCounterCount writes a client-computed count for one counter.
	PushCounterCount(ctx context.Context, name, date string, count int) error

	// PushChecklistState writes the completed flag for one activity.
	PushChecklistState(ctx context.Context, name, date string, completed bool) error

	// Close releases transport resources.
	Close() error
}

// LocalStore is the durable per-device record table keyed by (name, date).
// No network access happens here. Implementations must report write failures
// to the caller rather than swallowing them.
type LocalStore interface {
	// Get returns all records for a date, materializing the default catalog
	// first if the date has never been seen.
	Get(ctx context.Context, date string) (*record.DayRecords, error)

	// EnsureDefaults materializes the default catalog for a date if absent.
	// It is idempotent and callable independently of reads.
	EnsureDefaults(ctx context.Context, date string) error

	// PutCounters upserts counter records by (name, date).
	PutCounters(ctx context.Context, recs ...*record.CounterRecord) error

	// PutChecklist upserts checklist records by (name, date).
	PutChecklist(ctx context.Context, recs ...*record.ChecklistRecord) error

	// GetCounter returns one counter record, or nil if absent.
	GetCounter(ctx context.Context, name, date string) (*record.CounterRecord, error)

	// GetChecklistItem returns one checklist record, or nil if absent.
	GetChecklistItem(ctx context.Context, name, date string) (*record.ChecklistRecord, error)

	// MarkSynced clears the dirty flag for exactly one record.
	MarkSynced(ctx context.Context, kind record.Kind, name, date string) error

	// QueryDirty returns every record across all dates with dirty=true.
	QueryDirty(ctx context.Context) ([]*record.CounterRecord, []*record.ChecklistRecord, error)

	// CountDirty returns the number of dirty records across all dates.
	CountDirty(ctx context.Context) (int, error)

	// Close closes the store and releases resources.
	Close() error
}
