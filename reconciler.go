package bhaktisync

import (
	"context"
	"log/slog"
	"time"

	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
	"github.com/bhaktidev/bhakti-sync/logging"
	"github.com/bhaktidev/bhakti-sync/record"
)

// Reconciler merges local and remote state for a date and leaves the dirty
// flags accurately reflecting outstanding work.
//
// Counters resolve by magnitude gated on the dirty flag: counts only grow,
// so a greater local count is an unambiguous unsynced local increment.
// Checklist state is not orderable, so local intent wins whenever dirty.
type Reconciler struct {
	store  LocalStore
	remote RemoteClient
	status *SyncStatus
	retry  *RetrySupervisor
	locks  *keyLock
	logger *logging.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler. retry may be nil, in which case failed
// pushes are left dirty for the next reconciliation pass instead of being
// re-attempted in the background.
func NewReconciler(store LocalStore, remote RemoteClient, status *SyncStatus, retry *RetrySupervisor) *Reconciler {
	r := &Reconciler{
		store:  store,
		remote: remote,
		status: status,
		retry:  retry,
		locks:  newKeyLock(),
		logger: logging.WithComponent("reconciler"),
		now:    time.Now,
	}
	if retry != nil {
		r.locks = retry.locks
	}
	return r
}

// ReconcileDate produces a merged, locally-durable, best-effort-server-
// consistent view of one date. Counters and checklist items reconcile
// independently: an unreachable server for one kind falls back to local
// state for that kind only and never surfaces as an error. Storage failures
// do surface.
func (r *Reconciler) ReconcileDate(ctx context.Context, date string) (*record.DayRecords, error) {
	if err := record.ValidateDate(date); err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpReconcile, err)
	}

	day, err := r.store.Get(ctx, date)
	if err != nil {
		return nil, err
	}

	if err := r.reconcileCounters(ctx, date, day.Counters); err != nil {
		return nil, err
	}
	if err := r.reconcileChecklist(ctx, date, day.Checklist); err != nil {
		return nil, err
	}

	if err := r.refreshPending(ctx); err != nil {
		return nil, err
	}

	// Re-read so the caller sees exactly what was persisted.
	return r.store.Get(ctx, date)
}

// reconcileCounters applies the three-way counter merge. A fetch failure is
// terminal for the pass: local records stay untouched and connectivity goes
// offline.
func (r *Reconciler) reconcileCounters(ctx context.Context, date string, locals []*record.CounterRecord) error {
	remotes, err := r.remote.FetchCounters(ctx, date)
	if err != nil {
		if syncErrors.IsUnreachable(err) {
			r.status.SetOnline(false)
			r.logger.Debug("counter fetch failed, keeping local state", slog.String("date", date))
			return nil
		}
		return err
	}
	r.status.SetOnline(true)

	remoteByName := make(map[string]RemoteCounter, len(remotes))
	for _, rc := range remotes {
		remoteByName[rc.Name] = rc
	}

	localNames := make(map[string]bool, len(locals))
	for _, local := range locals {
		localNames[local.Name] = true
		rc, ok := remoteByName[local.Name]
		if !ok {
			// Name known only locally: left untouched, stays dirty if dirty.
			continue
		}
		if err := r.mergeCounter(ctx, local.Name, date, rc); err != nil {
			return err
		}
	}

	// Names only the server knows seed new clean local records: the server's
	// set is the authoritative name catalog.
	for _, rc := range remotes {
		if localNames[rc.Name] {
			continue
		}
		rec := &record.CounterRecord{
			Name:       rc.Name,
			Date:       date,
			Count:      rc.Count,
			Target:     rc.Target,
			Dirty:      false,
			ModifiedAt: r.now(),
		}
		if err := r.store.PutCounters(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

// mergeCounter decides push/pull/synced for one counter under its key lock.
// The decision is always made against the latest persisted value, not the
// snapshot taken when the pass started.
func (r *Reconciler) mergeCounter(ctx context.Context, name, date string, rc RemoteCounter) error {
	unlock := r.locks.Lock(lockKey(record.KindCounter, name, date))
	defer unlock()

	local, err := r.store.GetCounter(ctx, name, date)
	if err != nil {
		return err
	}
	if local == nil {
		return nil
	}

	switch {
	case !local.Dirty:
		// No local intent: accept remote unconditionally.
		if local.Count != rc.Count {
			local.Count = rc.Count
			local.ModifiedAt = r.now()
			if err := r.store.PutCounters(ctx, local); err != nil {
				return err
			}
		}

	case local.Count > rc.Count:
		// Local is ahead: an increment made offline or whose push failed.
		// Keep local, push, and clear dirty only once the push lands.
		if err := r.remote.PushCounterCount(ctx, name, date, local.Count); err != nil {
			if syncErrors.IsUnreachable(err) {
				r.status.SetOnline(false)
				r.enqueueRetry(record.KindCounter, name, date)
				return nil
			}
			return err
		}
		r.status.SetOnline(true)
		if err := r.store.MarkSynced(ctx, record.KindCounter, name, date); err != nil {
			return err
		}

	case local.Count < rc.Count:
		// Server is ahead, likely written from another client.
		local.Count = rc.Count
		local.Dirty = false
		local.ModifiedAt = r.now()
		if err := r.store.PutCounters(ctx, local); err != nil {
			return err
		}

	default:
		// Equal: the in-flight push already landed.
		if err := r.store.MarkSynced(ctx, record.KindCounter, name, date); err != nil {
			return err
		}
	}

	return nil
}

// reconcileChecklist applies the asymmetric checklist merge: local intent
// always wins when dirty.
func (r *Reconciler) reconcileChecklist(ctx context.Context, date string, locals []*record.ChecklistRecord) error {
	remotes, err := r.remote.FetchChecklist(ctx, date)
	if err != nil {
		if syncErrors.IsUnreachable(err) {
			r.status.SetOnline(false)
			r.logger.Debug("checklist fetch failed, keeping local state", slog.String("date", date))
			return nil
		}
		return err
	}
	r.status.SetOnline(true)

	remoteByName := make(map[string]RemoteChecklistItem, len(remotes))
	for _, ri := range remotes {
		remoteByName[ri.Name] = ri
	}

	localNames := make(map[string]bool, len(locals))
	for _, local := range locals {
		localNames[local.Name] = true
		ri, ok := remoteByName[local.Name]
		if !ok {
			continue
		}
		if err := r.mergeChecklistItem(ctx, local.Name, date, ri); err != nil {
			return err
		}
	}

	for _, ri := range remotes {
		if localNames[ri.Name] {
			continue
		}
		rec := &record.ChecklistRecord{
			Name:         ri.Name,
			DisplayLabel: ri.DisplayLabel,
			Category:     ri.Category,
			Date:         date,
			Completed:    ri.Completed,
			Dirty:        false,
			ModifiedAt:   r.now(),
		}
		if ri.Completed {
			now := r.now()
			rec.CompletedAt = &now
		}
		if err := r.store.PutChecklist(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reconciler) mergeChecklistItem(ctx context.Context, name, date string, ri RemoteChecklistItem) error {
	unlock := r.locks.Lock(lockKey(record.KindChecklist, name, date))
	defer unlock()

	local, err := r.store.GetChecklistItem(ctx, name, date)
	if err != nil {
		return err
	}
	if local == nil {
		return nil
	}

	if local.Dirty {
		// The user's explicit toggle is authoritative over a possibly-stale
		// remote read, regardless of the remote value.
		if err := r.remote.PushChecklistState(ctx, name, date, local.Completed); err != nil {
			if syncErrors.IsUnreachable(err) {
				r.status.SetOnline(false)
				r.enqueueRetry(record.KindChecklist, name, date)
				return nil
			}
			return err
		}
		r.status.SetOnline(true)
		return r.store.MarkSynced(ctx, record.KindChecklist, name, date)
	}

	if local.Completed != ri.Completed {
		local.Completed = ri.Completed
		if ri.Completed {
			now := r.now()
			local.CompletedAt = &now
		} else {
			local.CompletedAt = nil
		}
		local.ModifiedAt = r.now()
		return r.store.PutChecklist(ctx, local)
	}
	return nil
}

func (r *Reconciler) enqueueRetry(kind record.Kind, name, date string) {
	if r.retry != nil {
		r.retry.Enqueue(kind, name, date)
	}
}

// refreshPending re-derives the global "has pending sync" status from the
// dirty set across all dates.
func (r *Reconciler) refreshPending(ctx context.Context) error {
	n, err := r.store.CountDirty(ctx)
	if err != nil {
		return err
	}
	r.status.SetPending(n)
	return nil
}

func lockKey(kind record.Kind, name, date string) string {
	return string(kind) + ":" + name + "@" + date
}
