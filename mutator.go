package bhaktisync

import (
	"context"
	"fmt"
	"time"

	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
	"github.com/bhaktidev/bhakti-sync/logging"
	"github.com/bhaktidev/bhakti-sync/record"
)

// Hooks carries observational callbacks from the mutation path to the
// presentation layer. They have no effect on the data model.
type Hooks struct {
	// OnTargetReached fires exactly once when an increment carries a counter
	// from below its target to at-or-above it. Untargeted counters never
	// fire. There is no un-completion path: counts are never decremented.
	OnTargetReached func(rec record.CounterRecord)
}

// Mutator applies user-initiated mutations optimistically: the local write
// is durable before the call returns, and the push to the server is
// fire-and-forget through the retry supervisor. The caller never waits on
// the network.
type Mutator struct {
	store  LocalStore
	retry  *RetrySupervisor
	status *SyncStatus
	locks  *keyLock
	hooks  Hooks
	logger *logging.Logger
	now    func() time.Time
}

// NewMutator creates a mutator that schedules pushes on retry.
func NewMutator(store LocalStore, retry *RetrySupervisor, status *SyncStatus, hooks Hooks) *Mutator {
	return &Mutator{
		store:  store,
		retry:  retry,
		status: status,
		locks:  retry.locks,
		hooks:  hooks,
		logger: logging.WithComponent("mutator"),
		now:    time.Now,
	}
}

// IncrementCounter adds one to a counter, marks it dirty, persists, and
// schedules an asynchronous push. The record must already exist for the
// date: callers are expected to have materialized the day via Get first.
//
// A local storage failure is returned to the caller as a failed mutation;
// it is never silently swallowed.
func (m *Mutator) IncrementCounter(ctx context.Context, name, date string) (*record.CounterRecord, error) {
	unlock := m.locks.Lock(lockKey(record.KindCounter, name, date))
	defer unlock()

	rec, err := m.store.GetCounter(ctx, name, date)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpIncrement,
			fmt.Errorf("no counter %q for %s: day not materialized", name, date))
	}

	wasComplete := rec.Complete()

	rec.Count++
	rec.Dirty = true
	rec.ModifiedAt = m.now()

	if err := m.store.PutCounters(ctx, rec); err != nil {
		return nil, err
	}

	m.afterMutation(ctx, record.KindCounter, name, date)

	if !wasComplete && rec.Complete() && m.hooks.OnTargetReached != nil {
		m.hooks.OnTargetReached(*rec)
	}

	out := *rec
	return &out, nil
}

// ToggleChecklistItem flips an activity's completed state, stamps or clears
// its completion time, persists, and schedules an asynchronous push.
func (m *Mutator) ToggleChecklistItem(ctx context.Context, name, date string) (*record.ChecklistRecord, error) {
	unlock := m.locks.Lock(lockKey(record.KindChecklist, name, date))
	defer unlock()

	rec, err := m.store.GetChecklistItem(ctx, name, date)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpToggle,
			fmt.Errorf("no checklist item %q for %s: day not materialized", name, date))
	}

	rec.Completed = !rec.Completed
	if rec.Completed {
		now := m.now()
		rec.CompletedAt = &now
	} else {
		rec.CompletedAt = nil
	}
	rec.Dirty = true
	rec.ModifiedAt = m.now()

	if err := m.store.PutChecklist(ctx, rec); err != nil {
		return nil, err
	}

	m.afterMutation(ctx, record.KindChecklist, name, date)

	out := *rec
	return &out, nil
}

// afterMutation publishes the new pending count and schedules the push.
func (m *Mutator) afterMutation(ctx context.Context, kind record.Kind, name, date string) {
	if n, err := m.store.CountDirty(ctx); err == nil {
		m.status.SetPending(n)
	}
	m.retry.Enqueue(kind, name, date)
}
