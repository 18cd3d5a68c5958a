package bhaktisync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
	"github.com/bhaktidev/bhakti-sync/logging"
	"github.com/bhaktidev/bhakti-sync/record"
)

// Retry defaults. The backoff before attempt n is min(base<<n, cap), so with
// the defaults: 1s, 2s, 4s, 8s, 16s, then a last try at 30s.
const (
	DefaultMaxAttempts = 6
	DefaultBaseDelay   = time.Second
	DefaultBackoffCap  = 30 * time.Second
)

// pushTask is one pending push, keyed and deduplicated by (kind, name, date).
// The task carries no value snapshot: each attempt reads the latest persisted
// record, so a queued entry always pushes the freshest local state.
type pushTask struct {
	kind    record.Kind
	name    string
	date    string
	attempt int
	nextAt  time.Time
}

// RetrySupervisor re-attempts failed pushes with exponential backoff up to a
// bounded attempt count. The queue is deduplicated by key and drained by a
// single worker, so concurrent enqueues from mutation callers are safe.
//
// Abandonment is not data loss: an abandoned record stays dirty in storage
// and the next reconciliation pass picks it up again.
type RetrySupervisor struct {
	store  LocalStore
	remote RemoteClient
	status *SyncStatus
	locks  *keyLock
	logger *logging.Logger

	maxAttempts int
	baseDelay   time.Duration
	backoffCap  time.Duration
	now         func() time.Time

	mu      sync.Mutex
	tasks   map[string]*pushTask
	started bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// RetryOption configures a RetrySupervisor.
type RetryOption func(*RetrySupervisor)

// WithMaxAttempts bounds the retry loop per record.
func WithMaxAttempts(n int) RetryOption {
	return func(rs *RetrySupervisor) {
		rs.maxAttempts = n
	}
}

// WithBackoff sets the base delay and the delay cap.
func WithBackoff(base, cap time.Duration) RetryOption {
	return func(rs *RetrySupervisor) {
		rs.baseDelay = base
		rs.backoffCap = cap
	}
}

// NewRetrySupervisor creates a supervisor; call Start to begin draining.
func NewRetrySupervisor(store LocalStore, remote RemoteClient, status *SyncStatus, opts ...RetryOption) *RetrySupervisor {
	rs := &RetrySupervisor{
		store:       store,
		remote:      remote,
		status:      status,
		locks:       newKeyLock(),
		logger:      logging.WithComponent("retry"),
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		backoffCap:  DefaultBackoffCap,
		now:         time.Now,
		tasks:       make(map[string]*pushTask),
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// Enqueue schedules an immediate push attempt for one record. Enqueueing an
// already-queued key is a no-op; the existing entry will carry the latest
// local value once it fires.
func (rs *RetrySupervisor) Enqueue(kind record.Kind, name, date string) {
	key := lockKey(kind, name, date)

	rs.mu.Lock()
	if _, queued := rs.tasks[key]; !queued {
		rs.tasks[key] = &pushTask{
			kind:   kind,
			name:   name,
			date:   date,
			nextAt: rs.now(),
		}
	}
	rs.mu.Unlock()

	select {
	case rs.wake <- struct{}{}:
	default:
	}
}

// Len reports how many pushes are queued.
func (rs *RetrySupervisor) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.tasks)
}

// Start launches the worker loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled.
func (rs *RetrySupervisor) Start(ctx context.Context) {
	rs.mu.Lock()
	if rs.started {
		rs.mu.Unlock()
		return
	}
	rs.started = true
	rs.mu.Unlock()

	rs.wg.Add(1)
	go rs.run(ctx)
}

// Stop terminates the worker loop and waits for it to exit. Queued tasks are
// dropped; their records remain dirty in storage.
func (rs *RetrySupervisor) Stop() {
	rs.mu.Lock()
	if !rs.started {
		rs.mu.Unlock()
		return
	}
	rs.started = false
	rs.mu.Unlock()

	close(rs.stop)
	rs.wg.Wait()
}

func (rs *RetrySupervisor) run(ctx context.Context) {
	defer rs.wg.Done()

	for {
		task, wait := rs.nextDue()

		if task == nil {
			// Idle until new work arrives.
			select {
			case <-ctx.Done():
				return
			case <-rs.stop:
				return
			case <-rs.wake:
				continue
			}
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-rs.stop:
				timer.Stop()
				return
			case <-rs.wake:
				// New work may be due sooner; re-evaluate.
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		rs.attempt(ctx, task)
	}
}

// nextDue returns the earliest queued task and how long until it is due.
func (rs *RetrySupervisor) nextDue() (*pushTask, time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var earliest *pushTask
	for _, t := range rs.tasks {
		if earliest == nil || t.nextAt.Before(earliest.nextAt) {
			earliest = t
		}
	}
	if earliest == nil {
		return nil, 0
	}
	return earliest, time.Until(earliest.nextAt)
}

// attempt pushes the current persisted value for one record. It re-checks
// the dirty flag first and drops the task silently if another path (a
// reconciler pass, typically) already synced it.
func (rs *RetrySupervisor) attempt(ctx context.Context, task *pushTask) {
	key := lockKey(task.kind, task.name, task.date)

	unlock := rs.locks.Lock(key)
	defer unlock()

	dirty, err := rs.pushCurrent(ctx, task)
	if err == nil {
		rs.remove(key)
		if dirty {
			rs.status.SetOnline(true)
			rs.refreshPending(ctx)
		}
		return
	}

	if !syncErrors.IsUnreachable(err) {
		// Storage failure or bad record: backing off will not help.
		rs.logger.LogError(ctx, err, "abandoning push", slog.String("key", key))
		rs.remove(key)
		return
	}

	rs.status.SetOnline(false)
	task.attempt++
	if task.attempt >= rs.maxAttempts {
		rs.logger.Warn("push abandoned after max attempts",
			slog.String("key", key),
			slog.Int("attempts", task.attempt))
		rs.remove(key)
		return
	}
	task.nextAt = rs.now().Add(rs.backoff(task.attempt))
}

// pushCurrent reads the latest persisted record and pushes it. The bool
// reports whether a push actually happened (false when the record was
// already clean or gone).
func (rs *RetrySupervisor) pushCurrent(ctx context.Context, task *pushTask) (bool, error) {
	switch task.kind {
	case record.KindCounter:
		rec, err := rs.store.GetCounter(ctx, task.name, task.date)
		if err != nil {
			return false, err
		}
		if rec == nil || !rec.Dirty {
			return false, nil
		}
		if err := rs.remote.PushCounterCount(ctx, task.name, task.date, rec.Count); err != nil {
			return true, err
		}
		return true, rs.store.MarkSynced(ctx, record.KindCounter, task.name, task.date)

	default:
		rec, err := rs.store.GetChecklistItem(ctx, task.name, task.date)
		if err != nil {
			return false, err
		}
		if rec == nil || !rec.Dirty {
			return false, nil
		}
		if err := rs.remote.PushChecklistState(ctx, task.name, task.date, rec.Completed); err != nil {
			return true, err
		}
		return true, rs.store.MarkSynced(ctx, record.KindChecklist, task.name, task.date)
	}
}

func (rs *RetrySupervisor) remove(key string) {
	rs.mu.Lock()
	delete(rs.tasks, key)
	rs.mu.Unlock()
}

func (rs *RetrySupervisor) refreshPending(ctx context.Context) {
	if n, err := rs.store.CountDirty(ctx); err == nil {
		rs.status.SetPending(n)
	}
}

// backoff returns the delay before attempt n: min(base<<n, cap).
func (rs *RetrySupervisor) backoff(attempt int) time.Duration {
	d := rs.baseDelay << uint(attempt)
	if d > rs.backoffCap || d <= 0 {
		return rs.backoffCap
	}
	return d
}
