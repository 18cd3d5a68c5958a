package bhaktisync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bhaktidev/bhakti-sync/logging"
	"github.com/bhaktidev/bhakti-sync/record"
)

// Engine wires the local store, remote client, reconciler, mutator, and
// retry supervisor into one offline-first sync engine. User actions stay
// fully interactive offline; connectivity only changes what the status
// handle reports.
type Engine struct {
	store  LocalStore
	remote RemoteClient
	status *SyncStatus
	retry  *RetrySupervisor
	recon  *Reconciler
	mut    *Mutator
	logger *logging.Logger

	mu           sync.Mutex
	autoSyncStop chan struct{}
	closed       bool
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	hooks       Hooks
	maxAttempts int
	baseDelay   time.Duration
	backoffCap  time.Duration
	logger      *logging.Logger
}

// WithHooks sets the presentation-layer callbacks.
func WithHooks(h Hooks) EngineOption {
	return func(c *engineConfig) {
		c.hooks = h
	}
}

// WithRetryPolicy bounds and paces the push retry loop.
func WithRetryPolicy(maxAttempts int, baseDelay, backoffCap time.Duration) EngineOption {
	return func(c *engineConfig) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
		c.backoffCap = backoffCap
	}
}

// WithEngineLogger sets a custom logger.
func WithEngineLogger(l *logging.Logger) EngineOption {
	return func(c *engineConfig) {
		c.logger = l
	}
}

// NewEngine creates an engine over a local store and remote client and
// starts the retry worker. Close releases everything.
func NewEngine(store LocalStore, remote RemoteClient, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}

	cfg := &engineConfig{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		backoffCap:  DefaultBackoffCap,
		logger:      logging.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	status := NewSyncStatus()
	retry := NewRetrySupervisor(store, remote, status,
		WithMaxAttempts(cfg.maxAttempts),
		WithBackoff(cfg.baseDelay, cfg.backoffCap))

	e := &Engine{
		store:  store,
		remote: remote,
		status: status,
		retry:  retry,
		recon:  NewReconciler(store, remote, status, retry),
		mut:    NewMutator(store, retry, status, cfg.hooks),
		logger: cfg.logger,
	}

	retry.Start(context.Background())
	return e, nil
}

// Status returns the shared connectivity/sync-state handle.
func (e *Engine) Status() *SyncStatus {
	return e.status
}

// Load returns the reconciled view of a date: it merges remote state when
// the server is reachable and falls back to local records when it is not.
// This is the natural call on app load or resume.
func (e *Engine) Load(ctx context.Context, date string) (*record.DayRecords, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	e.status.SetSyncing(true)
	defer e.status.SetSyncing(false)

	return e.recon.ReconcileDate(ctx, date)
}

// LocalDay returns the local records for a date without touching the
// network, materializing defaults if needed.
func (e *Engine) LocalDay(ctx context.Context, date string) (*record.DayRecords, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, date)
}

// IncrementCounter applies one user tap: durable local increment, then a
// fire-and-forget push.
func (e *Engine) IncrementCounter(ctx context.Context, name, date string) (*record.CounterRecord, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.mut.IncrementCounter(ctx, name, date)
}

// ToggleChecklistItem flips one activity: durable local toggle, then a
// fire-and-forget push.
func (e *Engine) ToggleChecklistItem(ctx context.Context, name, date string) (*record.ChecklistRecord, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.mut.ToggleChecklistItem(ctx, name, date)
}

// SyncAll reconciles a date and sweeps every dirty record across all dates
// into the retry queue. Dirty records the reconciler already handled will be
// clean by the time the queue drains and are dropped silently.
func (e *Engine) SyncAll(ctx context.Context, date string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	e.status.SetSyncing(true)
	defer e.status.SetSyncing(false)

	if _, err := e.recon.ReconcileDate(ctx, date); err != nil {
		return err
	}

	counters, checklist, err := e.store.QueryDirty(ctx)
	if err != nil {
		return err
	}
	for _, c := range counters {
		e.retry.Enqueue(record.KindCounter, c.Name, c.Date)
	}
	for _, a := range checklist {
		e.retry.Enqueue(record.KindChecklist, a.Name, a.Date)
	}

	e.logger.Debug("sync sweep scheduled",
		slog.Int("dirty_counters", len(counters)),
		slog.Int("dirty_checklist", len(checklist)))
	return nil
}

// StartAutoSync begins periodic SyncAll passes for the current local day at
// the given interval.
func (e *Engine) StartAutoSync(ctx context.Context, interval time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine is closed")
	}
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if e.autoSyncStop != nil {
		return fmt.Errorf("auto sync is already running")
	}

	e.autoSyncStop = make(chan struct{})
	stop := e.autoSyncStop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := e.SyncAll(syncCtx, record.FormatDate(time.Now())); err != nil {
					e.logger.LogError(syncCtx, err, "auto sync failed")
				}
				cancel()
			}
		}
	}()

	return nil
}

// StopAutoSync stops the periodic pass.
func (e *Engine) StopAutoSync() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.autoSyncStop == nil {
		return fmt.Errorf("auto sync is not running")
	}

	close(e.autoSyncStop)
	e.autoSyncStop = nil
	return nil
}

// Close shuts down the engine: the retry worker stops (queued pushes stay
// dirty in storage), then the transport and store close.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.autoSyncStop != nil {
		close(e.autoSyncStop)
		e.autoSyncStop = nil
	}
	e.mu.Unlock()

	e.retry.Stop()

	var errs []error
	if err := e.remote.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close remote client: %w", err))
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine is closed")
	}
	return nil
}
