package bhaktisync

import (
	"context"
	"testing"
	"time"

	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
	"github.com/bhaktidev/bhakti-sync/record"
)

const testDate = "2025-03-01"

func newTestReconciler(t *testing.T) (*Reconciler, *memStore, *fakeRemote, *SyncStatus) {
	t.Helper()
	store := newMemStore()
	remote := newFakeRemote()
	status := NewSyncStatus()
	return NewReconciler(store, remote, status, nil), store, remote, status
}

func TestReconcileMaterializesDefaults(t *testing.T) {
	r, _, _, _ := newTestReconciler(t)

	day, err := r.ReconcileDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("ReconcileDate: %v", err)
	}
	if len(day.Counters) == 0 || len(day.Checklist) == 0 {
		t.Fatalf("defaults not materialized: %+v", day)
	}
	for _, c := range day.Counters {
		if c.Dirty {
			t.Errorf("fresh counter %q should be clean", c.Name)
		}
	}
}

func TestReconcileOfflineKeepsLocalState(t *testing.T) {
	r, store, remote, status := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetCounter(ctx, "first", testDate)
	rec.Count, rec.Dirty = 5, true
	if err := store.PutCounters(ctx, rec); err != nil {
		t.Fatal(err)
	}

	remote.setUnreachable(true)

	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatalf("offline reconcile should not error: %v", err)
	}

	got := findCounter(t, day, "first")
	if got.Count != 5 || !got.Dirty {
		t.Errorf("local state changed while offline: count=%d dirty=%v", got.Count, got.Dirty)
	}
	if status.Snapshot().Online {
		t.Error("status should be offline after failed fetch")
	}
	if remote.pushCounterCalls != 0 {
		t.Errorf("no pushes expected when fetch fails, got %d", remote.pushCounterCalls)
	}
}

func TestReconcileRemoteAheadAccepted(t *testing.T) {
	r, store, remote, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetCounter(ctx, "first", testDate)
	rec.Count, rec.Dirty = 3, false
	if err := store.PutCounters(ctx, rec); err != nil {
		t.Fatal(err)
	}

	target := 108
	remote.setCounter("first", testDate, 10, &target)

	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}

	got := findCounter(t, day, "first")
	if got.Count != 10 {
		t.Errorf("count = %d, want 10 (remote accepted unconditionally when clean)", got.Count)
	}
	if got.Dirty {
		t.Error("record should stay clean")
	}
}

func TestReconcileRemoteAheadClearsDirty(t *testing.T) {
	r, store, remote, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetCounter(ctx, "first", testDate)
	rec.Count, rec.Dirty = 3, true
	if err := store.PutCounters(ctx, rec); err != nil {
		t.Fatal(err)
	}

	target := 108
	remote.setCounter("first", testDate, 10, &target)

	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}

	got := findCounter(t, day, "first")
	if got.Count != 10 || got.Dirty {
		t.Errorf("server-ahead merge: count=%d dirty=%v, want 10/false", got.Count, got.Dirty)
	}
	if remote.pushCounterCalls != 0 {
		t.Error("no push expected when server is ahead")
	}
}

func TestReconcileLocalAheadPushes(t *testing.T) {
	r, store, remote, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetCounter(ctx, "first", testDate)
	rec.Count, rec.Dirty = 12, true
	if err := store.PutCounters(ctx, rec); err != nil {
		t.Fatal(err)
	}

	target := 108
	remote.setCounter("first", testDate, 10, &target)

	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}

	got := findCounter(t, day, "first")
	if got.Count != 12 {
		t.Errorf("local count changed: %d, want 12", got.Count)
	}
	if got.Dirty {
		t.Error("dirty should clear after successful push")
	}
	if rc, _ := remote.counter("first", testDate); rc.Count != 12 {
		t.Errorf("server count = %d, want 12", rc.Count)
	}
}

func TestReconcileEqualCountsClearDirty(t *testing.T) {
	r, store, remote, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetCounter(ctx, "first", testDate)
	rec.Count, rec.Dirty = 7, true
	if err := store.PutCounters(ctx, rec); err != nil {
		t.Fatal(err)
	}

	target := 108
	remote.setCounter("first", testDate, 7, &target)

	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}

	got := findCounter(t, day, "first")
	if got.Dirty {
		t.Error("equal counts: the in-flight push already landed, dirty must clear")
	}
	if got.Count != 7 {
		t.Errorf("count = %d, want 7", got.Count)
	}
	if remote.pushCounterCalls != 0 {
		t.Error("equal counts need no push")
	}
}

func TestReconcileConvergenceAfterReconnect(t *testing.T) {
	// Five offline increments, then reconnection.
	r, store, remote, status := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetCounter(ctx, "first", testDate)
	rec.Count, rec.Dirty = 5, true
	rec.ModifiedAt = time.Now()
	if err := store.PutCounters(ctx, rec); err != nil {
		t.Fatal(err)
	}

	remote.setUnreachable(true)
	if _, err := r.ReconcileDate(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetCounter(ctx, "first", testDate)
	if got.Count != 5 || !got.Dirty {
		t.Fatalf("offline pass changed state: %+v", got)
	}

	remote.setUnreachable(false)
	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}

	merged := findCounter(t, day, "first")
	if merged.Count != 5 || merged.Dirty {
		t.Errorf("after reconnect: count=%d dirty=%v, want 5/false", merged.Count, merged.Dirty)
	}
	if rc, _ := remote.counter("first", testDate); rc.Count != 5 {
		t.Errorf("server count = %d, want 5", rc.Count)
	}
	if !status.Snapshot().Online {
		t.Error("status should be online after successful pass")
	}
	if status.Snapshot().PendingCount != 0 {
		t.Errorf("pending = %d, want 0", status.Snapshot().PendingCount)
	}
}

func TestReconcileChecklistLocalIntentWins(t *testing.T) {
	r, store, remote, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	rec, _ := store.GetChecklistItem(ctx, "morning_aarti", testDate)
	rec.Completed, rec.CompletedAt, rec.Dirty = true, &now, true
	if err := store.PutChecklist(ctx, rec); err != nil {
		t.Fatal(err)
	}

	remote.setChecklistItem("morning_aarti", testDate, false)

	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}

	got := findChecklistItem(t, day, "morning_aarti")
	if !got.Completed {
		t.Error("local toggle must win over stale remote read")
	}
	if got.Dirty {
		t.Error("dirty should clear after push confirms")
	}
	if ri, _ := remote.checklistItem("morning_aarti", testDate); !ri.Completed {
		t.Error("server should carry the local state after reconcile")
	}
}

func TestReconcileChecklistCleanAcceptsRemote(t *testing.T) {
	r, store, remote, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}

	remote.setChecklistItem("evening_aarti", testDate, true)

	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}

	got := findChecklistItem(t, day, "evening_aarti")
	if !got.Completed {
		t.Error("clean record should accept remote completed state")
	}
	if got.Dirty {
		t.Error("accepted remote state is not dirty")
	}
	if remote.pushChecklistCalls != 0 {
		t.Error("no push expected for clean records")
	}
}

func TestReconcileRemoteOnlyNameCreatesCleanRecord(t *testing.T) {
	r, store, remote, _ := newTestReconciler(t)
	ctx := context.Background()

	target := 21
	remote.setCounter("gayatri", testDate, 4, &target)

	if _, err := r.ReconcileDate(ctx, testDate); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetCounter(ctx, "gayatri", testDate)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("remote-only name should create a local record")
	}
	if got.Count != 4 || got.Dirty {
		t.Errorf("seeded record: count=%d dirty=%v, want 4/false", got.Count, got.Dirty)
	}
	if got.Target == nil || *got.Target != 21 {
		t.Errorf("seeded target = %v, want 21", got.Target)
	}
}

func TestReconcileLocalOnlyNameUntouched(t *testing.T) {
	r, store, _, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}

	local, _ := store.GetCounter(ctx, "first", testDate)
	local.Name = "local_only"
	local.Count, local.Dirty = 9, true
	if err := store.PutCounters(ctx, local); err != nil {
		t.Fatal(err)
	}

	if _, err := r.ReconcileDate(ctx, testDate); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetCounter(ctx, "local_only", testDate)
	if got == nil || got.Count != 9 || !got.Dirty {
		t.Errorf("local-only record should be left untouched, got %+v", got)
	}
}

func TestReconcilePushFailureKeepsRecordDirty(t *testing.T) {
	// Fetch succeeds but individual pushes fail: the rest of the merge
	// continues and only the pushed record stays dirty.
	store := newMemStore()
	remote := newFakeRemote()
	status := NewSyncStatus()
	retry := NewRetrySupervisor(store, remote, status)
	r := NewReconciler(store, remote, status, retry)
	ctx := context.Background()

	if _, err := store.Get(ctx, testDate); err != nil {
		t.Fatal(err)
	}
	rec, _ := store.GetCounter(ctx, "first", testDate)
	rec.Count, rec.Dirty = 5, true
	if err := store.PutCounters(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// Remote state is readable but pushes are rejected: simulate with a
	// remote that goes unreachable between fetch and push by pre-seeding
	// and flipping inside the fake is overkill; instead verify through a
	// remote that is fully unreachable only for pushes.
	pushFail := &pushFailingRemote{fakeRemote: remote}
	r.remote = pushFail
	retry.remote = pushFail

	day, err := r.ReconcileDate(ctx, testDate)
	if err != nil {
		t.Fatal(err)
	}

	got := findCounter(t, day, "first")
	if got.Count != 5 || !got.Dirty {
		t.Errorf("failed push must keep record dirty: count=%d dirty=%v", got.Count, got.Dirty)
	}
	if retry.Len() != 1 {
		t.Errorf("failed push should be queued for retry, queue len = %d", retry.Len())
	}
	if status.Snapshot().PendingCount != 1 {
		t.Errorf("pending = %d, want 1", status.Snapshot().PendingCount)
	}
}

// pushFailingRemote lets fetches through and rejects every push.
type pushFailingRemote struct {
	*fakeRemote
}

func (p *pushFailingRemote) PushCounterCount(ctx context.Context, name, date string, count int) error {
	return syncErrors.NewNetworkError(syncErrors.OpPush, context.DeadlineExceeded)
}

func (p *pushFailingRemote) PushChecklistState(ctx context.Context, name, date string, completed bool) error {
	return syncErrors.NewNetworkError(syncErrors.OpPush, context.DeadlineExceeded)
}

func findCounter(t *testing.T, day *record.DayRecords, name string) *record.CounterRecord {
	t.Helper()
	for _, c := range day.Counters {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("counter %q not found", name)
	return nil
}

func findChecklistItem(t *testing.T, day *record.DayRecords, name string) *record.ChecklistRecord {
	t.Helper()
	for _, c := range day.Checklist {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("checklist item %q not found", name)
	return nil
}
