package bhaktisync

import (
	"sync"
	"testing"
	"time"
)

func TestSyncStatusStartsOnlineIdle(t *testing.T) {
	s := NewSyncStatus()
	got := s.Snapshot()
	if !got.Online {
		t.Error("status should start online")
	}
	if got.Syncing || got.PendingCount != 0 || !got.LastSync.IsZero() {
		t.Errorf("unexpected initial state: %+v", got)
	}
}

func TestSyncStatusNotifiesSubscribers(t *testing.T) {
	s := NewSyncStatus()

	var mu sync.Mutex
	var seen []Status
	unsubscribe := s.Subscribe(func(st Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	s.SetOnline(false)
	s.SetPending(3)

	mu.Lock()
	if len(seen) != 2 {
		t.Fatalf("got %d notifications, want 2", len(seen))
	}
	if seen[0].Online {
		t.Error("first notification should carry offline")
	}
	if seen[1].PendingCount != 3 {
		t.Errorf("second notification pending = %d, want 3", seen[1].PendingCount)
	}
	mu.Unlock()

	unsubscribe()
	s.SetOnline(true)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("notified after unsubscribe: %d notifications", len(seen))
	}
}

func TestSyncStatusUnsubscribeIdempotent(t *testing.T) {
	s := NewSyncStatus()
	unsubscribe := s.Subscribe(func(Status) {})
	unsubscribe()
	unsubscribe()
}

func TestSyncStatusStampsLastSync(t *testing.T) {
	s := NewSyncStatus()

	before := time.Now()
	s.SetSyncing(true)
	if got := s.Snapshot(); !got.Syncing || !got.LastSync.IsZero() {
		t.Errorf("entering sync: %+v", got)
	}

	s.SetSyncing(false)
	got := s.Snapshot()
	if got.Syncing {
		t.Error("should have left syncing state")
	}
	if got.LastSync.Before(before) {
		t.Errorf("LastSync = %v, want >= %v", got.LastSync, before)
	}

	// Setting false again must not move the stamp.
	stamp := got.LastSync
	s.SetSyncing(false)
	if s.Snapshot().LastSync != stamp {
		t.Error("LastSync moved without a completed pass")
	}
}

func TestSyncStatusSubscriberCanReenter(t *testing.T) {
	s := NewSyncStatus()

	// A subscriber reading the snapshot back must not deadlock.
	done := make(chan struct{})
	s.Subscribe(func(Status) {
		_ = s.Snapshot()
		close(done)
	})
	s.SetPending(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber deadlocked")
	}
}
