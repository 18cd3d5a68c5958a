package bhaktisync

import (
	"sync"
	"time"
)

// Status is a point-in-time snapshot of connectivity and sync state.
//
// Online is advisory: it gates offline indicators only and never blocks a
// network attempt (every attempt is itself the connectivity probe).
// PendingCount is the number of dirty records across all dates.
type Status struct {
	Online       bool
	Syncing      bool
	LastSync     time.Time
	PendingCount int
}

// SyncStatus is an owned, observable connectivity/sync-state holder. It is
// created once per running client instance and shared by handle with every
// component that reads or publishes state; subscribers receive a snapshot
// after each change.
type SyncStatus struct {
	mu          sync.RWMutex
	status      Status
	subscribers map[int]func(Status)
	nextID      int
}

// NewSyncStatus creates a status holder that starts online and idle.
func NewSyncStatus() *SyncStatus {
	return &SyncStatus{
		status:      Status{Online: true},
		subscribers: make(map[int]func(Status)),
	}
}

// Snapshot returns the current state.
func (s *SyncStatus) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Subscribe registers a callback invoked with a snapshot after every state
// change. The returned function unsubscribes; it is safe to call more than
// once.
func (s *SyncStatus) Subscribe(fn func(Status)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// SetOnline publishes connectivity state. A successful network call to any
// endpoint sets online; any transport failure sets offline.
func (s *SyncStatus) SetOnline(online bool) {
	s.update(func(st *Status) { st.Online = online })
}

// SetSyncing publishes whether a reconciliation pass is in flight. Leaving
// the syncing state also stamps LastSync.
func (s *SyncStatus) SetSyncing(syncing bool) {
	s.update(func(st *Status) {
		if st.Syncing && !syncing {
			st.LastSync = time.Now()
		}
		st.Syncing = syncing
	})
}

// SetPending publishes the count of dirty records awaiting sync.
func (s *SyncStatus) SetPending(n int) {
	s.update(func(st *Status) { st.PendingCount = n })
}

func (s *SyncStatus) update(mutate func(*Status)) {
	s.mu.Lock()
	mutate(&s.status)
	snapshot := s.status
	subscribers := make([]func(Status), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()

	// Notify outside the lock so a subscriber can re-read or unsubscribe.
	for _, fn := range subscribers {
		fn(snapshot)
	}
}
