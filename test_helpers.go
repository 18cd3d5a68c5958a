package bhaktisync

import (
	"context"
	"fmt"
	"sync"
	"time"

	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
	"github.com/bhaktidev/bhakti-sync/record"
)

// memStore implements a simple in-memory LocalStore for testing. The sqlite
// implementation has its own tests; engine-level tests use this to keep
// failure injection easy.
type memStore struct {
	mu        sync.Mutex
	counters  map[record.Key]*record.CounterRecord
	checklist map[record.Key]*record.ChecklistRecord
	failPuts  bool
	closed    bool
}

func newMemStore() *memStore {
	return &memStore{
		counters:  make(map[record.Key]*record.CounterRecord),
		checklist: make(map[record.Key]*record.ChecklistRecord),
	}
}

func (s *memStore) EnsureDefaults(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, rec := range record.NewDefaultCounters(date, now) {
		if _, ok := s.counters[rec.Key()]; !ok {
			s.counters[rec.Key()] = rec
		}
	}
	for _, rec := range record.NewDefaultChecklist(date, now) {
		if _, ok := s.checklist[rec.Key()]; !ok {
			s.checklist[rec.Key()] = rec
		}
	}
	return nil
}

func (s *memStore) Get(ctx context.Context, date string) (*record.DayRecords, error) {
	if err := s.EnsureDefaults(ctx, date); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day := &record.DayRecords{Date: date}
	for _, spec := range record.DefaultCounters {
		if rec, ok := s.counters[record.Key{Name: spec.Name, Date: date}]; ok {
			c := *rec
			day.Counters = append(day.Counters, &c)
		}
	}
	for key, rec := range s.counters {
		if key.Date == date && record.CounterOrder(key.Name) == len(record.DefaultCounters) {
			c := *rec
			day.Counters = append(day.Counters, &c)
		}
	}
	for _, spec := range record.DefaultActivities {
		if rec, ok := s.checklist[record.Key{Name: spec.Name, Date: date}]; ok {
			a := *rec
			day.Checklist = append(day.Checklist, &a)
		}
	}
	for key, rec := range s.checklist {
		if key.Date == date && record.ChecklistOrder(key.Name) == len(record.DefaultActivities) {
			a := *rec
			day.Checklist = append(day.Checklist, &a)
		}
	}
	return day, nil
}

func (s *memStore) PutCounters(_ context.Context, recs ...*record.CounterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPuts {
		return syncErrors.NewStorageError(syncErrors.OpPut, fmt.Errorf("injected write failure"))
	}
	for _, rec := range recs {
		c := *rec
		s.counters[rec.Key()] = &c
	}
	return nil
}

func (s *memStore) PutChecklist(_ context.Context, recs ...*record.ChecklistRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPuts {
		return syncErrors.NewStorageError(syncErrors.OpPut, fmt.Errorf("injected write failure"))
	}
	for _, rec := range recs {
		a := *rec
		s.checklist[rec.Key()] = &a
	}
	return nil
}

func (s *memStore) GetCounter(_ context.Context, name, date string) (*record.CounterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.counters[record.Key{Name: name, Date: date}]
	if !ok {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (s *memStore) GetChecklistItem(_ context.Context, name, date string) (*record.ChecklistRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.checklist[record.Key{Name: name, Date: date}]
	if !ok {
		return nil, nil
	}
	a := *rec
	return &a, nil
}

func (s *memStore) MarkSynced(_ context.Context, kind record.Kind, name, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := record.Key{Name: name, Date: date}
	if kind == record.KindCounter {
		if rec, ok := s.counters[key]; ok {
			rec.Dirty = false
			return nil
		}
	} else {
		if rec, ok := s.checklist[key]; ok {
			rec.Dirty = false
			return nil
		}
	}
	return syncErrors.NewValidationError(syncErrors.OpMarkSynced, fmt.Errorf("no %s record for %s", kind, key))
}

func (s *memStore) QueryDirty(_ context.Context) ([]*record.CounterRecord, []*record.ChecklistRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counters []*record.CounterRecord
	var checklist []*record.ChecklistRecord
	for _, rec := range s.counters {
		if rec.Dirty {
			c := *rec
			counters = append(counters, &c)
		}
	}
	for _, rec := range s.checklist {
		if rec.Dirty {
			a := *rec
			checklist = append(checklist, &a)
		}
	}
	return counters, checklist, nil
}

func (s *memStore) CountDirty(ctx context.Context) (int, error) {
	counters, checklist, err := s.QueryDirty(ctx)
	if err != nil {
		return 0, err
	}
	return len(counters) + len(checklist), nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeRemote implements a scriptable RemoteClient for testing. It holds
// server-side state in memory and can be switched unreachable at any point.
type fakeRemote struct {
	mu          sync.Mutex
	unreachable bool
	counters    map[record.Key]RemoteCounter
	checklist   map[record.Key]RemoteChecklistItem

	fetchCounterCalls   int
	fetchChecklistCalls int
	pushCounterCalls    int
	pushChecklistCalls  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		counters:  make(map[record.Key]RemoteCounter),
		checklist: make(map[record.Key]RemoteChecklistItem),
	}
}

func (f *fakeRemote) setUnreachable(v bool) {
	f.mu.Lock()
	f.unreachable = v
	f.mu.Unlock()
}

// seedDefaults mirrors the server's own lazy materialization for a date.
func (f *fakeRemote) seedDefaults(date string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, spec := range record.DefaultCounters {
		key := record.Key{Name: spec.Name, Date: date}
		if _, ok := f.counters[key]; !ok {
			f.counters[key] = RemoteCounter{Name: spec.Name, Count: 0, Target: spec.Target}
		}
	}
	for _, spec := range record.DefaultActivities {
		key := record.Key{Name: spec.Name, Date: date}
		if _, ok := f.checklist[key]; !ok {
			f.checklist[key] = RemoteChecklistItem{
				Name: spec.Name, DisplayLabel: spec.DisplayLabel, Category: spec.Category,
			}
		}
	}
}

func (f *fakeRemote) setCounter(name, date string, count int, target *int) {
	f.mu.Lock()
	f.counters[record.Key{Name: name, Date: date}] = RemoteCounter{Name: name, Count: count, Target: target}
	f.mu.Unlock()
}

func (f *fakeRemote) setChecklistItem(name, date string, completed bool) {
	f.mu.Lock()
	f.checklist[record.Key{Name: name, Date: date}] = RemoteChecklistItem{Name: name, Completed: completed}
	f.mu.Unlock()
}

func (f *fakeRemote) counter(name, date string) (RemoteCounter, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.counters[record.Key{Name: name, Date: date}]
	return rc, ok
}

func (f *fakeRemote) checklistItem(name, date string) (RemoteChecklistItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ri, ok := f.checklist[record.Key{Name: name, Date: date}]
	return ri, ok
}

func (f *fakeRemote) fail(op syncErrors.Operation) error {
	return syncErrors.NewNetworkError(op, fmt.Errorf("connection refused"))
}

func (f *fakeRemote) FetchCounters(_ context.Context, date string) ([]RemoteCounter, error) {
	f.mu.Lock()
	f.fetchCounterCalls++
	unreachable := f.unreachable
	f.mu.Unlock()
	if unreachable {
		return nil, f.fail(syncErrors.OpFetch)
	}

	// The real server materializes defaults on first read.
	f.seedDefaults(date)

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RemoteCounter
	for key, rc := range f.counters {
		if key.Date == date {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (f *fakeRemote) FetchChecklist(_ context.Context, date string) ([]RemoteChecklistItem, error) {
	f.mu.Lock()
	f.fetchChecklistCalls++
	unreachable := f.unreachable
	f.mu.Unlock()
	if unreachable {
		return nil, f.fail(syncErrors.OpFetch)
	}

	f.seedDefaults(date)

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RemoteChecklistItem
	for key, ri := range f.checklist {
		if key.Date == date {
			out = append(out, ri)
		}
	}
	return out, nil
}

func (f *fakeRemote) PushCounterCount(_ context.Context, name, date string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushCounterCalls++
	if f.unreachable {
		return syncErrors.NewNetworkError(syncErrors.OpPush, fmt.Errorf("connection refused"))
	}
	key := record.Key{Name: name, Date: date}
	rc := f.counters[key]
	rc.Name, rc.Count = name, count
	f.counters[key] = rc
	return nil
}

func (f *fakeRemote) PushChecklistState(_ context.Context, name, date string, completed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushChecklistCalls++
	if f.unreachable {
		return syncErrors.NewNetworkError(syncErrors.OpPush, fmt.Errorf("connection refused"))
	}
	key := record.Key{Name: name, Date: date}
	ri := f.checklist[key]
	ri.Name, ri.Completed = name, completed
	f.checklist[key] = ri
	return nil
}

func (f *fakeRemote) Close() error { return nil }
