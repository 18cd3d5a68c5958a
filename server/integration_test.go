package server_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	bhaktisync "github.com/bhaktidev/bhakti-sync"
	"github.com/bhaktidev/bhakti-sync/record"
	"github.com/bhaktidev/bhakti-sync/server"
	"github.com/bhaktidev/bhakti-sync/storage/sqlite"
	"github.com/bhaktidev/bhakti-sync/transport/httptransport"
)

const day = "2025-03-01"

// newStack wires a real engine (sqlite local store, HTTP transport) against
// a real server handler, the full production path end to end.
func newStack(t *testing.T) (*bhaktisync.Engine, *httptest.Server) {
	t.Helper()

	serverStore, err := server.OpenStore(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { serverStore.Close() })

	ts := httptest.NewServer(server.NewHandler(serverStore).Routes())
	t.Cleanup(ts.Close)

	localStore, err := sqlite.NewWithDataSource(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("sqlite.NewWithDataSource: %v", err)
	}

	client := httptransport.NewClient(ts.URL, httptransport.WithTimeout(2*time.Second))

	engine, err := bhaktisync.NewEngine(localStore, client,
		bhaktisync.WithRetryPolicy(3, 5*time.Millisecond, 20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return engine, ts
}

func TestEndToEndLoadAndIncrement(t *testing.T) {
	engine, _ := newStack(t)
	ctx := context.Background()

	day1, err := engine.Load(ctx, day)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(day1.Counters) != len(record.DefaultCounters) {
		t.Fatalf("got %d counters, want %d", len(day1.Counters), len(record.DefaultCounters))
	}
	if !engine.Status().Snapshot().Online {
		t.Error("engine should be online against a live server")
	}

	rec, err := engine.IncrementCounter(ctx, "first", day)
	if err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("count = %d, want 1", rec.Count)
	}

	// The background push lands; a fresh reconcile confirms both sides agree
	// and the dirty flag is gone.
	deadline := time.Now().Add(2 * time.Second)
	for {
		merged, err := engine.Load(ctx, day)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		var first *record.CounterRecord
		for _, c := range merged.Counters {
			if c.Name == "first" {
				first = c
			}
		}
		if first == nil {
			t.Fatal("first counter missing")
		}
		if first.Count == 1 && !first.Dirty {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never converged: %+v", first)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndToEndTwoClientsConverge(t *testing.T) {
	// Two engines sharing one server: writes from one become visible to the
	// other on its next load, and the larger count wins a conflict.
	serverStore, err := server.OpenStore(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { serverStore.Close() })
	ts := httptest.NewServer(server.NewHandler(serverStore).Routes())
	t.Cleanup(ts.Close)

	newEngine := func() *bhaktisync.Engine {
		store, err := sqlite.NewWithDataSource(filepath.Join(t.TempDir(), "local.db"))
		if err != nil {
			t.Fatal(err)
		}
		client := httptransport.NewClient(ts.URL)
		e, err := bhaktisync.NewEngine(store, client)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { e.Close() })
		return e
	}

	a := newEngine()
	b := newEngine()
	ctx := context.Background()

	if _, err := a.Load(ctx, day); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := a.IncrementCounter(ctx, "third", day); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.SyncAll(ctx, day); err != nil {
		t.Fatal(err)
	}

	got, err := b.Load(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range got.Counters {
		if c.Name == "third" {
			if c.Count != 4 {
				t.Errorf("b sees count %d, want 4", c.Count)
			}
			if c.Dirty {
				t.Error("adopted remote state should be clean")
			}
		}
	}
}

func TestEndToEndChecklistRoundTrip(t *testing.T) {
	engine, _ := newStack(t)
	ctx := context.Background()

	if _, err := engine.Load(ctx, day); err != nil {
		t.Fatal(err)
	}
	rec, err := engine.ToggleChecklistItem(ctx, "mangalacharan", day)
	if err != nil {
		t.Fatalf("ToggleChecklistItem: %v", err)
	}
	if !rec.Completed {
		t.Error("toggle should complete the item")
	}
	if err := engine.SyncAll(ctx, day); err != nil {
		t.Fatal(err)
	}

	merged, err := engine.Load(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range merged.Checklist {
		if a.Name == "mangalacharan" {
			if !a.Completed || a.Dirty {
				t.Errorf("after sync: completed=%v dirty=%v", a.Completed, a.Dirty)
			}
		}
	}
}
