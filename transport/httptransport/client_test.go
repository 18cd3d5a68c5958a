package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
)

func TestFetchCounters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mantras/2025-03-01" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"date":"2025-03-01","mantras":[
			{"name":"first","count":5,"target":108},
			{"name":"dandavat","count":2,"target":null}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	counters, err := client.FetchCounters(context.Background(), "2025-03-01")
	if err != nil {
		t.Fatalf("FetchCounters: %v", err)
	}

	if len(counters) != 2 {
		t.Fatalf("got %d counters, want 2", len(counters))
	}
	if counters[0].Name != "first" || counters[0].Count != 5 {
		t.Errorf("counters[0] = %+v", counters[0])
	}
	if counters[0].Target == nil || *counters[0].Target != 108 {
		t.Errorf("counters[0].Target = %v, want 108", counters[0].Target)
	}
	if counters[1].Target != nil {
		t.Errorf("null target should decode to nil, got %v", *counters[1].Target)
	}
}

func TestFetchChecklist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/activities/2025-03-01" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"date":"2025-03-01","activities":[
			{"name":"morning_aarti","displayName":"Morning Aarti","category":"aarti","completed":true}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	items, err := client.FetchChecklist(context.Background(), "2025-03-01")
	if err != nil {
		t.Fatalf("FetchChecklist: %v", err)
	}
	if len(items) != 1 || !items[0].Completed || items[0].Category != "aarti" {
		t.Errorf("items = %+v", items)
	}
	if items[0].DisplayLabel != "Morning Aarti" {
		t.Errorf("DisplayLabel = %q", items[0].DisplayLabel)
	}
}

func TestPushCounterCount(t *testing.T) {
	var got setMantraRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/mantras" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"name":"first","count":12,"target":108}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.PushCounterCount(context.Background(), "first", "2025-03-01", 12); err != nil {
		t.Fatalf("PushCounterCount: %v", err)
	}
	if got.Name != "first" || got.Date != "2025-03-01" || got.Count != 12 {
		t.Errorf("request body = %+v", got)
	}
}

func TestPushChecklistState(t *testing.T) {
	var got setActivityRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/activities" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"name":"mangalacharan","completed":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.PushChecklistState(context.Background(), "mangalacharan", "2025-03-01", true); err != nil {
		t.Fatalf("PushChecklistState: %v", err)
	}
	if got.Name != "mangalacharan" || !got.Completed {
		t.Errorf("request body = %+v", got)
	}
}

func TestIncrementCounter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/mantras/increment" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"name":"first","count":6,"target":108}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	counter, err := client.IncrementCounter(context.Background(), "first", "2025-03-01")
	if err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if counter.Count != 6 {
		t.Errorf("count = %d, want 6", counter.Count)
	}
}

func TestNon2xxIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.FetchCounters(context.Background(), "2025-03-01")
	if err == nil {
		t.Fatal("expected error")
	}
	if !syncErrors.IsUnreachable(err) {
		t.Errorf("expected unreachable error, got %v", err)
	}
	if !syncErrors.IsRetryable(err) {
		t.Errorf("expected retryable error, got %v", err)
	}
}

func TestConnectionRefusedIsUnreachable(t *testing.T) {
	// A server that was immediately closed leaves a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(url)
	err := client.PushCounterCount(context.Background(), "first", "2025-03-01", 1)
	if !syncErrors.IsUnreachable(err) {
		t.Errorf("expected unreachable error, got %v", err)
	}
}

func TestMalformedResponseIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.FetchCounters(context.Background(), "2025-03-01")
	if !syncErrors.IsUnreachable(err) {
		t.Errorf("decode failure should read as unreachable, got %v", err)
	}
}

func TestSlowServerTimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewClient(srv.URL, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := client.FetchCounters(context.Background(), "2025-03-01")
	if !syncErrors.IsUnreachable(err) {
		t.Errorf("timeout should read as unreachable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("request did not fail fast: %v", elapsed)
	}
}

func TestContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.FetchCounters(ctx, "2025-03-01")
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}
