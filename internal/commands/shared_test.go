package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/bhaktidev/bhakti-sync/record"
)

func TestResolveDate(t *testing.T) {
	got, err := resolveDate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != record.FormatDate(time.Now()) {
		t.Errorf("default date = %q, want today", got)
	}

	got, err = resolveDate([]string{"2025-03-01"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "2025-03-01" {
		t.Errorf("date = %q", got)
	}

	if _, err := resolveDate([]string{"march 1st"}); err == nil {
		t.Error("malformed date should be rejected")
	}
}

func TestDateArgs(t *testing.T) {
	if got := dateArgs(""); got != nil {
		t.Errorf("empty flag should yield nil, got %v", got)
	}
	if got := dateArgs("2025-03-01"); len(got) != 1 || got[0] != "2025-03-01" {
		t.Errorf("dateArgs = %v", got)
	}
}

func TestFormatCounter(t *testing.T) {
	target := 108
	line := formatCounter(&record.CounterRecord{
		Name: "first", Date: "2025-03-01", Count: 54, Target: &target, Dirty: true,
	})
	if !strings.Contains(line, "54/108") || !strings.Contains(line, "50%") {
		t.Errorf("line = %q", line)
	}
	if !strings.HasPrefix(line, "*") {
		t.Errorf("dirty marker missing: %q", line)
	}

	line = formatCounter(&record.CounterRecord{Name: "dandavat", Date: "2025-03-01", Count: 3})
	if strings.Contains(line, "/") {
		t.Errorf("untargeted counter should not show a target: %q", line)
	}
}

func TestFormatActivity(t *testing.T) {
	line := formatActivity(&record.ChecklistRecord{
		Name: "morning_aarti", DisplayLabel: "Morning Aarti", Date: "2025-03-01", Completed: true,
	})
	if !strings.Contains(line, "[x]") || !strings.Contains(line, "Morning Aarti") {
		t.Errorf("line = %q", line)
	}

	line = formatActivity(&record.ChecklistRecord{
		Name: "mangalacharan", DisplayLabel: "Mangalacharan", Date: "2025-03-01",
	})
	if !strings.Contains(line, "[ ]") {
		t.Errorf("line = %q", line)
	}
}
