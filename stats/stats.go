// Package stats derives read-only statistics from stored counter records.
// It sits outside the sync core: nothing here mutates records or touches
// the network.
package stats

import (
	"context"
	"time"

	"github.com/bhaktidev/bhakti-sync/record"
)

// maxStreakDays bounds the streak walk so a pathological store cannot send
// it scanning years of history.
const maxStreakDays = 365

// CounterSource reads stored counters per date without materializing
// defaults; a never-touched date must come back empty.
type CounterSource interface {
	CountersForDate(ctx context.Context, date string) ([]*record.CounterRecord, error)
}

// DayTotals is one day of per-counter counts.
type DayTotals struct {
	Date   string
	Counts map[string]int
}

// dayComplete reports whether the date's practice is complete: it has at
// least one targeted counter and every targeted counter met its target.
// Untargeted trend counters are ignored.
func dayComplete(counters []*record.CounterRecord) bool {
	targeted := 0
	for _, c := range counters {
		if c.Target == nil {
			continue
		}
		targeted++
		if !c.Complete() {
			return false
		}
	}
	return targeted > 0
}

// Streak returns the number of consecutive complete days ending at today.
// An incomplete today does not break the streak; counting simply starts at
// yesterday, so an ongoing day never hides the run behind it.
func Streak(ctx context.Context, src CounterSource, today time.Time) (int, error) {
	daysBack := 0

	counters, err := src.CountersForDate(ctx, record.FormatDate(today))
	if err != nil {
		return 0, err
	}
	if !dayComplete(counters) {
		daysBack = 1
	}

	streak := 0
	for daysBack <= maxStreakDays {
		date := record.FormatDate(today.AddDate(0, 0, -daysBack))
		counters, err := src.CountersForDate(ctx, date)
		if err != nil {
			return 0, err
		}
		if !dayComplete(counters) {
			break
		}
		streak++
		daysBack++
	}
	return streak, nil
}

// WeeklyTotals returns per-counter counts for the last seven days ending at
// today, oldest first. Days with no records appear with empty counts.
func WeeklyTotals(ctx context.Context, src CounterSource, today time.Time) ([]DayTotals, error) {
	out := make([]DayTotals, 0, 7)
	for i := 6; i >= 0; i-- {
		date := record.FormatDate(today.AddDate(0, 0, -i))
		counters, err := src.CountersForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		day := DayTotals{Date: date, Counts: make(map[string]int, len(counters))}
		for _, c := range counters {
			day.Counts[c.Name] = c.Count
		}
		out = append(out, day)
	}
	return out, nil
}
