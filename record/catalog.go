package record

import "time"

// CounterSpec describes one entry in the fixed counter catalog.
type CounterSpec struct {
	Name   string
	Target *int // nil for untargeted trend counters
}

// ChecklistSpec describes one entry in the fixed activity catalog.
type ChecklistSpec struct {
	Name         string
	DisplayLabel string
	Category     string
}

func intPtr(v int) *int { return &v }

// DefaultCounters is the fixed catalog of daily counters.
var DefaultCounters = []CounterSpec{
	{Name: "first", Target: intPtr(108)},
	{Name: "third", Target: intPtr(1000)},
	{Name: "dandavat", Target: nil},
}

// DefaultActivities is the fixed catalog of daily checklist activities.
var DefaultActivities = []ChecklistSpec{
	{Name: "morning_aarti", DisplayLabel: "Morning Aarti", Category: "aarti"},
	{Name: "afternoon_aarti", DisplayLabel: "Afternoon Aarti", Category: "aarti"},
	{Name: "evening_aarti", DisplayLabel: "Evening Aarti", Category: "aarti"},
	{Name: "before_food_aarti", DisplayLabel: "Before Food", Category: "satsang"},
	{Name: "after_food_aarti", DisplayLabel: "After Food", Category: "satsang"},
	{Name: "mangalacharan", DisplayLabel: "Mangalacharan", Category: "satsang"},
}

// NewDefaultCounters materializes the counter catalog for a date with zero
// state. Fresh defaults are clean: they carry no local intent to push.
func NewDefaultCounters(date string, now time.Time) []*CounterRecord {
	out := make([]*CounterRecord, 0, len(DefaultCounters))
	for _, spec := range DefaultCounters {
		out = append(out, &CounterRecord{
			Name:       spec.Name,
			Date:       date,
			Count:      0,
			Target:     spec.Target,
			Dirty:      false,
			ModifiedAt: now,
		})
	}
	return out
}

// NewDefaultChecklist materializes the activity catalog for a date.
func NewDefaultChecklist(date string, now time.Time) []*ChecklistRecord {
	out := make([]*ChecklistRecord, 0, len(DefaultActivities))
	for _, spec := range DefaultActivities {
		out = append(out, &ChecklistRecord{
			Name:         spec.Name,
			DisplayLabel: spec.DisplayLabel,
			Category:     spec.Category,
			Date:         date,
			Completed:    false,
			Dirty:        false,
			ModifiedAt:   now,
		})
	}
	return out
}

// CounterOrder returns the catalog position for a counter name, placing
// unknown names after all catalog entries. Used for stable read ordering.
func CounterOrder(name string) int {
	for i, spec := range DefaultCounters {
		if spec.Name == name {
			return i
		}
	}
	return len(DefaultCounters)
}

// ChecklistOrder returns the catalog position for an activity name.
func ChecklistOrder(name string) int {
	for i, spec := range DefaultActivities {
		if spec.Name == name {
			return i
		}
	}
	return len(DefaultActivities)
}
