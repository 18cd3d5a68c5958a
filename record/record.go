// Package record defines the data model for the tracker: per-day counter
// records and checklist records keyed by (name, date), plus the fixed default
// catalogs that are materialized lazily for each new day.
package record

import (
	"fmt"
	"time"
)

// DateLayout is the canonical wire and storage form of a calendar day.
// Dates are always device-local calendar days.
const DateLayout = "2006-01-02"

// Kind distinguishes the two record families stored per day.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindChecklist Kind = "checklist"
)

// Key is the compound key every record is unique by.
type Key struct {
	Name string
	Date string
}

func (k Key) String() string {
	return k.Name + "@" + k.Date
}

// CounterRecord is one recitation counter for one calendar day.
//
// Count only ever grows under user action; Target may be nil for untargeted
// trend counters, for which completion and progress do not apply.
type CounterRecord struct {
	Name       string
	Date       string
	Count      int
	Target     *int
	Dirty      bool
	ModifiedAt time.Time
}

// Key returns the record's compound key.
func (c *CounterRecord) Key() Key { return Key{Name: c.Name, Date: c.Date} }

// Complete reports whether the counter has reached its target.
// Untargeted counters never read as complete.
func (c *CounterRecord) Complete() bool {
	return c.Target != nil && c.Count >= *c.Target
}

// Progress returns completion as a fraction in [0, 1].
// Untargeted counters always report zero.
func (c *CounterRecord) Progress() float64 {
	if c.Target == nil || *c.Target <= 0 {
		return 0
	}
	p := float64(c.Count) / float64(*c.Target)
	if p > 1 {
		return 1
	}
	return p
}

// Validate checks the record invariants: non-negative count, positive target
// when present, well-formed date.
func (c *CounterRecord) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("counter has empty name")
	}
	if err := ValidateDate(c.Date); err != nil {
		return err
	}
	if c.Count < 0 {
		return fmt.Errorf("counter %q has negative count %d", c.Name, c.Count)
	}
	if c.Target != nil && *c.Target <= 0 {
		return fmt.Errorf("counter %q has non-positive target %d", c.Name, *c.Target)
	}
	return nil
}

// ChecklistRecord is one boolean ritual activity for one calendar day.
type ChecklistRecord struct {
	Name         string
	DisplayLabel string
	Category     string
	Date         string
	Completed    bool
	CompletedAt  *time.Time
	Dirty        bool
	ModifiedAt   time.Time
}

// Key returns the record's compound key.
func (a *ChecklistRecord) Key() Key { return Key{Name: a.Name, Date: a.Date} }

// Validate checks the record invariants.
func (a *ChecklistRecord) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("checklist item has empty name")
	}
	if err := ValidateDate(a.Date); err != nil {
		return err
	}
	if !a.Completed && a.CompletedAt != nil {
		return fmt.Errorf("checklist item %q is incomplete but has a completion time", a.Name)
	}
	return nil
}

// DayRecords is the full local view of one calendar day.
type DayRecords struct {
	Date      string
	Counters  []*CounterRecord
	Checklist []*ChecklistRecord
}

// FormatDate renders t as a local calendar day.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD day string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// ValidateDate checks that s is a well-formed YYYY-MM-DD day string.
func ValidateDate(s string) error {
	if _, err := ParseDate(s); err != nil {
		return err
	}
	return nil
}
