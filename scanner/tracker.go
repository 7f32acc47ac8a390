package scanner

import (
	"fmt"
	"sort"
)

// DisciplineState is the lifecycle of one discipline during a scan.
type DisciplineState int

const (
	Unseen DisciplineState = iota
	Tracking
	Satisfied
)

func (s DisciplineState) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case Tracking:
		return "tracking"
	case Satisfied:
		return "satisfied"
	default:
		return fmt.Sprintf("DisciplineState(%d)", int(s))
	}
}

// Tracker holds the want-set of every discipline seen so far. A want-set
// only ever shrinks; once empty the discipline leaves the tracking map and
// is never seeded again.
type Tracker struct {
	wanted []string
	want   map[string][]string
	seen   map[string]struct{}
}

func NewTracker(wanted []string) *Tracker {
	return &Tracker{
		wanted: append([]string(nil), wanted...),
		want:   make(map[string][]string),
		seen:   make(map[string]struct{}),
	}
}

// Observe moves an unseen discipline to Tracking, seeding its want-set with
// the full wanted list, and returns the resulting state.
func (t *Tracker) Observe(discipline string) DisciplineState {
	if _, ok := t.seen[discipline]; !ok {
		t.seen[discipline] = struct{}{}
		if len(t.wanted) > 0 {
			t.want[discipline] = append([]string(nil), t.wanted...)
		}
	}
	return t.State(discipline)
}

func (t *Tracker) State(discipline string) DisciplineState {
	if _, ok := t.seen[discipline]; !ok {
		return Unseen
	}
	if _, ok := t.want[discipline]; ok {
		return Tracking
	}
	return Satisfied
}

func (t *Tracker) Wants(discipline, typeCode string) bool {
	for _, w := range t.want[discipline] {
		if w == typeCode {
			return true
		}
	}
	return false
}

// Found removes typeCode from the discipline's want-set. It reports false
// when the type was not wanted.
func (t *Tracker) Found(discipline, typeCode string) bool {
	remaining, ok := t.want[discipline]
	if !ok {
		return false
	}
	for i, w := range remaining {
		if w != typeCode {
			continue
		}
		remaining = append(remaining[:i:i], remaining[i+1:]...)
		if len(remaining) == 0 {
			delete(t.want, discipline)
		} else {
			t.want[discipline] = remaining
		}
		return true
	}
	return false
}

// Missing returns the still-wanted types of a discipline in wanted order.
func (t *Tracker) Missing(discipline string) []string {
	return append([]string(nil), t.want[discipline]...)
}

// Incomplete lists disciplines still being tracked, sorted.
func (t *Tracker) Incomplete() []string {
	out := make([]string, 0, len(t.want))
	for d := range t.want {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Seen lists every discipline observed, sorted.
func (t *Tracker) Seen() []string {
	out := make([]string, 0, len(t.seen))
	for d := range t.seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) Complete() bool {
	return len(t.want) == 0
}

func (t *Tracker) Wanted() []string {
	return append([]string(nil), t.wanted...)
}
