// Package events supplies the read-only per-tick list of active political
// events. The core only reads this; authoring and delivery of event content
// belongs to the surrounding application.
package events

import (
	"github.com/talgya/electorate/internal/voters"
)

// DemographicFilter restricts which voters an event reaches. Zero-valued
// bounds are unbounded; a nil Education matches every attainment level.
type DemographicFilter struct {
	MinAge       uint8             `json:"min_age,omitempty"`
	MaxAge       uint8             `json:"max_age,omitempty"`
	MinIncome    uint8             `json:"min_income,omitempty"`
	MaxIncome    uint8             `json:"max_income,omitempty"`
	Education    *voters.Education `json:"education,omitempty"`
}

// Matches reports whether a voter's demographics pass the filter.
func (f DemographicFilter) Matches(d voters.Demographics) bool {
	if f.MinAge > 0 && d.Age < f.MinAge {
		return false
	}
	if f.MaxAge > 0 && d.Age > f.MaxAge {
		return false
	}
	if f.MinIncome > 0 && d.IncomeDecile < f.MinIncome {
		return false
	}
	if f.MaxIncome > 0 && d.IncomeDecile > f.MaxIncome {
		return false
	}
	if f.Education != nil && d.Education != *f.Education {
		return false
	}
	return true
}

// Event is one active political stimulus: it pulls matching voters'
// opinions on one axis toward a target position.
type Event struct {
	Axis        voters.OpinionAxis `json:"axis"`
	Target      float32            `json:"target"`    // -1.0 to 1.0
	Intensity   float32            `json:"intensity"` // 0.0 to 1.0
	Filter      DemographicFilter  `json:"filter"`
	StartTick   uint64             `json:"start_tick"`
	EndTick     uint64             `json:"end_tick"` // 0 = open-ended
	Description string             `json:"description,omitempty"`
}

// Active reports whether the event is live at the given tick.
func (e Event) Active(tick uint64) bool {
	if tick < e.StartTick {
		return false
	}
	if e.EndTick > 0 && tick > e.EndTick {
		return false
	}
	return true
}

// Source supplies the active-event list each tick.
type Source interface {
	ActiveEvents(tick uint64) []Event
}

// Schedule is a static, pre-authored event timeline. The returned slices
// are rebuilt per call; callers treat them as read-only for the tick.
type Schedule struct {
	events []Event
}

// NewSchedule creates a schedule from a fixed event list.
func NewSchedule(evs []Event) *Schedule {
	return &Schedule{events: evs}
}

// Add appends an event to the schedule. Not safe to call while a tick is
// in flight; the surrounding application injects events between ticks.
func (s *Schedule) Add(e Event) {
	s.events = append(s.events, e)
}

// ActiveEvents returns the events live at the given tick.
func (s *Schedule) ActiveEvents(tick uint64) []Event {
	var active []Event
	for _, e := range s.events {
		if e.Active(tick) {
			active = append(active, e)
		}
	}
	return active
}
