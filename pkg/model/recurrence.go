package model

import "time"

const (
	RecurrenceFrequencyDaily  = "daily"
	RecurrenceFrequencyWeekly = "weekly"
)

// RecurrenceRule generates a finite ordered sequence of candidate slots from
// an anchor. It is consumed once per request and never persisted.
type RecurrenceRule struct {
	Frequency       string     `json:"frequency" validate:"required,oneof=daily weekly"`
	Interval        int        `json:"interval" validate:"required,min=1,max=12"`
	OccurrenceCount int        `json:"occurrence_count,omitempty" validate:"omitempty,min=1"`
	UntilDate       *time.Time `json:"until_date,omitempty"`
	Anchor          SlotKey    `json:"anchor" validate:"required"`
}

// Step returns the distance between consecutive occurrences.
func (r *RecurrenceRule) Step() time.Duration {
	switch r.Frequency {
	case RecurrenceFrequencyDaily:
		return time.Duration(r.Interval) * 24 * time.Hour
	default:
		return time.Duration(r.Interval) * 7 * 24 * time.Hour
	}
}

const (
	OccurrenceOutcomeBooked      = "booked"
	OccurrenceOutcomeConflict    = "conflict"
	OccurrenceOutcomeUnavailable = "unavailable"
)

// OccurrenceReport records the independent outcome of one occurrence in an
// expanded series. Expansion is deliberately not transactional across
// occurrences.
type OccurrenceReport struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Outcome     string    `json:"outcome"`
	BookingID   string    `json:"booking_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}
