package model

import "time"

const (
	EventSlotLocked      = "locked"
	EventSlotReleased    = "released"
	EventSlotBooked      = "booked"
	EventSlotFreed       = "freed"
	EventWaitlistOffered = "waitlist-offered"
	EventWaitlistExpired = "waitlist-expired"
)

// SlotEvent is one slot state change. Sequence increases monotonically per
// provider channel; a subscriber observing a gap re-fetches availability
// instead of trusting the stream.
type SlotEvent struct {
	Type        string    `json:"type"`
	ProviderID  string    `json:"provider_id"`
	SlotID      string    `json:"slot_id"`
	StartTime   time.Time `json:"start_time"`
	DurationMin int       `json:"duration_min"`
	Sequence    uint64    `json:"sequence"`
	BookingID   string    `json:"booking_id,omitempty"`
	// ClientID is set on waitlist events; the offer is addressed to that
	// client only.
	ClientID   string    `json:"client_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e SlotEvent) SlotKey() SlotKey {
	return SlotKey{
		ProviderID:  e.ProviderID,
		StartTime:   e.StartTime,
		DurationMin: e.DurationMin,
	}
}
