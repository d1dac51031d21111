package model

import "time"

// WaitlistEntry queues one client for one fully booked slot. Entries are
// served strictly in requested_at order; the only reordering is explicit
// withdrawal.
type WaitlistEntry struct {
	ID             string     `json:"id,omitempty" bson:"_id,omitempty"`
	SlotID         string     `json:"slot_id" bson:"slot_id" validate:"required"`
	ProviderID     string     `json:"provider_id" bson:"provider_id" validate:"required"`
	StartTime      time.Time  `json:"start_time" bson:"start_time" validate:"required"`
	DurationMin    int        `json:"duration_min" bson:"duration_min" validate:"required,min=5,max=480"`
	ClientID       string     `json:"client_id" bson:"client_id" validate:"required"`
	RequestedAt    time.Time  `json:"requested_at" bson:"requested_at"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty" bson:"offer_expires_at,omitempty"`
}

func (e *WaitlistEntry) SlotKey() SlotKey {
	return SlotKey{
		ProviderID:  e.ProviderID,
		StartTime:   e.StartTime,
		DurationMin: e.DurationMin,
	}
}

// Offered reports whether the entry currently holds a claim offer.
func (e *WaitlistEntry) Offered() bool {
	return e.OfferExpiresAt != nil
}

// OfferExpired reports whether a pending offer's claim window has elapsed.
func (e *WaitlistEntry) OfferExpired(now time.Time) bool {
	return e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(now)
}
