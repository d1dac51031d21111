package model

import "time"

// Hold is a short-lived exclusive claim on a slot while a client completes
// checkout. Stored with the slot key as _id so the unique index on _id is the
// lock arbiter: at most one live hold per slot.
type Hold struct {
	SlotID      string    `json:"slot_id" bson:"_id"`
	ProviderID  string    `json:"provider_id" bson:"provider_id"`
	StartTime   time.Time `json:"start_time" bson:"start_time"`
	DurationMin int       `json:"duration_min" bson:"duration_min"`
	SessionID   string    `json:"session_id" bson:"session_id"`
	ExpiresAt   time.Time `json:"expires_at" bson:"expires_at"`
	Version     int64     `json:"version" bson:"version"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

func (h *Hold) SlotKey() SlotKey {
	return SlotKey{
		ProviderID:  h.ProviderID,
		StartTime:   h.StartTime,
		DurationMin: h.DurationMin,
	}
}

// Expired reports whether the hold is past its TTL at the given instant.
// The stored expires_at is authoritative; a process restart never leaves an
// un-expirable phantom lock.
func (h *Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
