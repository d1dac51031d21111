package model

import "time"

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
)

// Booking is the durable reservation record. At most one booking in
// pending or confirmed status may exist per (provider_id, scheduled_at);
// a partial unique index in the store enforces it.
type Booking struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	ProviderID  string    `json:"provider_id" bson:"provider_id" validate:"required"`
	ClientID    string    `json:"client_id" bson:"client_id" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" bson:"scheduled_at" validate:"required"`
	DurationMin int       `json:"duration_min" bson:"duration_min" validate:"required,min=5,max=480"`
	ServiceName string    `json:"service_name" bson:"service_name" validate:"required,min=2,max=100"`
	Notes       string    `json:"notes,omitempty" bson:"notes" validate:"omitempty,max=500"`
	Status      string    `json:"status" bson:"status" validate:"required,oneof=pending confirmed completed cancelled"`
	Version     int64     `json:"version" bson:"version"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

func (b *Booking) SlotKey() SlotKey {
	return SlotKey{
		ProviderID:  b.ProviderID,
		StartTime:   b.ScheduledAt,
		DurationMin: b.DurationMin,
	}
}

// Active reports whether the booking occupies its slot.
func (b *Booking) Active() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// BookingDetails is the request payload a client supplies when converting a
// held slot into a booking.
type BookingDetails struct {
	ClientID    string `json:"client_id" validate:"required"`
	ServiceName string `json:"service_name" validate:"required,min=2,max=100"`
	Notes       string `json:"notes,omitempty" validate:"omitempty,max=500"`
}
