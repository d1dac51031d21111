package model

import "time"

// DayWindow is one weekday's bookable window in the provider's local time,
// "HH:MM" strings. A disabled day or an inverted window (start >= end)
// produces no slots, not an error.
type DayWindow struct {
	Weekday string `json:"weekday" bson:"weekday" validate:"required,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	Enabled bool   `json:"enabled" bson:"enabled"`
	Start   string `json:"start" bson:"start" validate:"required_if=Enabled true,omitempty,day_time"`
	End     string `json:"end" bson:"end" validate:"required_if=Enabled true,omitempty,day_time"`
}

// BlockedInterval carves an explicit unavailable range out of the weekly
// windows. Overlapping blocks are treated as a union.
type BlockedInterval struct {
	StartTime time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Reason    string    `json:"reason,omitempty" bson:"reason" validate:"omitempty,max=200"`
}

// ProviderSchedule is the availability source of truth for one provider:
// a weekly recurring pattern plus explicit blackout intervals.
type ProviderSchedule struct {
	ProviderID      string            `json:"provider_id" bson:"_id" validate:"required"`
	TimeZone        string            `json:"time_zone" bson:"time_zone" validate:"required,timezone"`
	Windows         []DayWindow       `json:"windows" bson:"windows" validate:"required,min=1,max=7,dive"`
	Blocked         []BlockedInterval `json:"blocked,omitempty" bson:"blocked" validate:"omitempty,dive"`
	SlotDurationMin int               `json:"slot_duration_min" bson:"slot_duration_min" validate:"required,min=5,max=480"`
	CreatedAt       time.Time         `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt       time.Time         `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// Window returns the window for the given weekday, if any.
func (s *ProviderSchedule) Window(weekday time.Weekday) (DayWindow, bool) {
	name := weekday.String()
	for _, w := range s.Windows {
		if w.Weekday == name {
			return w, true
		}
	}
	return DayWindow{}, false
}

// ProviderScheduleUpdate carries a partial schedule change.
type ProviderScheduleUpdate struct {
	TimeZone        string             `json:"time_zone,omitempty" validate:"omitempty,timezone"`
	Windows         []DayWindow        `json:"windows,omitempty" validate:"omitempty,min=1,max=7,dive"`
	Blocked         *[]BlockedInterval `json:"blocked,omitempty" validate:"omitempty,dive"`
	SlotDurationMin *int               `json:"slot_duration_min,omitempty" validate:"omitempty,min=5,max=480"`
}
