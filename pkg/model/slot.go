package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlotKey identifies a bookable slot: one provider, one start time, one
// duration. It is the unit every lock, booking and waitlist entry is keyed on.
type SlotKey struct {
	ProviderID  string    `json:"provider_id" bson:"provider_id" validate:"required"`
	StartTime   time.Time `json:"start_time" bson:"start_time" validate:"required"`
	DurationMin int       `json:"duration_min" bson:"duration_min" validate:"required,min=5,max=480"`
}

// Key renders the canonical string form used as the store-side lock ID.
func (k SlotKey) Key() string {
	return fmt.Sprintf("%s|%d|%d", k.ProviderID, k.StartTime.UTC().Unix(), k.DurationMin)
}

func (k SlotKey) EndTime() time.Time {
	return k.StartTime.Add(time.Duration(k.DurationMin) * time.Minute)
}

func ParseSlotKey(s string) (SlotKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return SlotKey{}, fmt.Errorf("malformed slot key: %s", s)
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return SlotKey{}, fmt.Errorf("malformed slot key start time: %s", s)
	}
	duration, err := strconv.Atoi(parts[2])
	if err != nil {
		return SlotKey{}, fmt.Errorf("malformed slot key duration: %s", s)
	}
	return SlotKey{
		ProviderID:  parts[0],
		StartTime:   time.Unix(unix, 0).UTC(),
		DurationMin: duration,
	}, nil
}

// Slot is a computed view over the provider's schedule; it is never persisted
// directly and exists only until locked or booked.
type Slot struct {
	ProviderID  string    `json:"provider_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	DurationMin int       `json:"duration_min"`
}

func (s Slot) Key() SlotKey {
	return SlotKey{
		ProviderID:  s.ProviderID,
		StartTime:   s.StartTime,
		DurationMin: s.DurationMin,
	}
}

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
