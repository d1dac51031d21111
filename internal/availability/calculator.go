package availability

import (
	"time"

	apperrors "reserva/pkg/errors"
	"reserva/pkg/model"
)

// Calculator derives open slots from a provider schedule. It is pure: all
// inputs are passed in, nothing is read from a store, so the same schedule,
// range and clock always produce the same slot list.
type Calculator struct {
	// MinLead excludes slots starting sooner than now+MinLead.
	MinLead time.Duration
}

// Expand generates every candidate slot for [from, to) from the weekly
// windows, in the provider's time zone, then subtracts blocked intervals and
// slots already in the past.
func (c Calculator) Expand(schedule *model.ProviderSchedule, from, to, now time.Time) ([]model.Slot, error) {
	if !to.After(from) {
		return nil, apperrors.InvalidInput("time range end must be after start")
	}

	loc, err := time.LoadLocation(schedule.TimeZone)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "invalid schedule time zone", 500)
	}

	cutoff := now.Add(c.MinLead)
	if cutoff.Before(from) {
		cutoff = from
	}

	var slots []model.Slot
	day := startOfDay(from.In(loc))
	for day.Before(to) {
		window, ok := schedule.Window(day.Weekday())
		if ok && window.Enabled {
			slots = append(slots, c.expandDay(schedule, window, day, cutoff, to)...)
		}
		day = day.AddDate(0, 0, 1)
	}
	return slots, nil
}

func (c Calculator) expandDay(schedule *model.ProviderSchedule, window model.DayWindow, day, cutoff, to time.Time) []model.Slot {
	open, ok := atClock(day, window.Start)
	if !ok {
		return nil
	}
	closed, ok := atClock(day, window.End)
	if !ok || !closed.After(open) {
		// Inverted or empty window: no slots, not an error.
		return nil
	}

	step := time.Duration(schedule.SlotDurationMin) * time.Minute

	var slots []model.Slot
	for start := open; !start.Add(step).After(closed); start = start.Add(step) {
		end := start.Add(step)
		if start.Before(cutoff) || !start.Before(to) {
			continue
		}
		if blocked(schedule.Blocked, start, end) {
			continue
		}
		slots = append(slots, model.Slot{
			ProviderID:  schedule.ProviderID,
			StartTime:   start.UTC(),
			EndTime:     end.UTC(),
			DurationMin: schedule.SlotDurationMin,
		})
	}
	return slots
}

func blocked(intervals []model.BlockedInterval, start, end time.Time) bool {
	for _, b := range intervals {
		if model.Overlaps(start, end, b.StartTime, b.EndTime) {
			return true
		}
	}
	return false
}

// atClock places an "HH:MM" clock reading on the given day, in the day's
// location. DST transitions resolve the way time.Date resolves them.
func atClock(day time.Time, clock string) (time.Time, bool) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
