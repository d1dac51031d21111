package availability

import (
	"context"
	"errors"
	"time"

	"reserva/internal/schedules/repository"
	apperrors "reserva/pkg/errors"
	"reserva/pkg/logger"
	"reserva/pkg/model"
)

type ScheduleStore interface {
	FindByProvider(ctx context.Context, providerID string) (*model.ProviderSchedule, error)
}

type BookingStore interface {
	FindActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]*model.Booking, error)
}

// Service computes the open slots a client may hold: schedule expansion
// minus slots an active booking already occupies. Live holds are not
// subtracted here; hold contention surfaces at acquire time.
type Service struct {
	schedules ScheduleStore
	bookings  BookingStore
	calc      Calculator
	now       func() time.Time
	log       *logger.Logger
}

func NewService(schedules ScheduleStore, bookings BookingStore, minLead time.Duration, log *logger.Logger) *Service {
	return &Service{
		schedules: schedules,
		bookings:  bookings,
		calc:      Calculator{MinLead: minLead},
		now:       time.Now,
		log:       log,
	}
}

// GetAvailability returns the bookable slots for one provider over [from, to),
// ordered by start time.
func (s *Service) GetAvailability(ctx context.Context, providerID string, from, to time.Time) ([]model.Slot, error) {
	schedule, err := s.findSchedule(ctx, providerID)
	if err != nil {
		return nil, err
	}

	slots, err := s.calc.Expand(schedule, from, to, s.now())
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return []model.Slot{}, nil
	}

	booked, err := s.bookings.FindActiveInRange(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	open := slots[:0]
	for _, slot := range slots {
		if !occupied(booked, slot) {
			open = append(open, slot)
		}
	}
	return open, nil
}

func (s *Service) findSchedule(ctx context.Context, providerID string) (*model.ProviderSchedule, error) {
	schedule, err := s.schedules.FindByProvider(ctx, providerID)
	switch {
	case err == nil:
		return schedule, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFoundWithID("schedule", providerID)
	default:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.StoreUnavailable(err)
	}
}

func occupied(bookings []*model.Booking, slot model.Slot) bool {
	for _, b := range bookings {
		end := b.ScheduledAt.Add(time.Duration(b.DurationMin) * time.Minute)
		if model.Overlaps(slot.StartTime, slot.EndTime, b.ScheduledAt, end) {
			return true
		}
	}
	return false
}

// CheckSlot verifies that one slot key is currently bookable: it lies on the
// provider's schedule, is not blocked, is not in the past, and no active
// booking occupies it. The returned error carries the rejection reason.
func (s *Service) CheckSlot(ctx context.Context, key model.SlotKey) error {
	schedule, err := s.findSchedule(ctx, key.ProviderID)
	if err != nil {
		return err
	}

	now := s.now()
	if key.StartTime.Before(now.Add(s.calc.MinLead)) {
		return apperrors.SlotUnavailable(apperrors.ReasonPastDeadline)
	}
	if key.DurationMin != schedule.SlotDurationMin {
		return apperrors.SlotUnavailable(apperrors.ReasonOutsideSchedule)
	}
	if blocked(schedule.Blocked, key.StartTime, key.EndTime()) {
		return apperrors.SlotUnavailable(apperrors.ReasonBlocked)
	}

	// Expand just the slot's own window and require an exact match; this
	// catches starts that fall off the step grid or outside the day window.
	slots, err := s.calc.Expand(schedule, key.StartTime, key.EndTime(), now)
	if err != nil {
		return err
	}
	found := false
	for _, slot := range slots {
		if slot.StartTime.Equal(key.StartTime) && slot.DurationMin == key.DurationMin {
			found = true
			break
		}
	}
	if !found {
		return apperrors.SlotUnavailable(apperrors.ReasonOutsideSchedule)
	}

	booked, err := s.bookings.FindActiveInRange(ctx, key.ProviderID, key.StartTime, key.EndTime())
	if err != nil {
		return err
	}
	for _, b := range booked {
		end := b.ScheduledAt.Add(time.Duration(b.DurationMin) * time.Minute)
		if model.Overlaps(key.StartTime, key.EndTime(), b.ScheduledAt, end) {
			return apperrors.AlreadyBooked(key.Key())
		}
	}
	return nil
}
