package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"reserva/internal/broadcast"
	reservationserrors "reserva/internal/reservations/errors"
	"reserva/internal/reservations/repository"
	"reserva/internal/reservations/validator"
	"reserva/pkg/config"
	apperrors "reserva/pkg/errors"
	"reserva/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// HoldManager is the slice of the hold lifecycle the booking flow needs:
// prove ownership before writing, consume the hold once written.
type HoldManager interface {
	Validate(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error)
	Consume(ctx context.Context, key model.SlotKey, sessionID string) error
}

type ReservationService interface {
	Confirm(ctx context.Context, key model.SlotKey, sessionID string, details model.BookingDetails) (*model.Booking, error)
	Cancel(ctx context.Context, id string, version int64, override bool) (*model.Booking, error)
	Complete(ctx context.Context, id string, version int64) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByProvider(ctx context.Context, providerID string, from, to *time.Time, limit int, offset int64) ([]*model.Booking, int64, error)
}

type reservationService struct {
	repo      repository.BookingRepository
	holds     HoldManager
	validator *validator.ReservationValidator
	publisher broadcast.Publisher
	cfg       *config.Config
	now       func() time.Time
}

func NewReservationService(
	repo repository.BookingRepository,
	holds HoldManager,
	validator *validator.ReservationValidator,
	publisher broadcast.Publisher,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		repo:      repo,
		holds:     holds,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Confirm converts a held slot into a durable booking. The caller must still
// own a live hold on the slot; the partial unique index on active bookings is
// the final arbiter if two instances race past that check.
func (s *reservationService) Confirm(ctx context.Context, key model.SlotKey, sessionID string, details model.BookingDetails) (*model.Booking, error) {
	if err := s.validator.ValidateSlotKey(key); err != nil {
		return nil, apperrors.Validation("Invalid slot", map[string]any{"error": err.Error()})
	}
	if err := s.validator.ValidateDetails(details); err != nil {
		return nil, apperrors.Validation("Invalid booking details", map[string]any{"error": err.Error()})
	}
	if sessionID == "" {
		return nil, apperrors.InvalidInput("Session ID cannot be empty")
	}

	// An absent or expired hold comes back as NotFound, which callers treat
	// as contention: re-fetch availability and start over.
	if _, err := s.holds.Validate(ctx, key, sessionID); err != nil {
		return nil, err
	}

	booking := &model.Booking{
		ProviderID:  key.ProviderID,
		ClientID:    details.ClientID,
		ScheduledAt: key.StartTime,
		DurationMin: key.DurationMin,
		ServiceName: details.ServiceName,
		Notes:       details.Notes,
		Status:      model.BookingStatusConfirmed,
		Version:     1,
	}

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.Create(sessCtx, booking); err != nil {
			if errors.Is(err, reservationserrors.ErrDuplicateSlot) {
				return apperrors.AlreadyBooked(key.Key())
			}
			return apperrors.Internal("Failed to create booking", err)
		}
		if err := s.holds.Consume(sessCtx, key, sessionID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to confirm booking",
			"provider_id", key.ProviderID,
			"slot_id", key.Key(),
			"error", err,
		)
		return nil, err
	}

	s.publisher.Publish(ctx, model.SlotEvent{
		Type:        model.EventSlotBooked,
		ProviderID:  key.ProviderID,
		SlotID:      key.Key(),
		StartTime:   key.StartTime,
		DurationMin: key.DurationMin,
		BookingID:   booking.ID,
		ClientID:    booking.ClientID,
	})

	s.cfg.Log.Info("Booking confirmed",
		"id", booking.ID,
		"provider_id", booking.ProviderID,
		"scheduled_at", booking.ScheduledAt,
	)
	return booking, nil
}

// Cancel transitions an active booking to cancelled and frees its slot. The
// caller supplies the version it read; a stale version means someone else
// changed the booking first and the caller must re-read. Outside the
// cancellation window only an override succeeds.
func (s *reservationService) Cancel(ctx context.Context, id string, version int64, override bool) (*model.Booking, error) {
	booking, err := s.findForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !booking.Active() {
		return nil, apperrors.Conflict("Booking is no longer active", apperrors.ReasonStaleVersion)
	}

	now := s.now()
	deadline := booking.ScheduledAt.Add(-s.cfg.CancellationWindow)
	if !override && now.After(deadline) {
		return nil, apperrors.TooLateToCancel(id)
	}

	cancelledAt := now.UTC().Truncate(time.Millisecond)
	updated, err := s.repo.UpdateStatus(ctx, id,
		[]string{model.BookingStatusPending, model.BookingStatusConfirmed},
		version,
		bson.M{
			"status":       model.BookingStatusCancelled,
			"cancelled_at": cancelledAt,
		},
	)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrStaleWrite) {
			return nil, apperrors.StaleVersion("Booking", id)
		}
		return nil, apperrors.Internal("Failed to cancel booking", err)
	}

	// Published only after the committed write; subscribers and the waitlist
	// never hear about a cancellation that did not stick.
	s.publisher.Publish(ctx, model.SlotEvent{
		Type:        model.EventSlotFreed,
		ProviderID:  updated.ProviderID,
		SlotID:      updated.SlotKey().Key(),
		StartTime:   updated.ScheduledAt,
		DurationMin: updated.DurationMin,
		BookingID:   updated.ID,
	})

	s.cfg.Log.Info("Booking cancelled", "id", id, "override", override)
	return updated, nil
}

// Complete marks a confirmed booking as carried out. Allowed only once the
// scheduled time has passed.
func (s *reservationService) Complete(ctx context.Context, id string, version int64) (*model.Booking, error) {
	booking, err := s.findForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.Status != model.BookingStatusConfirmed {
		return nil, apperrors.Conflict("Only confirmed bookings can be completed", apperrors.ReasonStaleVersion)
	}
	if s.now().Before(booking.ScheduledAt) {
		return nil, apperrors.InvalidInput("Booking cannot be completed before its scheduled time")
	}

	updated, err := s.repo.UpdateStatus(ctx, id,
		[]string{model.BookingStatusConfirmed},
		version,
		bson.M{"status": model.BookingStatusCompleted},
	)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrStaleWrite) {
			return nil, apperrors.StaleVersion("Booking", id)
		}
		return nil, apperrors.Internal("Failed to complete booking", err)
	}

	s.cfg.Log.Info("Booking completed", "id", id)
	return updated, nil
}

func (s *reservationService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return s.findForUpdate(ctx, id)
}

func (s *reservationService) findForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, reservationserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *reservationService) ListByProvider(ctx context.Context, providerID string, from, to *time.Time, limit int, offset int64) ([]*model.Booking, int64, error) {
	if providerID == "" {
		return nil, 0, apperrors.InvalidInput("Provider ID cannot be empty")
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByProvider(ctx, providerID, from, to)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "provider_id", providerID, "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindByProvider(ctx, providerID, from, to, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "provider_id", providerID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}
