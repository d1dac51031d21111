package recurrence

import (
	"context"
	"time"

	"reserva/internal/reservations/validator"
	apperrors "reserva/pkg/errors"
	"reserva/pkg/logger"
	"reserva/pkg/model"

	"github.com/google/uuid"
)

// HoldAcquirer claims and returns slots on behalf of the expansion session.
type HoldAcquirer interface {
	Acquire(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error)
	Release(ctx context.Context, key model.SlotKey, sessionID string) error
}

// BookingConfirmer converts a held occurrence into a booking.
type BookingConfirmer interface {
	Confirm(ctx context.Context, key model.SlotKey, sessionID string, details model.BookingDetails) (*model.Booking, error)
}

// Expander books a recurring series occurrence by occurrence through the
// same hold-then-confirm path a single booking takes. Outcomes are
// independent: a conflict at occurrence three never rolls back one and two.
type Expander struct {
	holds     HoldAcquirer
	bookings  BookingConfirmer
	validator *validator.ReservationValidator
	log       *logger.Logger

	maxOccurrences int
}

func NewExpander(
	holds HoldAcquirer,
	bookings BookingConfirmer,
	validator *validator.ReservationValidator,
	maxOccurrences int,
	log *logger.Logger,
) *Expander {
	return &Expander{
		holds:          holds,
		bookings:       bookings,
		validator:      validator,
		log:            log,
		maxOccurrences: maxOccurrences,
	}
}

// Expand enumerates the rule's occurrences in chronological order and books
// each one that is still available. The returned reports cover every
// enumerated occurrence, booked or not. Infrastructure failures abort the
// expansion and return the reports accumulated so far alongside the error.
func (e *Expander) Expand(ctx context.Context, rule *model.RecurrenceRule, details model.BookingDetails) ([]model.OccurrenceReport, error) {
	if err := e.validator.ValidateRecurrence(rule); err != nil {
		return nil, apperrors.Validation("Invalid recurrence rule", map[string]any{"error": err.Error()})
	}
	if err := e.validator.ValidateDetails(details); err != nil {
		return nil, apperrors.Validation("Invalid booking details", map[string]any{"error": err.Error()})
	}

	sessionID := "recurrence-" + uuid.New().String()
	step := rule.Step()

	var reports []model.OccurrenceReport
	for k := 0; ; k++ {
		if rule.OccurrenceCount > 0 && k >= rule.OccurrenceCount {
			break
		}
		if k >= e.maxOccurrences {
			e.log.Warn("Recurrence expansion truncated",
				"session_id", sessionID,
				"max_occurrences", e.maxOccurrences,
			)
			break
		}

		start := rule.Anchor.StartTime.Add(time.Duration(k) * step)
		if rule.UntilDate != nil && start.After(*rule.UntilDate) {
			break
		}

		key := model.SlotKey{
			ProviderID:  rule.Anchor.ProviderID,
			StartTime:   start,
			DurationMin: rule.Anchor.DurationMin,
		}

		report, err := e.bookOccurrence(ctx, key, sessionID, details)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}

	e.log.Info("Recurrence expansion finished",
		"session_id", sessionID,
		"occurrences", len(reports),
		"booked", countBooked(reports),
	)
	return reports, nil
}

func (e *Expander) bookOccurrence(ctx context.Context, key model.SlotKey, sessionID string, details model.BookingDetails) (model.OccurrenceReport, error) {
	report := model.OccurrenceReport{ScheduledAt: key.StartTime}

	if _, err := e.holds.Acquire(ctx, key, sessionID); err != nil {
		return e.classify(report, err)
	}

	booking, err := e.bookings.Confirm(ctx, key, sessionID, details)
	if err != nil {
		// The hold would expire on its own; release it now so the slot is
		// not blocked for the TTL.
		if releaseErr := e.holds.Release(ctx, key, sessionID); releaseErr != nil {
			e.log.Warn("Failed to release hold after occurrence conflict",
				"slot_id", key.Key(), "error", releaseErr)
		}
		return e.classify(report, err)
	}

	report.Outcome = model.OccurrenceOutcomeBooked
	report.BookingID = booking.ID
	return report, nil
}

// classify folds a booking error into a per-occurrence outcome, or reports it
// back up when it is an infrastructure fault rather than a slot decision.
func (e *Expander) classify(report model.OccurrenceReport, err error) (model.OccurrenceReport, error) {
	appErr := apperrors.AsAppError(err)
	switch {
	case appErr.Code == apperrors.CodeUnavailable:
		report.Outcome = model.OccurrenceOutcomeUnavailable
		report.Reason = appErr.Reason()
	case apperrors.IsConflict(err):
		report.Outcome = model.OccurrenceOutcomeConflict
		report.Reason = appErr.Reason()
	default:
		return report, err
	}
	if report.Reason == "" {
		report.Reason = appErr.Code
	}
	return report, nil
}

func countBooked(reports []model.OccurrenceReport) int {
	n := 0
	for _, r := range reports {
		if r.Outcome == model.OccurrenceOutcomeBooked {
			n++
		}
	}
	return n
}
