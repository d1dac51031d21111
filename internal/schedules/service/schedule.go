package service

import (
	"context"
	"errors"

	"reserva/internal/schedules/repository"
	"reserva/internal/schedules/validator"
	"reserva/pkg/config"
	apperrors "reserva/pkg/errors"
	"reserva/pkg/model"
)

type ScheduleService interface {
	Put(ctx context.Context, schedule *model.ProviderSchedule) error
	Get(ctx context.Context, providerID string) (*model.ProviderSchedule, error)
	Patch(ctx context.Context, providerID string, update *model.ProviderScheduleUpdate) (*model.ProviderSchedule, error)
	Delete(ctx context.Context, providerID string) error
}

type scheduleService struct {
	repo      repository.ScheduleRepository
	validator *validator.ScheduleValidator
	cfg       *config.Config
}

func NewScheduleService(
	repo repository.ScheduleRepository,
	validator *validator.ScheduleValidator,
	cfg *config.Config,
) ScheduleService {
	return &scheduleService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

// Put creates or fully replaces a provider's schedule. Existing holds and
// bookings are untouched; only future availability computations see the new
// windows.
func (s *scheduleService) Put(ctx context.Context, schedule *model.ProviderSchedule) error {
	if err := s.validator.Validate(schedule); err != nil {
		s.cfg.Log.Warn("Schedule validation failed", "provider_id", schedule.ProviderID, "error", err)
		return apperrors.Validation("Invalid schedule", map[string]any{"error": err.Error()})
	}

	if err := s.repo.Save(ctx, schedule); err != nil {
		s.cfg.Log.Error("Failed to save schedule", "provider_id", schedule.ProviderID, "error", err)
		return apperrors.Internal("Failed to save schedule", err)
	}

	s.cfg.Log.Info("Schedule saved", "provider_id", schedule.ProviderID)
	return nil
}

func (s *scheduleService) Get(ctx context.Context, providerID string) (*model.ProviderSchedule, error) {
	if providerID == "" {
		return nil, apperrors.InvalidInput("Provider ID cannot be empty")
	}

	schedule, err := s.repo.FindByProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Provider schedule", providerID)
		}
		return nil, apperrors.Internal("Failed to retrieve schedule", err)
	}
	return schedule, nil
}

func (s *scheduleService) Patch(ctx context.Context, providerID string, update *model.ProviderScheduleUpdate) (*model.ProviderSchedule, error) {
	existing, err := s.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if err := s.validator.ValidateUpdate(update); err != nil {
		s.cfg.Log.Warn("Schedule update validation failed", "provider_id", providerID, "error", err)
		return nil, apperrors.Validation("Invalid schedule update", map[string]any{"error": err.Error()})
	}

	merged := s.merge(existing, update)
	if err := s.validator.Validate(merged); err != nil {
		return nil, apperrors.Validation("Invalid schedule after update", map[string]any{"error": err.Error()})
	}

	if err := s.repo.Replace(ctx, merged); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Provider schedule", providerID)
		}
		s.cfg.Log.Error("Failed to update schedule", "provider_id", providerID, "error", err)
		return nil, apperrors.Internal("Failed to update schedule", err)
	}

	s.cfg.Log.Info("Schedule updated", "provider_id", providerID)
	return merged, nil
}

func (s *scheduleService) merge(existing *model.ProviderSchedule, update *model.ProviderScheduleUpdate) *model.ProviderSchedule {
	merged := *existing
	if update.TimeZone != "" {
		merged.TimeZone = update.TimeZone
	}
	if update.Windows != nil {
		merged.Windows = update.Windows
	}
	if update.Blocked != nil {
		merged.Blocked = *update.Blocked
	}
	if update.SlotDurationMin != nil {
		merged.SlotDurationMin = *update.SlotDurationMin
	}
	return &merged
}

func (s *scheduleService) Delete(ctx context.Context, providerID string) error {
	if providerID == "" {
		return apperrors.InvalidInput("Provider ID cannot be empty")
	}

	if err := s.repo.Delete(ctx, providerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFoundWithID("Provider schedule", providerID)
		}
		s.cfg.Log.Error("Failed to delete schedule", "provider_id", providerID, "error", err)
		return apperrors.Internal("Failed to delete schedule", err)
	}

	s.cfg.Log.Info("Schedule deleted", "provider_id", providerID)
	return nil
}
