package holds

import (
	"context"
	"errors"
	"time"

	"reserva/internal/broadcast"
	apperrors "reserva/pkg/errors"
	"reserva/pkg/logger"
	"reserva/pkg/model"
)

// SlotChecker reports whether a slot is bookable at all before a hold is
// attempted on it.
type SlotChecker interface {
	CheckSlot(ctx context.Context, key model.SlotKey) error
}

// Manager owns the hold lifecycle: acquire, extend, release, expire. Holds
// are advisory; losing one never loses a confirmed booking, it only sends the
// session back to slot selection.
type Manager struct {
	store     Store
	checker   SlotChecker
	publisher broadcast.Publisher
	log       *logger.Logger

	ttl           time.Duration
	sweepInterval time.Duration
	keys          *keyedMutex
	now           func() time.Time
}

func NewManager(store Store, checker SlotChecker, publisher broadcast.Publisher, ttl, sweepInterval time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		store:         store,
		checker:       checker,
		publisher:     publisher,
		log:           log,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		keys:          newKeyedMutex(),
		now:           time.Now,
	}
}

// Acquire claims the slot for sessionID. Re-acquiring a hold the session
// already owns refreshes its TTL instead of failing, so client retries after
// a network timeout are safe.
func (m *Manager) Acquire(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error) {
	if err := m.checker.CheckSlot(ctx, key); err != nil {
		return nil, err
	}

	slotID := key.Key()
	m.keys.Lock(slotID)
	defer m.keys.Unlock(slotID)

	now := m.now()

	existing, err := m.store.Find(ctx, slotID)
	switch {
	case err == nil:
		if existing.SessionID == sessionID && !existing.Expired(now) {
			return m.extendLive(ctx, slotID, sessionID, now)
		}
		if !existing.Expired(now) {
			return nil, apperrors.LockedByOther(slotID)
		}
		// Expired but not yet swept: reclaim lazily.
		if _, err := m.store.DeleteExpired(ctx, slotID, now); err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
	case errors.Is(err, ErrNotFound):
	default:
		return nil, apperrors.StoreUnavailable(err)
	}

	hold := &model.Hold{
		SlotID:      slotID,
		ProviderID:  key.ProviderID,
		StartTime:   key.StartTime,
		DurationMin: key.DurationMin,
		SessionID:   sessionID,
		ExpiresAt:   now.Add(m.ttl),
		Version:     1,
	}
	if err := m.store.Insert(ctx, hold); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the race to another instance between Find and Insert.
			return nil, apperrors.LockedByOther(slotID)
		}
		return nil, apperrors.StoreUnavailable(err)
	}

	m.publisher.Publish(ctx, model.SlotEvent{
		Type:        model.EventSlotLocked,
		ProviderID:  key.ProviderID,
		SlotID:      slotID,
		StartTime:   key.StartTime,
		DurationMin: key.DurationMin,
	})
	return hold, nil
}

func (m *Manager) extendLive(ctx context.Context, slotID, sessionID string, now time.Time) (*model.Hold, error) {
	hold, err := m.store.Extend(ctx, slotID, sessionID, now.Add(m.ttl), now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Expired between Find and Extend; the caller re-acquires.
			return nil, apperrors.NotFoundWithID("hold", slotID)
		}
		return nil, apperrors.StoreUnavailable(err)
	}
	return hold, nil
}

// Extend pushes out the TTL of a hold the session still owns.
func (m *Manager) Extend(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error) {
	slotID := key.Key()
	now := m.now()

	hold, err := m.store.Extend(ctx, slotID, sessionID, now.Add(m.ttl), now)
	if err == nil {
		return hold, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, apperrors.StoreUnavailable(err)
	}
	return nil, m.classifyMiss(ctx, slotID, sessionID, now)
}

// Release gives the slot back before the TTL elapses. Only the owning
// session may release.
func (m *Manager) Release(ctx context.Context, key model.SlotKey, sessionID string) error {
	slotID := key.Key()
	m.keys.Lock(slotID)
	defer m.keys.Unlock(slotID)

	deleted, err := m.store.Delete(ctx, slotID, sessionID)
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}
	if !deleted {
		return m.classifyMiss(ctx, slotID, sessionID, m.now())
	}

	m.publisher.Publish(ctx, model.SlotEvent{
		Type:        model.EventSlotReleased,
		ProviderID:  key.ProviderID,
		SlotID:      slotID,
		StartTime:   key.StartTime,
		DurationMin: key.DurationMin,
	})
	return nil
}

// Validate returns the live hold for the slot if sessionID owns it. The
// confirmation path calls this before writing the booking.
func (m *Manager) Validate(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error) {
	slotID := key.Key()
	hold, err := m.store.Find(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NotFoundWithID("hold", slotID)
		}
		return nil, apperrors.StoreUnavailable(err)
	}
	if hold.Expired(m.now()) {
		return nil, apperrors.NotFoundWithID("hold", slotID)
	}
	if hold.SessionID != sessionID {
		return nil, apperrors.LockedByOther(slotID)
	}
	return hold, nil
}

// Consume removes the hold once its slot has been booked. No release event is
// published; the booked event already covers the transition.
func (m *Manager) Consume(ctx context.Context, key model.SlotKey, sessionID string) error {
	if _, err := m.store.Delete(ctx, key.Key(), sessionID); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

// classifyMiss explains why an owner-conditional write matched nothing.
func (m *Manager) classifyMiss(ctx context.Context, slotID, sessionID string, now time.Time) error {
	hold, err := m.store.Find(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.NotFoundWithID("hold", slotID)
		}
		return apperrors.StoreUnavailable(err)
	}
	if hold.SessionID != sessionID {
		return apperrors.LockedByOther(slotID)
	}
	return apperrors.NotFoundWithID("hold", slotID)
}

// RunSweeper deletes expired holds in the background until ctx is cancelled.
// Expiry is already enforced lazily on every read; the sweeper keeps the
// collection small and lets subscribed calendars see slots come back.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	now := m.now()
	expired, err := m.store.FindExpired(ctx, now, 100)
	if err != nil {
		m.log.Error("Hold sweep failed", "error", err)
		return
	}

	swept := 0
	for _, hold := range expired {
		deleted, err := m.store.DeleteExpired(ctx, hold.SlotID, now)
		if err != nil {
			m.log.Error("Failed to sweep expired hold", "slot_id", hold.SlotID, "error", err)
			continue
		}
		if !deleted {
			continue
		}
		swept++
		m.publisher.Publish(ctx, model.SlotEvent{
			Type:        model.EventSlotReleased,
			ProviderID:  hold.ProviderID,
			SlotID:      hold.SlotID,
			StartTime:   hold.StartTime,
			DurationMin: hold.DurationMin,
		})
	}
	if swept > 0 {
		m.log.Info("Swept expired holds", "count", swept)
	}
}
