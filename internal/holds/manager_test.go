package holds

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "reserva/pkg/errors"
	"reserva/pkg/logger"
	"reserva/pkg/model"
)

// memStore is an in-memory Store with the same conditional-write semantics as
// the Mongo implementation, so contention tests exercise the real decision
// paths.
type memStore struct {
	mu    sync.Mutex
	holds map[string]model.Hold
}

func newMemStore() *memStore {
	return &memStore{holds: make(map[string]model.Hold)}
}

func (s *memStore) Insert(ctx context.Context, hold *model.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.holds[hold.SlotID]; exists {
		return ErrDuplicate
	}
	hold.CreatedAt = time.Now().UTC()
	s.holds[hold.SlotID] = *hold
	return nil
}

func (s *memStore) Find(ctx context.Context, slotID string) (*model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[slotID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := hold
	return &copied, nil
}

func (s *memStore) Delete(ctx context.Context, slotID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[slotID]
	if !ok || hold.SessionID != sessionID {
		return false, nil
	}
	delete(s.holds, slotID)
	return true, nil
}

func (s *memStore) DeleteExpired(ctx context.Context, slotID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[slotID]
	if !ok || hold.ExpiresAt.After(now) {
		return false, nil
	}
	delete(s.holds, slotID)
	return true, nil
}

func (s *memStore) Extend(ctx context.Context, slotID, sessionID string, expiresAt, now time.Time) (*model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[slotID]
	if !ok || hold.SessionID != sessionID || !hold.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	hold.ExpiresAt = expiresAt
	hold.Version++
	s.holds[slotID] = hold
	copied := hold
	return &copied, nil
}

func (s *memStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*model.Hold
	for _, hold := range s.holds {
		if !hold.ExpiresAt.After(now) {
			copied := hold
			expired = append(expired, &copied)
			if len(expired) == limit {
				break
			}
		}
	}
	return expired, nil
}

type openSlotChecker struct{}

func (openSlotChecker) CheckSlot(ctx context.Context, key model.SlotKey) error { return nil }

type capturingPublisher struct {
	mu     sync.Mutex
	events []model.SlotEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event model.SlotEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func testManager(store Store) (*Manager, *capturingPublisher) {
	pub := &capturingPublisher{}
	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Service: "test"})
	return NewManager(store, openSlotChecker{}, pub, 3*time.Minute, time.Minute, log), pub
}

func testKey() model.SlotKey {
	return model.SlotKey{
		ProviderID:  "provider-1",
		StartTime:   time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		DurationMin: 30,
	}
}

func TestAcquireExactlyOneWinnerUnderContention(t *testing.T) {
	manager, pub := testManager(newMemStore())
	key := testKey()

	const sessions = 16
	var wg sync.WaitGroup
	var winners, conflicts int64
	var mu sync.Mutex

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := manager.Acquire(context.Background(), key, string(rune('a'+n))+"-session")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			appErr := apperrors.AsAppError(err)
			if appErr.Reason() == apperrors.ReasonLockedByOther {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if conflicts != sessions-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, sessions-1)
	}
	if got := pub.types(); len(got) != 1 || got[0] != model.EventSlotLocked {
		t.Fatalf("published events = %v, want single locked event", got)
	}
}

func TestAcquireIsIdempotentPerSession(t *testing.T) {
	manager, _ := testManager(newMemStore())
	key := testKey()
	ctx := context.Background()

	first, err := manager.Acquire(ctx, key, "session-1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	manager.now = func() time.Time { return time.Now().Add(time.Minute) }
	second, err := manager.Acquire(ctx, key, "session-1")
	if err != nil {
		t.Fatalf("re-acquire by owner failed: %v", err)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("re-acquire did not refresh TTL: %v !> %v", second.ExpiresAt, first.ExpiresAt)
	}
	if second.Version <= first.Version {
		t.Fatalf("re-acquire did not bump version: %d <= %d", second.Version, first.Version)
	}
}

func TestAcquireReclaimsExpiredHold(t *testing.T) {
	store := newMemStore()
	manager, _ := testManager(store)
	key := testKey()
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, key, "session-1"); err != nil {
		t.Fatalf("initial acquire failed: %v", err)
	}

	// Before expiry another session is rejected.
	if _, err := manager.Acquire(ctx, key, "session-2"); !apperrors.IsConflict(err) {
		t.Fatalf("pre-expiry acquire: got %v, want conflict", err)
	}

	// After the TTL the same slot is claimable without any sweeper running.
	manager.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	hold, err := manager.Acquire(ctx, key, "session-2")
	if err != nil {
		t.Fatalf("post-expiry acquire failed: %v", err)
	}
	if hold.SessionID != "session-2" {
		t.Fatalf("hold owner = %s, want session-2", hold.SessionID)
	}
}

func TestReleaseOnlyByOwner(t *testing.T) {
	manager, pub := testManager(newMemStore())
	key := testKey()
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, key, "session-1"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	err := manager.Release(ctx, key, "session-2")
	if apperrors.AsAppError(err).Reason() != apperrors.ReasonLockedByOther {
		t.Fatalf("foreign release: got %v, want locked_by_other", err)
	}

	if err := manager.Release(ctx, key, "session-1"); err != nil {
		t.Fatalf("owner release failed: %v", err)
	}

	// Second release finds nothing; conflict-class, not fatal.
	err = manager.Release(ctx, key, "session-1")
	if !apperrors.IsConflict(err) {
		t.Fatalf("double release: got %v, want conflict-class not found", err)
	}

	got := pub.types()
	if len(got) != 2 || got[1] != model.EventSlotReleased {
		t.Fatalf("published events = %v, want locked then released", got)
	}
}

func TestExtendFailsAfterExpiry(t *testing.T) {
	manager, _ := testManager(newMemStore())
	key := testKey()
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, key, "session-1"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	manager.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	_, err := manager.Extend(ctx, key, "session-1")
	if apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
		t.Fatalf("extend after expiry: got %v, want NOT_FOUND", err)
	}
}

func TestValidate(t *testing.T) {
	manager, _ := testManager(newMemStore())
	key := testKey()
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, key, "session-1"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if _, err := manager.Validate(ctx, key, "session-1"); err != nil {
		t.Fatalf("owner validate failed: %v", err)
	}
	if _, err := manager.Validate(ctx, key, "session-2"); apperrors.AsAppError(err).Reason() != apperrors.ReasonLockedByOther {
		t.Fatalf("foreign validate: got %v, want locked_by_other", err)
	}

	manager.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	if _, err := manager.Validate(ctx, key, "session-1"); apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
		t.Fatalf("expired validate: got %v, want NOT_FOUND", err)
	}
}

func TestSweepPublishesReleasedEvents(t *testing.T) {
	store := newMemStore()
	manager, pub := testManager(store)
	ctx := context.Background()

	keys := []model.SlotKey{testKey()}
	second := testKey()
	second.StartTime = second.StartTime.Add(30 * time.Minute)
	keys = append(keys, second)

	for i, key := range keys {
		if _, err := manager.Acquire(ctx, key, "session-1"); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}

	manager.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	manager.sweep(ctx)

	released := 0
	for _, typ := range pub.types() {
		if typ == model.EventSlotReleased {
			released++
		}
	}
	if released != len(keys) {
		t.Fatalf("released events = %d, want %d", released, len(keys))
	}
	if _, err := store.Find(ctx, keys[0].Key()); err != ErrNotFound {
		t.Fatalf("hold survived sweep: %v", err)
	}
}

func TestConsumeRemovesHoldSilently(t *testing.T) {
	store := newMemStore()
	manager, pub := testManager(store)
	key := testKey()
	ctx := context.Background()

	if _, err := manager.Acquire(ctx, key, "session-1"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := manager.Consume(ctx, key, "session-1"); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if _, err := store.Find(ctx, key.Key()); err != ErrNotFound {
		t.Fatalf("hold survived consume: %v", err)
	}
	if got := pub.types(); len(got) != 1 {
		t.Fatalf("events = %v, want only the original locked event", got)
	}
}
