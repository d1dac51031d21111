package waitlist

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "reserva/pkg/errors"
	"reserva/pkg/logger"
	"reserva/pkg/model"

	"github.com/google/uuid"
)

// memStore mirrors the Mongo store's conditional semantics in memory,
// including FIFO ordering by requested_at.
type memStore struct {
	mu      sync.Mutex
	entries map[string]*model.WaitlistEntry // by ID
	clock   time.Time
}

func newMemStore() *memStore {
	return &memStore{
		entries: make(map[string]*model.WaitlistEntry),
		clock:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) EnsureIndexes(ctx context.Context) error { return nil }

func (s *memStore) Insert(ctx context.Context, entry *model.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.SlotID == entry.SlotID && e.ClientID == entry.ClientID {
			return ErrDuplicate
		}
	}
	entry.ID = uuid.New().String()
	s.clock = s.clock.Add(time.Second)
	entry.RequestedAt = s.clock
	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}

func (s *memStore) Find(ctx context.Context, slotID, clientID string) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.SlotID == slotID && e.ClientID == clientID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) First(ctx context.Context, slotID string) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first *model.WaitlistEntry
	for _, e := range s.entries {
		if e.SlotID != slotID {
			continue
		}
		if first == nil || e.RequestedAt.Before(first.RequestedAt) {
			first = e
		}
	}
	if first == nil {
		return nil, ErrNotFound
	}
	copied := *first
	return &copied, nil
}

func (s *memStore) ListBySlot(ctx context.Context, slotID string) ([]*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.WaitlistEntry
	for _, e := range s.entries {
		if e.SlotID == slotID {
			copied := *e
			out = append(out, &copied)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].RequestedAt.Before(out[i].RequestedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *memStore) SetOffer(ctx context.Context, id string, expiresAt time.Time) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.OfferExpiresAt != nil {
		return nil, ErrNotFound
	}
	deadline := expiresAt
	entry.OfferExpiresAt = &deadline
	copied := *entry
	return &copied, nil
}

func (s *memStore) Delete(ctx context.Context, slotID, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.SlotID == slotID && e.ClientID == clientID {
			delete(s.entries, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) DeleteExpiredOffer(ctx context.Context, id string, now time.Time) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.OfferExpiresAt == nil || entry.OfferExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	delete(s.entries, id)
	return entry, nil
}

func (s *memStore) FindExpiredOffers(ctx context.Context, now time.Time, limit int) ([]*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.WaitlistEntry
	for _, e := range s.entries {
		if e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(now) {
			copied := *e
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type mockBookingFinder struct {
	mu     sync.Mutex
	booked bool
}

func (m *mockBookingFinder) setBooked(b bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.booked = b
}

func (m *mockBookingFinder) FindActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.booked {
		return nil, nil
	}
	return []*model.Booking{{
		ProviderID:  providerID,
		ScheduledAt: from,
		DurationMin: int(to.Sub(from) / time.Minute),
		Status:      model.BookingStatusConfirmed,
	}}, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []model.SlotEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event model.SlotEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) byType(typ string) []model.SlotEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.SlotEvent
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func slotKey() model.SlotKey {
	return model.SlotKey{
		ProviderID:  "provider-1",
		StartTime:   time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		DurationMin: 30,
	}
}

func newTestCoordinator(store Store, finder *mockBookingFinder) (*Coordinator, *capturingPublisher) {
	pub := &capturingPublisher{}
	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Service: "test"})
	return NewCoordinator(store, finder, pub, nil, 10*time.Minute, time.Minute, log), pub
}

func TestJoinRequiresBookedSlot(t *testing.T) {
	finder := &mockBookingFinder{}
	coord, _ := newTestCoordinator(newMemStore(), finder)

	_, err := coord.Join(context.Background(), slotKey(), "client-1")
	if apperrors.AsAppError(err).Code != apperrors.CodeInvalidInput {
		t.Fatalf("join of free slot: got %v, want INVALID_INPUT", err)
	}

	finder.setBooked(true)
	entry, err := coord.Join(context.Background(), slotKey(), "client-1")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if entry.SlotID != slotKey().Key() {
		t.Fatalf("entry slot = %s, want %s", entry.SlotID, slotKey().Key())
	}
}

func TestJoinIsIdempotentPerClient(t *testing.T) {
	finder := &mockBookingFinder{booked: true}
	coord, _ := newTestCoordinator(newMemStore(), finder)
	ctx := context.Background()

	first, err := coord.Join(ctx, slotKey(), "client-1")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	second, err := coord.Join(ctx, slotKey(), "client-1")
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if second.ID != first.ID || !second.RequestedAt.Equal(first.RequestedAt) {
		t.Fatalf("rejoin changed the entry: %+v vs %+v", second, first)
	}
}

func TestFreedSlotOffersToEarliestWaiter(t *testing.T) {
	finder := &mockBookingFinder{booked: true}
	store := newMemStore()
	coord, pub := newTestCoordinator(store, finder)
	ctx := context.Background()

	for _, client := range []string{"client-1", "client-2", "client-3"} {
		if _, err := coord.Join(ctx, slotKey(), client); err != nil {
			t.Fatalf("join %s failed: %v", client, err)
		}
	}

	finder.setBooked(false)
	coord.handleEvent(ctx, model.SlotEvent{
		Type:        model.EventSlotFreed,
		ProviderID:  slotKey().ProviderID,
		SlotID:      slotKey().Key(),
		StartTime:   slotKey().StartTime,
		DurationMin: slotKey().DurationMin,
	})

	offers := pub.byType(model.EventWaitlistOffered)
	if len(offers) != 1 || offers[0].ClientID != "client-1" {
		t.Fatalf("offers = %+v, want single offer to client-1", offers)
	}

	// A second freed event while the offer is live must not double-offer.
	coord.handleEvent(ctx, model.SlotEvent{Type: model.EventSlotFreed, SlotID: slotKey().Key(),
		ProviderID: slotKey().ProviderID, StartTime: slotKey().StartTime, DurationMin: slotKey().DurationMin})
	if offers := pub.byType(model.EventWaitlistOffered); len(offers) != 1 {
		t.Fatalf("got %d offers after duplicate freed event, want 1", len(offers))
	}
}

func TestOfferNextSkipsReoccupiedSlot(t *testing.T) {
	finder := &mockBookingFinder{booked: true}
	coord, pub := newTestCoordinator(newMemStore(), finder)
	ctx := context.Background()

	if _, err := coord.Join(ctx, slotKey(), "client-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// Slot still booked when the freed event is processed (someone re-booked
	// before the coordinator got to it).
	coord.offerNext(ctx, slotKey())
	if offers := pub.byType(model.EventWaitlistOffered); len(offers) != 0 {
		t.Fatalf("offered a booked slot: %+v", offers)
	}
}

func TestExpiredOfferAdvancesToNextWaiter(t *testing.T) {
	finder := &mockBookingFinder{booked: true}
	store := newMemStore()
	coord, pub := newTestCoordinator(store, finder)
	ctx := context.Background()

	for _, client := range []string{"client-1", "client-2"} {
		if _, err := coord.Join(ctx, slotKey(), client); err != nil {
			t.Fatalf("join %s failed: %v", client, err)
		}
	}

	finder.setBooked(false)
	coord.offerNext(ctx, slotKey())

	// Claim window lapses without a booking.
	coord.now = func() time.Time { return time.Now().Add(time.Hour) }
	coord.sweepOffers(ctx)

	expired := pub.byType(model.EventWaitlistExpired)
	if len(expired) != 1 || expired[0].ClientID != "client-1" {
		t.Fatalf("expired events = %+v, want one for client-1", expired)
	}
	offers := pub.byType(model.EventWaitlistOffered)
	if len(offers) != 2 || offers[1].ClientID != "client-2" {
		t.Fatalf("offers = %+v, want second offer to client-2", offers)
	}

	// client-1 is gone for good: no re-queue at the tail.
	if _, err := store.Find(ctx, slotKey().Key(), "client-1"); err != ErrNotFound {
		t.Fatalf("expired waiter still present: %v", err)
	}
}

func TestBookedEventClearsClaim(t *testing.T) {
	finder := &mockBookingFinder{booked: true}
	store := newMemStore()
	coord, _ := newTestCoordinator(store, finder)
	ctx := context.Background()

	if _, err := coord.Join(ctx, slotKey(), "client-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	coord.handleEvent(ctx, model.SlotEvent{
		Type:     model.EventSlotBooked,
		SlotID:   slotKey().Key(),
		ClientID: "client-1",
	})

	if _, err := store.Find(ctx, slotKey().Key(), "client-1"); err != ErrNotFound {
		t.Fatalf("entry survived the claim: %v", err)
	}
}

func TestWithdrawUnknownEntry(t *testing.T) {
	coord, _ := newTestCoordinator(newMemStore(), &mockBookingFinder{})

	err := coord.Withdraw(context.Background(), slotKey(), "client-1")
	if apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
		t.Fatalf("got %v, want NOT_FOUND", err)
	}
}
