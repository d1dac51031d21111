package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	reservationserrors "reserva/internal/reservations/errors"
	"reserva/internal/reservations/validator"
	"reserva/pkg/config"
	mongotx "reserva/pkg/db/mongo"
	apperrors "reserva/pkg/errors"
	"reserva/pkg/logger"
	"reserva/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

// Mock repository for testing
type mockBookingRepository struct {
	mu      sync.Mutex
	active  map[string]string // providerID|unix -> booking ID
	nextID  int
	ByID    map[string]*model.Booking
	created []*model.Booking

	createFunc       func(ctx context.Context, booking *model.Booking) error
	findByIDFunc     func(ctx context.Context, id string) (*model.Booking, error)
	updateStatusFunc func(ctx context.Context, id string, fromStatuses []string, version int64, set bson.M) (*model.Booking, error)
}

func newMockBookingRepository() *mockBookingRepository {
	return &mockBookingRepository{
		active: make(map[string]string),
		ByID:   make(map[string]*model.Booking),
	}
}

func (m *mockBookingRepository) EnsureIndexes(ctx context.Context) error { return nil }

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := fmt.Sprintf("%s|%d", booking.ProviderID, booking.ScheduledAt.Unix())
	if _, taken := m.active[slot]; taken {
		return reservationserrors.ErrDuplicateSlot
	}
	m.nextID++
	booking.ID = fmt.Sprintf("00000000-0000-4000-8000-%012d", m.nextID)
	m.active[slot] = booking.ID
	copied := *booking
	m.ByID[booking.ID] = &copied
	m.created = append(m.created, &copied)
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.ByID[id]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	copied := *booking
	return &copied, nil
}

func (m *mockBookingRepository) FindActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepository) FindByProvider(ctx context.Context, providerID string, from, to *time.Time, limit int, offset int64) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepository) CountByProvider(ctx context.Context, providerID string, from, to *time.Time) (int64, error) {
	return 0, nil
}

func (m *mockBookingRepository) UpdateStatus(ctx context.Context, id string, fromStatuses []string, version int64, set bson.M) (*model.Booking, error) {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, fromStatuses, version, set)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.ByID[id]
	if !ok || booking.Version != version {
		return nil, reservationserrors.ErrStaleWrite
	}
	allowed := false
	for _, status := range fromStatuses {
		if booking.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, reservationserrors.ErrStaleWrite
	}
	if status, ok := set["status"].(string); ok {
		if booking.Active() && status != model.BookingStatusPending && status != model.BookingStatusConfirmed {
			delete(m.active, fmt.Sprintf("%s|%d", booking.ProviderID, booking.ScheduledAt.Unix()))
		}
		booking.Status = status
	}
	booking.Version++
	copied := *booking
	return &copied, nil
}

func (m *mockBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockHoldManager struct {
	validateFunc func(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error)
	consumeFunc  func(ctx context.Context, key model.SlotKey, sessionID string) error
	consumed     []string
	mu           sync.Mutex
}

func (m *mockHoldManager) Validate(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, key, sessionID)
	}
	return &model.Hold{SlotID: key.Key(), SessionID: sessionID}, nil
}

func (m *mockHoldManager) Consume(ctx context.Context, key model.SlotKey, sessionID string) error {
	if m.consumeFunc != nil {
		return m.consumeFunc(ctx, key, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed = append(m.consumed, key.Key())
	return nil
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

func (p *capturingPublisher) last() (model.SlotEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return model.SlotEvent{}, false
	}
	return p.events[len(p.events)-1], true
}

func testConfig() *config.Config {
	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Service: "test"})
	return &config.Config{
		Log:                log,
		CancellationWindow: 24 * time.Hour,
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
	}
}

func newTestService(repo *mockBookingRepository, holds *mockHoldManager) (*reservationService, *capturingPublisher) {
	cfg := testConfig()
	pub := &capturingPublisher{}
	return &reservationService{
		repo:      repo,
		holds:     holds,
		validator: validator.NewReservationValidator(cfg.Log),
		publisher: pub,
		cfg:       cfg,
		now:       time.Now,
	}, pub
}

func futureKey() model.SlotKey {
	return model.SlotKey{
		ProviderID:  "provider-1",
		StartTime:   time.Now().Add(72 * time.Hour).UTC().Truncate(time.Minute),
		DurationMin: 30,
	}
}

func details() model.BookingDetails {
	return model.BookingDetails{
		ClientID:    "client-1",
		ServiceName: "Consultation",
	}
}

func TestConfirmCreatesBookingAndConsumesHold(t *testing.T) {
	repo := newMockBookingRepository()
	holds := &mockHoldManager{}
	svc, pub := newTestService(repo, holds)
	key := futureKey()

	booking, err := svc.Confirm(context.Background(), key, "session-1", details())
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if booking.Status != model.BookingStatusConfirmed {
		t.Errorf("status = %s, want confirmed", booking.Status)
	}
	if booking.ID == "" {
		t.Error("booking ID was not assigned")
	}
	if len(holds.consumed) != 1 || holds.consumed[0] != key.Key() {
		t.Errorf("consumed holds = %v, want [%s]", holds.consumed, key.Key())
	}

	event, ok := pub.last()
	if !ok || event.Type != model.EventSlotBooked {
		t.Fatalf("published event = %+v, want booked", event)
	}
	if event.BookingID != booking.ID || event.ClientID != "client-1" {
		t.Errorf("event booking/client = %s/%s, want %s/client-1", event.BookingID, event.ClientID, booking.ID)
	}
}

func TestConfirmWithoutLiveHoldIsContention(t *testing.T) {
	repo := newMockBookingRepository()
	holds := &mockHoldManager{
		validateFunc: func(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error) {
			return nil, apperrors.NotFoundWithID("hold", key.Key())
		},
	}
	svc, _ := newTestService(repo, holds)

	_, err := svc.Confirm(context.Background(), futureKey(), "session-1", details())
	if !apperrors.IsConflict(err) {
		t.Fatalf("got %v, want conflict-class error", err)
	}
	if len(repo.created) != 0 {
		t.Fatal("booking was created despite missing hold")
	}
}

func TestConfirmRaceSingleWinner(t *testing.T) {
	repo := newMockBookingRepository()
	holds := &mockHoldManager{}
	svc, _ := newTestService(repo, holds)
	key := futureKey()

	// Both sessions hold distinct mock holds; the store's uniqueness on
	// active slots decides the winner.
	const racers = 8
	var wg sync.WaitGroup
	var winners, conflicts int
	var mu sync.Mutex
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Confirm(context.Background(), key, fmt.Sprintf("session-%d", n), details())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			if apperrors.AsAppError(err).Reason() == apperrors.ReasonAlreadyBooked {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if conflicts != racers-1 {
		t.Fatalf("already_booked conflicts = %d, want %d", conflicts, racers-1)
	}
}

func TestConfirmValidatesInput(t *testing.T) {
	svc, _ := newTestService(newMockBookingRepository(), &mockHoldManager{})

	tests := []struct {
		name      string
		key       model.SlotKey
		sessionID string
		details   model.BookingDetails
	}{
		{"missing provider", model.SlotKey{StartTime: time.Now(), DurationMin: 30}, "s", details()},
		{"bad duration", model.SlotKey{ProviderID: "p", StartTime: time.Now(), DurationMin: 3}, "s", details()},
		{"missing client", futureKey(), "s", model.BookingDetails{ServiceName: "Consultation"}},
		{"empty session", futureKey(), "", details()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Confirm(context.Background(), tc.key, tc.sessionID, tc.details)
			if err == nil {
				t.Fatal("expected validation error")
			}
			code := apperrors.AsAppError(err).Code
			if code != apperrors.CodeValidation && code != apperrors.CodeInvalidInput {
				t.Fatalf("got code %s, want validation", code)
			}
		})
	}
}

func confirmOne(t *testing.T, svc *reservationService, key model.SlotKey) *model.Booking {
	t.Helper()
	booking, err := svc.Confirm(context.Background(), key, "session-1", details())
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	return booking
}

func TestCancelFreesSlotAndPublishes(t *testing.T) {
	repo := newMockBookingRepository()
	svc, pub := newTestService(repo, &mockHoldManager{})
	booking := confirmOne(t, svc, futureKey())

	updated, err := svc.Cancel(context.Background(), booking.ID, booking.Version, false)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if updated.Status != model.BookingStatusCancelled {
		t.Errorf("status = %s, want cancelled", updated.Status)
	}
	if updated.Version != booking.Version+1 {
		t.Errorf("version = %d, want %d", updated.Version, booking.Version+1)
	}

	event, _ := pub.last()
	if event.Type != model.EventSlotFreed || event.BookingID != booking.ID {
		t.Fatalf("last event = %+v, want freed for %s", event, booking.ID)
	}
}

func TestCancelStaleVersion(t *testing.T) {
	repo := newMockBookingRepository()
	svc, _ := newTestService(repo, &mockHoldManager{})
	booking := confirmOne(t, svc, futureKey())

	_, err := svc.Cancel(context.Background(), booking.ID, booking.Version+5, false)
	if apperrors.AsAppError(err).Reason() != apperrors.ReasonStaleVersion {
		t.Fatalf("got %v, want stale_version conflict", err)
	}
}

func TestCancelInsideWindowNeedsOverride(t *testing.T) {
	repo := newMockBookingRepository()
	svc, _ := newTestService(repo, &mockHoldManager{})

	key := futureKey()
	key.StartTime = time.Now().Add(2 * time.Hour).UTC().Truncate(time.Minute)
	booking := confirmOne(t, svc, key)

	_, err := svc.Cancel(context.Background(), booking.ID, booking.Version, false)
	if apperrors.AsAppError(err).Code != apperrors.CodeTooLateToCancel {
		t.Fatalf("got %v, want TOO_LATE_TO_CANCEL", err)
	}

	// An override ignores the window.
	updated, err := svc.Cancel(context.Background(), booking.ID, booking.Version, true)
	if err != nil {
		t.Fatalf("override cancel failed: %v", err)
	}
	if updated.Status != model.BookingStatusCancelled {
		t.Fatalf("status = %s, want cancelled", updated.Status)
	}
}

func TestCancelInactiveBooking(t *testing.T) {
	repo := newMockBookingRepository()
	svc, _ := newTestService(repo, &mockHoldManager{})
	booking := confirmOne(t, svc, futureKey())

	updated, err := svc.Cancel(context.Background(), booking.ID, booking.Version, false)
	if err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	_, err = svc.Cancel(context.Background(), booking.ID, updated.Version, false)
	if !apperrors.IsConflict(err) {
		t.Fatalf("second cancel: got %v, want conflict", err)
	}
}

func TestCompleteRequiresElapsedConfirmedBooking(t *testing.T) {
	repo := newMockBookingRepository()
	svc, _ := newTestService(repo, &mockHoldManager{})
	booking := confirmOne(t, svc, futureKey())

	// Too early.
	if _, err := svc.Complete(context.Background(), booking.ID, booking.Version); err == nil {
		t.Fatal("expected error completing a future booking")
	}

	// Move the clock past the slot.
	svc.now = func() time.Time { return booking.ScheduledAt.Add(time.Hour) }
	updated, err := svc.Complete(context.Background(), booking.ID, booking.Version)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if updated.Status != model.BookingStatusCompleted {
		t.Fatalf("status = %s, want completed", updated.Status)
	}

	// Completed is terminal.
	if _, err := svc.Complete(context.Background(), booking.ID, updated.Version); !apperrors.IsConflict(err) {
		t.Fatalf("re-complete: got %v, want conflict", err)
	}
}

func TestGetByIDUnknown(t *testing.T) {
	svc, _ := newTestService(newMockBookingRepository(), &mockHoldManager{})

	_, err := svc.GetByID(context.Background(), "856f9bf5-52a6-4b95-b5e8-d07370ae0ed3")
	if apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
		t.Fatalf("got %v, want NOT_FOUND", err)
	}
}
