package waitlist

import (
	"context"
	"errors"
	"time"

	"reserva/internal/broadcast"
	apperrors "reserva/pkg/errors"
	"reserva/pkg/logger"
	"reserva/pkg/model"
)

// BookingFinder answers whether a slot is still occupied before the
// coordinator offers it to the next waiter.
type BookingFinder interface {
	FindActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]*model.Booking, error)
}

// Coordinator runs the waitlist protocol: clients join a fully booked slot,
// and when that slot frees up the earliest waiter gets a bounded claim
// window. Everything the coordinator does downstream of a cancellation is
// driven by slot events, not by direct calls from the booking flow.
type Coordinator struct {
	store     Store
	bookings  BookingFinder
	publisher broadcast.Publisher
	events    *broadcast.Subscription
	log       *logger.Logger

	claimWindow   time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

func NewCoordinator(
	store Store,
	bookings BookingFinder,
	publisher broadcast.Publisher,
	events *broadcast.Subscription,
	claimWindow, sweepInterval time.Duration,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		store:         store,
		bookings:      bookings,
		publisher:     publisher,
		events:        events,
		log:           log,
		claimWindow:   claimWindow,
		sweepInterval: sweepInterval,
		now:           time.Now,
	}
}

// Join queues the client for a slot that is currently booked. Joining twice
// is idempotent and returns the original entry with its position intact.
func (c *Coordinator) Join(ctx context.Context, key model.SlotKey, clientID string) (*model.WaitlistEntry, error) {
	if clientID == "" {
		return nil, apperrors.InvalidInput("Client ID cannot be empty")
	}

	occupied, err := c.slotOccupied(ctx, key)
	if err != nil {
		return nil, err
	}
	if !occupied {
		return nil, apperrors.InvalidInput("Slot is not booked; reserve it directly instead of waiting")
	}

	entry := &model.WaitlistEntry{
		SlotID:      key.Key(),
		ProviderID:  key.ProviderID,
		StartTime:   key.StartTime,
		DurationMin: key.DurationMin,
		ClientID:    clientID,
	}
	err = c.store.Insert(ctx, entry)
	if err == nil {
		c.log.Info("Client joined waitlist", "slot_id", entry.SlotID, "client_id", clientID)
		return entry, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return nil, apperrors.StoreUnavailable(err)
	}

	existing, err := c.store.Find(ctx, key.Key(), clientID)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return existing, nil
}

// Withdraw removes the client from the slot's waitlist.
func (c *Coordinator) Withdraw(ctx context.Context, key model.SlotKey, clientID string) error {
	deleted, err := c.store.Delete(ctx, key.Key(), clientID)
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}
	if !deleted {
		return apperrors.NotFoundWithID("waitlist entry", key.Key())
	}
	c.log.Info("Client withdrew from waitlist", "slot_id", key.Key(), "client_id", clientID)
	return nil
}

func (c *Coordinator) ListBySlot(ctx context.Context, key model.SlotKey) ([]*model.WaitlistEntry, error) {
	entries, err := c.store.ListBySlot(ctx, key.Key())
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return entries, nil
}

func (c *Coordinator) slotOccupied(ctx context.Context, key model.SlotKey) (bool, error) {
	booked, err := c.bookings.FindActiveInRange(ctx, key.ProviderID, key.StartTime, key.EndTime())
	if err != nil {
		return false, apperrors.StoreUnavailable(err)
	}
	for _, b := range booked {
		end := b.ScheduledAt.Add(time.Duration(b.DurationMin) * time.Minute)
		if model.Overlaps(key.StartTime, key.EndTime(), b.ScheduledAt, end) {
			return true, nil
		}
	}
	return false, nil
}

// Run consumes slot events and sweeps expired offers until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.events.C:
			if !ok {
				return
			}
			c.handleEvent(ctx, event)
		case <-ticker.C:
			c.sweepOffers(ctx)
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, event model.SlotEvent) {
	switch event.Type {
	case model.EventSlotFreed:
		c.offerNext(ctx, event.SlotKey())
	case model.EventSlotBooked:
		// A booking consumes any waitlist membership the booking client had
		// on that slot, offered or not.
		if event.ClientID == "" {
			return
		}
		deleted, err := c.store.Delete(ctx, event.SlotID, event.ClientID)
		if err != nil {
			c.log.Error("Failed to clear waitlist entry after booking",
				"slot_id", event.SlotID, "client_id", event.ClientID, "error", err)
			return
		}
		if deleted {
			c.log.Info("Waitlist claim fulfilled", "slot_id", event.SlotID, "client_id", event.ClientID)
		}
	}
}

// offerNext stamps a claim window on the slot's earliest waiter. A no-op when
// the slot got re-booked in the meantime or the head waiter already holds a
// live offer.
func (c *Coordinator) offerNext(ctx context.Context, key model.SlotKey) {
	occupied, err := c.slotOccupied(ctx, key)
	if err != nil {
		c.log.Error("Failed to check slot before waitlist offer", "slot_id", key.Key(), "error", err)
		return
	}
	if occupied {
		return
	}

	entry, err := c.store.First(ctx, key.Key())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Error("Failed to read waitlist head", "slot_id", key.Key(), "error", err)
		}
		return
	}
	if entry.Offered() {
		return
	}

	now := c.now()
	offered, err := c.store.SetOffer(ctx, entry.ID, now.Add(c.claimWindow))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Error("Failed to stamp waitlist offer", "slot_id", key.Key(), "error", err)
		}
		return
	}

	c.publisher.Publish(ctx, model.SlotEvent{
		Type:        model.EventWaitlistOffered,
		ProviderID:  offered.ProviderID,
		SlotID:      offered.SlotID,
		StartTime:   offered.StartTime,
		DurationMin: offered.DurationMin,
		ClientID:    offered.ClientID,
	})
	c.log.Info("Waitlist offer extended",
		"slot_id", offered.SlotID,
		"client_id", offered.ClientID,
		"expires_at", offered.OfferExpiresAt,
	)
}

// sweepOffers removes entries whose claim window lapsed and moves the offer
// to the next waiter. An expired offer is final for that entry; there is no
// re-queue at the tail.
func (c *Coordinator) sweepOffers(ctx context.Context) {
	now := c.now()
	expired, err := c.store.FindExpiredOffers(ctx, now, 100)
	if err != nil {
		c.log.Error("Waitlist offer sweep failed", "error", err)
		return
	}

	for _, entry := range expired {
		removed, err := c.store.DeleteExpiredOffer(ctx, entry.ID, now)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				c.log.Error("Failed to remove expired waitlist offer", "id", entry.ID, "error", err)
			}
			continue
		}

		c.publisher.Publish(ctx, model.SlotEvent{
			Type:        model.EventWaitlistExpired,
			ProviderID:  removed.ProviderID,
			SlotID:      removed.SlotID,
			StartTime:   removed.StartTime,
			DurationMin: removed.DurationMin,
			ClientID:    removed.ClientID,
		})
		c.log.Info("Waitlist offer expired", "slot_id", removed.SlotID, "client_id", removed.ClientID)

		// The slot may still be free; give the next waiter a turn.
		c.offerNext(ctx, removed.SlotKey())
	}
}
