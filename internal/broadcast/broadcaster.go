package broadcast

import (
	"context"
	"sync"
	"time"

	"reserva/pkg/kafka"
	"reserva/pkg/logger"
	"reserva/pkg/model"

	"github.com/google/uuid"
)

// Publisher is the narrow surface the engine components use to announce slot
// state changes. Publishing is fire-and-forget: a failed fan-out never fails
// the originating store write.
type Publisher interface {
	Publish(ctx context.Context, event model.SlotEvent)
}

// Subscription delivers slot events for one provider to one client session.
// A subscriber that falls behind has events dropped; the per-provider
// sequence number lets it detect the gap and re-fetch availability.
type Subscription struct {
	C chan model.SlotEvent

	providerID string
	from, to   *time.Time
	id         string
}

type Broadcaster struct {
	mu       sync.Mutex
	sequence map[string]uint64
	subs     map[string]map[string]*Subscription

	producer *kafka.Producer
	originID string
	buffer   int
	log      *logger.Logger
}

func New(log *logger.Logger, producer *kafka.Producer, buffer int) *Broadcaster {
	return &Broadcaster{
		sequence: make(map[string]uint64),
		subs:     make(map[string]map[string]*Subscription),
		producer: producer,
		originID: uuid.New().String(),
		buffer:   buffer,
		log:      log,
	}
}

// OriginID identifies this instance on the wire so a relay can skip events
// it published itself.
func (b *Broadcaster) OriginID() string {
	return b.originID
}

// Publish stamps the event with the next per-provider sequence number, fans
// it out to local subscribers, and writes it to the event topic keyed by
// provider so cross-instance ordering per provider is preserved.
func (b *Broadcaster) Publish(ctx context.Context, event model.SlotEvent) {
	b.mu.Lock()
	b.sequence[event.ProviderID]++
	event.Sequence = b.sequence[event.ProviderID]
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	b.deliverLocked(event)
	b.mu.Unlock()

	if b.producer == nil {
		return
	}

	msg := kafka.NewMessage().
		WithKey(event.ProviderID).
		WithValue(event).
		WithEventType(event.Type).
		WithOriginID(b.originID).
		WithSource("reservations").
		Build()

	if err := b.producer.Publish(ctx, msg); err != nil {
		// Subscribers on other instances self-heal via sequence gaps.
		b.log.Error("Failed to publish slot event",
			"provider_id", event.ProviderID,
			"type", event.Type,
			"sequence", event.Sequence,
			"error", err,
		)
	}
}

// Inject fans out an event that already carries a sequence number, typically
// one relayed from another instance via the event topic.
func (b *Broadcaster) Inject(event model.SlotEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliverLocked(event)
}

// allProviders is the reserved subscription key for firehose consumers such
// as the waitlist coordinator.
const allProviders = ""

func (b *Broadcaster) deliverLocked(event model.SlotEvent) {
	for _, sub := range b.subs[allProviders] {
		select {
		case sub.C <- event:
		default:
			b.log.Warn("Dropping slot event for slow firehose subscriber",
				"provider_id", event.ProviderID,
				"sequence", event.Sequence,
			)
		}
	}
	for _, sub := range b.subs[event.ProviderID] {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.C <- event:
		default:
			// Slow subscriber: drop. The sequence gap tells it to re-fetch.
			b.log.Warn("Dropping slot event for slow subscriber",
				"provider_id", event.ProviderID,
				"sequence", event.Sequence,
			)
		}
	}
}

func (s *Subscription) wants(event model.SlotEvent) bool {
	if s.from != nil && event.StartTime.Before(*s.from) {
		return false
	}
	if s.to != nil && !event.StartTime.Before(*s.to) {
		return false
	}
	return true
}

// SubscribeAll registers a firehose subscriber receiving every provider's
// events, unfiltered.
func (b *Broadcaster) SubscribeAll() *Subscription {
	return b.Subscribe(allProviders, nil, nil)
}

// Subscribe registers a subscriber for one provider's events, optionally
// narrowed to a date range.
func (b *Broadcaster) Subscribe(providerID string, from, to *time.Time) *Subscription {
	sub := &Subscription{
		C:          make(chan model.SlotEvent, b.buffer),
		providerID: providerID,
		from:       from,
		to:         to,
		id:         uuid.New().String(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[providerID] == nil {
		b.subs[providerID] = make(map[string]*Subscription)
	}
	b.subs[providerID][sub.id] = sub
	return sub
}

// SubscriberCount reports how many subscribers are registered for a provider.
func (b *Broadcaster) SubscriberCount(providerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[providerID])
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	providerSubs, ok := b.subs[sub.providerID]
	if !ok {
		return
	}
	if _, ok := providerSubs[sub.id]; !ok {
		return
	}
	delete(providerSubs, sub.id)
	if len(providerSubs) == 0 {
		delete(b.subs, sub.providerID)
	}
	close(sub.C)
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	for providerID, providerSubs := range b.subs {
		for _, sub := range providerSubs {
			close(sub.C)
		}
		delete(b.subs, providerID)
	}
	b.mu.Unlock()

	if b.producer != nil {
		return b.producer.Close()
	}
	return nil
}
