package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"reserva/pkg/logger"
	"reserva/pkg/model"
)

func newTestBroadcaster(buffer int) *Broadcaster {
	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT, Service: "test"})
	return New(log, nil, buffer)
}

func event(providerID string, start time.Time) model.SlotEvent {
	return model.SlotEvent{
		Type:        model.EventSlotFreed,
		ProviderID:  providerID,
		SlotID:      model.SlotKey{ProviderID: providerID, StartTime: start, DurationMin: 30}.Key(),
		StartTime:   start,
		DurationMin: 30,
	}
}

func TestPublishAssignsMonotonicSequencePerProvider(t *testing.T) {
	b := newTestBroadcaster(16)
	defer b.Close()

	subA := b.Subscribe("provider-a", nil, nil)
	subB := b.Subscribe("provider-b", nil, nil)

	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Publish(ctx, event("provider-a", start))
	}
	b.Publish(ctx, event("provider-b", start))

	for want := uint64(1); want <= 3; want++ {
		got := <-subA.C
		if got.Sequence != want {
			t.Fatalf("provider-a sequence = %d, want %d", got.Sequence, want)
		}
	}

	got := <-subB.C
	if got.Sequence != 1 {
		t.Fatalf("provider-b sequence = %d, want 1 (independent counter)", got.Sequence)
	}
}

func TestSubscribeFiltersByProviderAndRange(t *testing.T) {
	b := newTestBroadcaster(16)
	defer b.Close()

	from := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	sub := b.Subscribe("provider-a", &from, &to)

	ctx := context.Background()
	b.Publish(ctx, event("provider-b", from.Add(time.Hour)))          // other provider
	b.Publish(ctx, event("provider-a", from.Add(-time.Hour)))        // before range
	b.Publish(ctx, event("provider-a", to))                          // at exclusive end
	b.Publish(ctx, event("provider-a", from.Add(10*time.Hour)))      // in range

	got := <-sub.C
	if !got.StartTime.Equal(from.Add(10 * time.Hour)) {
		t.Fatalf("received event at %v, want the in-range event", got.StartTime)
	}

	select {
	case extra := <-sub.C:
		t.Fatalf("received unexpected extra event: %+v", extra)
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := newTestBroadcaster(1)
	defer b.Close()

	sub := b.Subscribe("provider-a", nil, nil)
	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		for i := 0; i < 10; i++ {
			b.Publish(ctx, event("provider-a", start))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// Buffer of one: exactly one event delivered, and its sequence lets the
	// subscriber detect the gap.
	got := <-sub.C
	if got.Sequence != 1 {
		t.Fatalf("buffered event sequence = %d, want 1", got.Sequence)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := newTestBroadcaster(4)
	defer b.Close()

	sub := b.Subscribe("provider-a", nil, nil)
	b.Unsubscribe(sub)

	if _, open := <-sub.C; open {
		t.Fatal("channel still open after unsubscribe")
	}

	// Double unsubscribe must not panic.
	b.Unsubscribe(sub)
}

func TestInjectPreservesRelayedSequence(t *testing.T) {
	b := newTestBroadcaster(4)
	defer b.Close()

	sub := b.Subscribe("provider-a", nil, nil)

	relayed := event("provider-a", time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
	relayed.Sequence = 42
	b.Inject(relayed)

	got := <-sub.C
	if got.Sequence != 42 {
		t.Fatalf("injected sequence = %d, want 42", got.Sequence)
	}
}

func TestConcurrentPublishersKeepSequenceDense(t *testing.T) {
	b := newTestBroadcaster(256)
	defer b.Close()

	sub := b.Subscribe("provider-a", nil, nil)
	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	const publishers = 8
	const perPublisher = 16
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			for j := 0; j < perPublisher; j++ {
				b.Publish(ctx, event("provider-a", start))
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for i := 0; i < publishers*perPublisher; i++ {
		got := <-sub.C
		if seen[got.Sequence] {
			t.Fatalf("duplicate sequence %d", got.Sequence)
		}
		seen[got.Sequence] = true
	}
	for want := uint64(1); want <= publishers*perPublisher; want++ {
		if !seen[want] {
			t.Fatalf("missing sequence %d", want)
		}
	}
}
