package broadcast

import (
	"context"

	"reserva/pkg/kafka"
	kafka_config "reserva/pkg/kafka/config"
	kafka_middleware "reserva/pkg/kafka/middleware"
	"reserva/pkg/logger"
	"reserva/pkg/model"
)

const (
	// SlotEventsTopic carries every slot state change, keyed by provider ID.
	SlotEventsTopic    = "reservations.slot-events"
	SlotEventsDLQTopic = "reservations.slot-events.dlq"

	// RelayGroupPrefix plus the instance origin ID forms the consumer group.
	// Each instance consumes the full topic independently.
	RelayGroupPrefix = "reservations-relay-"
)

// Relay consumes the slot event topic and injects events published by other
// instances into the local broadcaster, so subscribers connected to this
// instance see changes made anywhere in the deployment.
type Relay struct {
	consumer    *kafka.Consumer
	broadcaster *Broadcaster
	log         *logger.Logger
}

func NewRelay(cfg *kafka_config.Config, topic, groupID, dlqTopic string, broadcaster *Broadcaster, log *logger.Logger) (*Relay, error) {
	relay := &Relay{
		broadcaster: broadcaster,
		log:         log,
	}

	consumer, err := kafka.NewConsumer(cfg, topic, groupID, dlqTopic, relay.handle)
	if err != nil {
		return nil, err
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(log))
	relay.consumer = consumer
	return relay, nil
}

// handle decodes one relayed message and fans it out locally. Events this
// instance published itself are skipped; local subscribers already saw them.
func (r *Relay) handle(ctx context.Context, msg kafka.Message) error {
	if msg.GetOriginID() == r.broadcaster.OriginID() {
		return nil
	}

	var event model.SlotEvent
	if err := msg.DecodeValue(&event); err != nil {
		return kafka.NewPermanentError("failed to decode slot event", err)
	}

	r.broadcaster.Inject(event)
	return nil
}

// Run consumes until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	return r.consumer.Start(ctx)
}

func (r *Relay) Close() error {
	return r.consumer.Close()
}
