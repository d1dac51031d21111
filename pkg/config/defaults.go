package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "reserva"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Hold TTL is deliberately short: long enough to complete checkout,
	// short enough to avoid starving other clients.
	DefaultHoldTTL           = 3 * time.Minute
	DefaultHoldSweepInterval = 30 * time.Second

	DefaultWaitlistClaimWindow   = 10 * time.Minute
	DefaultWaitlistSweepInterval = 30 * time.Second

	DefaultCancellationWindow = 24 * time.Hour
	DefaultMinBookingLead     = 0 * time.Minute

	DefaultMaxRecurrenceOccurrences = 52

	DefaultSubscriberBuffer = 64

	DefaultPaginationLimit = 100

	SlotEventsTopic    = "slot-events"
	SlotEventsDLQTopic = "slot-events-dlq"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)
