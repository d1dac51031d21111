package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvHoldTTL           = "HOLD_TTL"
	EnvHoldSweepInterval = "HOLD_SWEEP_INTERVAL"

	EnvWaitlistClaimWindow   = "WAITLIST_CLAIM_WINDOW"
	EnvWaitlistSweepInterval = "WAITLIST_SWEEP_INTERVAL"

	EnvCancellationWindow = "CANCELLATION_WINDOW"
	EnvMinBookingLead     = "MIN_BOOKING_LEAD"

	EnvMaxRecurrenceOccurrences = "MAX_RECURRENCE_OCCURRENCES"

	EnvSubscriberBuffer = "SUBSCRIBER_BUFFER"
)
