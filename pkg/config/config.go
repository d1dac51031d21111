package config

import (
	"fmt"
	"os"
	"regexp"
	"reserva/pkg/client"
	"reserva/pkg/logger"
	"strconv"
	"time"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RequestTimeout time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	HoldTTL           time.Duration
	HoldSweepInterval time.Duration

	WaitlistClaimWindow   time.Duration
	WaitlistSweepInterval time.Duration

	CancellationWindow time.Duration
	MinBookingLead     time.Duration

	MaxRecurrenceOccurrences int

	SubscriberBuffer int

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		HoldTTL:           getEnvDuration(EnvHoldTTL, DefaultHoldTTL),
		HoldSweepInterval: getEnvDuration(EnvHoldSweepInterval, DefaultHoldSweepInterval),

		WaitlistClaimWindow:   getEnvDuration(EnvWaitlistClaimWindow, DefaultWaitlistClaimWindow),
		WaitlistSweepInterval: getEnvDuration(EnvWaitlistSweepInterval, DefaultWaitlistSweepInterval),

		CancellationWindow: getEnvDuration(EnvCancellationWindow, DefaultCancellationWindow),
		MinBookingLead:     getEnvDuration(EnvMinBookingLead, DefaultMinBookingLead),

		MaxRecurrenceOccurrences: getEnvNum(EnvMaxRecurrenceOccurrences, DefaultMaxRecurrenceOccurrences),

		SubscriberBuffer: getEnvNum(EnvSubscriberBuffer, DefaultSubscriberBuffer),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.HoldTTL <= 0 {
		errors = append(errors, fmt.Sprintf("HoldTTL must be positive, got: %s", cfg.HoldTTL))
	}
	if cfg.HoldSweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("HoldSweepInterval must be positive, got: %s", cfg.HoldSweepInterval))
	}
	if cfg.WaitlistClaimWindow <= 0 {
		errors = append(errors, fmt.Sprintf("WaitlistClaimWindow must be positive, got: %s", cfg.WaitlistClaimWindow))
	}
	if cfg.WaitlistSweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("WaitlistSweepInterval must be positive, got: %s", cfg.WaitlistSweepInterval))
	}
	if cfg.CancellationWindow < 0 {
		errors = append(errors, fmt.Sprintf("CancellationWindow cannot be negative, got: %s", cfg.CancellationWindow))
	}
	if cfg.MinBookingLead < 0 {
		errors = append(errors, fmt.Sprintf("MinBookingLead cannot be negative, got: %s", cfg.MinBookingLead))
	}
	if cfg.MaxRecurrenceOccurrences <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRecurrenceOccurrences must be positive, got: %d", cfg.MaxRecurrenceOccurrences))
	}
	if cfg.SubscriberBuffer <= 0 {
		errors = append(errors, fmt.Sprintf("SubscriberBuffer must be positive, got: %d", cfg.SubscriberBuffer))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"hold_ttl", cfg.HoldTTL,
		"hold_sweep_interval", cfg.HoldSweepInterval,
		"waitlist_claim_window", cfg.WaitlistClaimWindow,
		"waitlist_sweep_interval", cfg.WaitlistSweepInterval,
		"cancellation_window", cfg.CancellationWindow,
		"min_booking_lead", cfg.MinBookingLead,
		"max_recurrence_occurrences", cfg.MaxRecurrenceOccurrences,
		"subscriber_buffer", cfg.SubscriberBuffer,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
