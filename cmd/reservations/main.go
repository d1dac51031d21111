package main

import (
	"context"
	"time"

	"reserva/internal/availability"
	"reserva/internal/broadcast"
	"reserva/internal/holds"
	"reserva/internal/recurrence"
	reservationhandler "reserva/internal/reservations/handler"
	"reserva/internal/reservations/repository"
	reservationservice "reserva/internal/reservations/service"
	reservationvalidator "reserva/internal/reservations/validator"
	schedulehandler "reserva/internal/schedules/handler"
	schedulerepository "reserva/internal/schedules/repository"
	scheduleservice "reserva/internal/schedules/service"
	schedulevalidator "reserva/internal/schedules/validator"
	"reserva/internal/waitlist"
	"reserva/pkg/app"
	"reserva/pkg/config"
	"reserva/pkg/contracts"
	"reserva/pkg/kafka"
	kafka_config "reserva/pkg/kafka/config"
	kafka_middleware "reserva/pkg/kafka/middleware"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Reservations service")

	serverApp := app.NewApplication(cfg)
	handlers := initServices(cfg, serverApp)
	serverApp.SetApp(handlers...)
	serverApp.Run()
}

func initServices(cfg *config.Config, serverApp *app.Application) []contracts.Handler {
	broadcaster := initBroadcaster(cfg, serverApp)

	scheduleRepo := schedulerepository.NewMongoScheduleRepository(cfg)
	scheduleSvc := scheduleservice.NewScheduleService(
		scheduleRepo,
		schedulevalidator.NewScheduleValidator(cfg.Log),
		cfg,
	)

	bookingRepo := repository.NewMongoBookingRepository(cfg)
	availabilitySvc := availability.NewService(scheduleRepo, bookingRepo, cfg.MinBookingLead, cfg.Log)

	holdStore := holds.NewMongoStore(cfg)
	holdManager := holds.NewManager(
		holdStore,
		availabilitySvc,
		broadcaster,
		cfg.HoldTTL,
		cfg.HoldSweepInterval,
		cfg.Log,
	)

	reservationVal := reservationvalidator.NewReservationValidator(cfg.Log)
	reservationSvc := reservationservice.NewReservationService(
		bookingRepo,
		holdManager,
		reservationVal,
		broadcaster,
		cfg,
	)

	waitlistStore := waitlist.NewMongoStore(cfg)
	waitlistCoord := waitlist.NewCoordinator(
		waitlistStore,
		bookingRepo,
		broadcaster,
		broadcaster.SubscribeAll(),
		cfg.WaitlistClaimWindow,
		cfg.WaitlistSweepInterval,
		cfg.Log,
	)

	expander := recurrence.NewExpander(
		holdManager,
		reservationSvc,
		reservationVal,
		cfg.MaxRecurrenceOccurrences,
		cfg.Log,
	)

	ensureIndexes(cfg, bookingRepo, waitlistStore)

	serverApp.AddWorker("hold-sweeper", holdManager.RunSweeper)
	serverApp.AddWorker("waitlist-coordinator", waitlistCoord.Run)

	cfg.Log.Info("Reservation services initialized", "database", cfg.MongoDatabaseName)

	return []contracts.Handler{
		reservationhandler.NewReservationHandler(
			availabilitySvc,
			holdManager,
			reservationSvc,
			waitlistCoord,
			expander,
			broadcaster,
			cfg.Log,
		),
		schedulehandler.NewScheduleHandler(scheduleSvc, cfg.Log),
	}
}

// initBroadcaster wires the in-process event hub and, when Kafka is enabled,
// the producer and relay that fan events across instances.
func initBroadcaster(cfg *config.Config, serverApp *app.Application) *broadcast.Broadcaster {
	kafkaCfg := kafka_config.Load()

	var producer *kafka.Producer
	if kafkaCfg.Enabled {
		var err error
		producer, err = kafka.NewProducer(kafkaCfg, broadcast.SlotEventsTopic, broadcast.SlotEventsDLQTopic)
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
		}
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	} else {
		cfg.Log.Info("Kafka disabled, slot events stay local to this instance")
	}

	broadcaster := broadcast.New(cfg.Log, producer, cfg.SubscriberBuffer)
	serverApp.AddCloser("broadcaster", broadcaster.Close)

	if kafkaCfg.Enabled {
		relay, err := broadcast.NewRelay(
			kafkaCfg,
			broadcast.SlotEventsTopic,
			broadcast.RelayGroupPrefix+broadcaster.OriginID(),
			broadcast.SlotEventsDLQTopic,
			broadcaster,
			cfg.Log,
		)
		if err != nil {
			cfg.Log.Fatal("Failed to create slot event relay", "error", err)
		}
		serverApp.AddWorker("slot-event-relay", func(ctx context.Context) {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				cfg.Log.Error("Slot event relay stopped", "error", err)
			}
		})
		serverApp.AddCloser("slot-event-relay", relay.Close)
	}

	return broadcaster
}

func ensureIndexes(cfg *config.Config, bookingRepo repository.BookingRepository, waitlistStore waitlist.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bookingRepo.EnsureIndexes(ctx); err != nil {
		cfg.Log.Fatal("Failed to ensure booking indexes", "error", err)
	}
	if err := waitlistStore.EnsureIndexes(ctx); err != nil {
		cfg.Log.Fatal("Failed to ensure waitlist indexes", "error", err)
	}
	cfg.Log.Info("MongoDB indexes ensured")
}
