package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	reservationserrors "reserva/internal/reservations/errors"
	"reserva/pkg/config"
	mongotx "reserva/pkg/db/mongo"
	"reserva/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Bookings"

type BookingRepository interface {
	EnsureIndexes(ctx context.Context) error
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]*model.Booking, error)
	FindByProvider(ctx context.Context, providerID string, from, to *time.Time, limit int, offset int64) ([]*model.Booking, error)
	CountByProvider(ctx context.Context, providerID string, from, to *time.Time) (int64, error)
	// UpdateStatus performs a conditional status transition: the document must
	// still carry the given version and be in one of fromStatuses. Returns
	// ErrStaleWrite when nothing matched.
	UpdateStatus(ctx context.Context, id string, fromStatuses []string, version int64, set bson.M) (*model.Booking, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless it is already a
// transaction session context, which must not be re-wrapped.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// EnsureIndexes installs the partial unique index that makes booking
// uniqueness a store-level guarantee: at most one pending or confirmed
// booking per (provider_id, scheduled_at). Cancelled and completed bookings
// fall outside the partial filter and never block the slot.
func (r *mongoBookingRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "provider_id", Value: 1},
				{Key: "scheduled_at", Value: 1},
			},
			Options: options.Index().
				SetName("unique_active_slot").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": []string{
						model.BookingStatusPending,
						model.BookingStatusConfirmed,
					}},
				}),
		},
		{
			Keys: bson.D{
				{Key: "provider_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "scheduled_at", Value: 1},
			},
			Options: options.Index().SetName("provider_status_time"),
		},
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}},
			Options: options.Index().SetName("client_lookup"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	booking.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return reservationserrors.ErrDuplicateSlot
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", reservationserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) FindActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"provider_id": providerID,
		"status": bson.M{"$in": []string{
			model.BookingStatusPending,
			model.BookingStatusConfirmed,
		}},
		"scheduled_at": bson.M{"$gte": from.Add(-maxSlotSpan), "$lt": to},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find active bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode active bookings: %w", err)
	}
	return bookings, nil
}

// maxSlotSpan widens range queries so a booking that starts before the window
// but runs into it is still returned for overlap checks.
const maxSlotSpan = 8 * time.Hour

func (r *mongoBookingRepository) providerFilter(providerID string, from, to *time.Time) bson.M {
	filter := bson.M{"provider_id": providerID}
	scheduled := bson.M{}
	if from != nil {
		scheduled["$gte"] = *from
	}
	if to != nil {
		scheduled["$lt"] = *to
	}
	if len(scheduled) > 0 {
		filter["scheduled_at"] = scheduled
	}
	return filter
}

func (r *mongoBookingRepository) FindByProvider(ctx context.Context, providerID string, from, to *time.Time, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, r.providerFilter(providerID, from, to), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoBookingRepository) CountByProvider(ctx context.Context, providerID string, from, to *time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, r.providerFilter(providerID, from, to))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, id string, fromStatuses []string, version int64, set bson.M) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":     id,
		"status":  bson.M{"$in": fromStatuses},
		"version": version,
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrStaleWrite
		}
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
