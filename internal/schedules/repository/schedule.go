package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserva/pkg/config"
	"reserva/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Schedules"

var ErrNotFound = errors.New("provider schedule not found")

type ScheduleRepository interface {
	// Save upserts the full schedule document keyed by provider ID.
	Save(ctx context.Context, schedule *model.ProviderSchedule) error
	FindByProvider(ctx context.Context, providerID string) (*model.ProviderSchedule, error)
	Replace(ctx context.Context, schedule *model.ProviderSchedule) error
	Delete(ctx context.Context, providerID string) error
}

type mongoScheduleRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoScheduleRepository(cfg *config.Config) ScheduleRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoScheduleRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoScheduleRepository) Save(ctx context.Context, schedule *model.ProviderSchedule) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": schedule.ProviderID}, schedule, opts)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (r *mongoScheduleRepository) FindByProvider(ctx context.Context, providerID string) (*model.ProviderSchedule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var schedule model.ProviderSchedule
	err := r.collection.FindOne(ctx, bson.M{"_id": providerID}).Decode(&schedule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find schedule: %w", err)
	}
	return &schedule, nil
}

func (r *mongoScheduleRepository) Replace(ctx context.Context, schedule *model.ProviderSchedule) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	schedule.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": schedule.ProviderID}, schedule)
	if err != nil {
		return fmt.Errorf("failed to replace schedule: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoScheduleRepository) Delete(ctx context.Context, providerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": providerID})
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
