package holds

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

const CollectionName = "Holds"

var (
	ErrDuplicate = errors.New("hold already exists for slot")
	ErrNotFound  = errors.New("hold not found")
)

// Store persists holds keyed by slot so the unique index on _id adjudicates
// every acquisition race inside the store.
type Store interface {
	Insert(ctx context.Context, hold *model.Hold) error
	Find(ctx context.Context, slotID string) (*model.Hold, error)
	// Delete removes the hold only if it is owned by sessionID. Returns false
	// when no such hold matched.
	Delete(ctx context.Context, slotID, sessionID string) (bool, error)
	// DeleteExpired removes the hold only if its TTL has elapsed at now.
	DeleteExpired(ctx context.Context, slotID string, now time.Time) (bool, error)
	// Extend pushes out the expiry of a live hold owned by sessionID and bumps
	// its version. Returns ErrNotFound when the hold is absent, expired, or
	// owned by someone else.
	Extend(ctx context.Context, slotID, sessionID string, expiresAt, now time.Time) (*model.Hold, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error)
}

type mongoHoldStore struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoStore(cfg *config.Config) Store {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoHoldStore{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// withTimeout wraps the context with a timeout unless it is already a
// transaction session context, which must not be re-wrapped.
func (s *mongoHoldStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *mongoHoldStore) Insert(ctx context.Context, hold *model.Hold) error {
	ctx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	hold.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	_, err := s.collection.InsertOne(ctx, hold)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert hold: %w", err)
	}
	return nil
}

func (s *mongoHoldStore) Find(ctx context.Context, slotID string) (*model.Hold, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var hold model.Hold
	err := s.collection.FindOne(ctx, bson.M{"_id": slotID}).Decode(&hold)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find hold: %w", err)
	}
	return &hold, nil
}

func (s *mongoHoldStore) Delete(ctx context.Context, slotID, sessionID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":        slotID,
		"session_id": sessionID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete hold: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (s *mongoHoldStore) DeleteExpired(ctx context.Context, slotID string, now time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":        slotID,
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete expired hold: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (s *mongoHoldStore) Extend(ctx context.Context, slotID, sessionID string, expiresAt, now time.Time) (*model.Hold, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":        slotID,
		"session_id": sessionID,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{"expires_at": expiresAt},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var hold model.Hold
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&hold)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to extend hold: %w", err)
	}
	return &hold, nil
}

func (s *mongoHoldStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Hold, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"expires_at": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holds: %w", err)
	}
	defer cursor.Close(ctx)

	var holds []*model.Hold
	if err = cursor.All(ctx, &holds); err != nil {
		return nil, fmt.Errorf("failed to decode expired holds: %w", err)
	}
	return holds, nil
}
