package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserva/pkg/config"
	"reserva/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Waitlist"

var (
	ErrDuplicate = errors.New("client is already on the waitlist for this slot")
	ErrNotFound  = errors.New("waitlist entry not found")
)

// Store persists waitlist entries. Ordering is by requested_at; FIFO position
// is never rewritten after insert.
type Store interface {
	EnsureIndexes(ctx context.Context) error
	Insert(ctx context.Context, entry *model.WaitlistEntry) error
	Find(ctx context.Context, slotID, clientID string) (*model.WaitlistEntry, error)
	// First returns the earliest entry for the slot.
	First(ctx context.Context, slotID string) (*model.WaitlistEntry, error)
	ListBySlot(ctx context.Context, slotID string) ([]*model.WaitlistEntry, error)
	// SetOffer stamps a claim deadline on an entry that has none yet.
	SetOffer(ctx context.Context, id string, expiresAt time.Time) (*model.WaitlistEntry, error)
	Delete(ctx context.Context, slotID, clientID string) (bool, error)
	// DeleteExpiredOffer removes the entry only if its offer deadline has
	// passed at now.
	DeleteExpiredOffer(ctx context.Context, id string, now time.Time) (*model.WaitlistEntry, error)
	FindExpiredOffers(ctx context.Context, now time.Time, limit int) ([]*model.WaitlistEntry, error)
}

type mongoWaitlistStore struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoStore(cfg *config.Config) Store {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoWaitlistStore{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (s *mongoWaitlistStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "slot_id", Value: 1},
				{Key: "client_id", Value: 1},
			},
			Options: options.Index().SetName("unique_slot_client").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "slot_id", Value: 1},
				{Key: "requested_at", Value: 1},
			},
			Options: options.Index().SetName("slot_fifo"),
		},
		{
			Keys:    bson.D{{Key: "offer_expires_at", Value: 1}},
			Options: options.Index().SetName("offer_expiry").SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create waitlist indexes: %w", err)
	}
	return nil
}

func (s *mongoWaitlistStore) Insert(ctx context.Context, entry *model.WaitlistEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.RequestedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.collection.InsertOne(ctx, entry)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}
	return nil
}

func (s *mongoWaitlistStore) Find(ctx context.Context, slotID, clientID string) (*model.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var entry model.WaitlistEntry
	err := s.collection.FindOne(ctx, bson.M{"slot_id": slotID, "client_id": clientID}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find waitlist entry: %w", err)
	}
	return &entry, nil
}

func (s *mongoWaitlistStore) First(ctx context.Context, slotID string) (*model.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "requested_at", Value: 1}})

	var entry model.WaitlistEntry
	err := s.collection.FindOne(ctx, bson.M{"slot_id": slotID}, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find first waitlist entry: %w", err)
	}
	return &entry, nil
}

func (s *mongoWaitlistStore) ListBySlot(ctx context.Context, slotID string) ([]*model.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"slot_id": slotID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.WaitlistEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode waitlist entries: %w", err)
	}
	return entries, nil
}

func (s *mongoWaitlistStore) SetOffer(ctx context.Context, id string, expiresAt time.Time) (*model.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "offer_expires_at": nil}
	update := bson.M{"$set": bson.M{"offer_expires_at": expiresAt}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var entry model.WaitlistEntry
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to set waitlist offer: %w", err)
	}
	return &entry, nil
}

func (s *mongoWaitlistStore) Delete(ctx context.Context, slotID, clientID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"slot_id": slotID, "client_id": clientID})
	if err != nil {
		return false, fmt.Errorf("failed to delete waitlist entry: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (s *mongoWaitlistStore) DeleteExpiredOffer(ctx context.Context, id string, now time.Time) (*model.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":              id,
		"offer_expires_at": bson.M{"$ne": nil, "$lte": now},
	}

	var entry model.WaitlistEntry
	err := s.collection.FindOneAndDelete(ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete expired waitlist offer: %w", err)
	}
	return &entry, nil
}

func (s *mongoWaitlistStore) FindExpiredOffers(ctx context.Context, now time.Time, limit int) ([]*model.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"offer_expires_at": bson.M{"$ne": nil, "$lte": now}}
	opts := options.Find().
		SetSort(bson.D{{Key: "offer_expires_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired waitlist offers: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.WaitlistEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode expired waitlist offers: %w", err)
	}
	return entries, nil
}
