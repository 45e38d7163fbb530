package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
)

const rateLimitsCollection = "rate_limits"

type rateLimitDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Identifier   string        `bson:"identifier"`
	Endpoint     string        `bson:"endpoint"`
	RequestCount int           `bson:"requestCount"`
	WindowStart  time.Time     `bson:"windowStart"`
	LastRequest  time.Time     `bson:"lastRequest"`
}

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(rateLimitsCollection)}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "identifier", Value: 1}, {Key: "endpoint", Value: 1}, {Key: "windowStart", Value: -1}}},
		{Keys: bson.D{{Key: "endpoint", Value: 1}, {Key: "lastRequest", Value: 1}}},
	})
	return err
}

func (s *MongoStore) FindActive(ctx context.Context, identifier, endpoint string, since time.Time) (*models.RateLimitEntry, error) {
	filter := bson.D{
		{Key: "identifier", Value: identifier},
		{Key: "endpoint", Value: endpoint},
		{Key: "windowStart", Value: bson.D{{Key: "$gte", Value: since}}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "windowStart", Value: -1}})

	var doc rateLimitDocument
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &models.RateLimitEntry{
		Identifier:   doc.Identifier,
		Endpoint:     doc.Endpoint,
		RequestCount: doc.RequestCount,
		WindowStart:  doc.WindowStart,
		LastRequest:  doc.LastRequest,
	}, nil
}

func (s *MongoStore) Create(ctx context.Context, e *models.RateLimitEntry) error {
	_, err := s.coll.InsertOne(ctx, rateLimitDocument{
		Identifier:   e.Identifier,
		Endpoint:     e.Endpoint,
		RequestCount: e.RequestCount,
		WindowStart:  e.WindowStart,
		LastRequest:  e.LastRequest,
	})
	return err
}

func (s *MongoStore) Increment(ctx context.Context, e *models.RateLimitEntry, at time.Time, max int) (bool, error) {
	filter := bson.D{
		{Key: "identifier", Value: e.Identifier},
		{Key: "endpoint", Value: e.Endpoint},
		{Key: "windowStart", Value: e.WindowStart},
		{Key: "requestCount", Value: bson.D{{Key: "$lt", Value: max}}},
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "requestCount", Value: 1}}},
		{Key: "$set", Value: bson.D{{Key: "lastRequest", Value: at}}},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) Purge(ctx context.Context, endpoint string, before time.Time) error {
	_, err := s.coll.DeleteMany(ctx, bson.D{
		{Key: "endpoint", Value: endpoint},
		{Key: "lastRequest", Value: bson.D{{Key: "$lt", Value: before}}},
	})
	return err
}

func (s *MongoStore) Reset(ctx context.Context, identifier, endpoint string) error {
	_, err := s.coll.DeleteMany(ctx, bson.D{
		{Key: "identifier", Value: identifier},
		{Key: "endpoint", Value: endpoint},
	})
	return err
}
