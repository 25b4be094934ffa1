package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements a MongoDB-backed repository for documents.
// Documents are keyed by a string UUID in _id. Single-document updates are
// atomic in MongoDB, so no per-document lock is held around UpdateContent.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	return &MongoRepo{col: col}
}

// EnsureIndexes creates the updatedAt index used by List. Safe to call repeatedly.
func (m *MongoRepo) EnsureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "updatedAt", Value: -1}}}
	if _, err := m.col.Indexes().CreateOne(ctx, idx); err != nil {
		return unavailable(err)
	}
	return nil
}

// Mongo stores millisecond precision; truncating keeps returned values equal to stored ones.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", document.ErrStoreUnavailable, err)
}

func (m *MongoRepo) Create(ctx context.Context, title, content string) (*document.Document, error) {
	now := mongoNow()
	d := &document.Document{
		ID:            uuid.NewString(),
		Title:         document.NormalizeTitle(title),
		Content:       content,
		SchemaVersion: document.CurrentSchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := m.col.InsertOne(ctx, d); err != nil {
		return nil, unavailable(err)
	}
	return d, nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &d, nil
}

func (m *MongoRepo) UpdateContent(ctx context.Context, id, content string) (*document.Document, error) {
	update := bson.M{
		"$set": bson.M{"content": content},
		// $max keeps updatedAt non-decreasing even if clocks disagree between processes
		"$max": bson.M{"updatedAt": mongoNow()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document.Document
	if err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &d, nil
}

func (m *MongoRepo) List(ctx context.Context) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (m *MongoRepo) Ping(ctx context.Context) error {
	if err := m.col.Database().Client().Ping(ctx, nil); err != nil {
		return unavailable(err)
	}
	return nil
}
