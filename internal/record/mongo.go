package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// CollectionPromptRecords is the collection MongoRepository writes to.
const CollectionPromptRecords = "prompt_records"

// DefaultMongoDatabase is used when no database name is configured.
const DefaultMongoDatabase = "promptwatch"

// MongoRepository stores records as documents in MongoDB.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoRepository connects to uri, verifies the connection and makes
// sure the session index exists.
func NewMongoRepository(ctx context.Context, uri, database string) (*MongoRepository, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	repo := &MongoRepository{
		client:     client,
		collection: client.Database(database).Collection(CollectionPromptRecords),
	}
	if err := repo.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (m *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "project_name", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create prompt record indexes: %w", err)
	}
	return nil
}

func (m *MongoRepository) Add(ctx context.Context, r *PromptRecord) (*PromptRecord, error) {
	rec := prepare(r, time.Now())
	// BSON dates carry millisecond precision.
	rec.Timestamp = rec.Timestamp.Truncate(time.Millisecond)
	if _, err := m.collection.InsertOne(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert prompt record: %w", err)
	}
	return rec, nil
}

func (m *MongoRepository) Get(ctx context.Context, id string) (*PromptRecord, error) {
	var rec PromptRecord
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load prompt record: %w", err)
	}
	return &rec, nil
}

func (m *MongoRepository) FindBySession(ctx context.Context, sessionID string) ([]*PromptRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	return m.find(ctx, bson.M{"session_id": sessionID}, opts)
}

func (m *MongoRepository) List(ctx context.Context, lo ListOptions) ([]*PromptRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(lo.Offset))
	if lo.Limit > 0 {
		opts.SetLimit(int64(lo.Limit))
	}
	return m.find(ctx, listFilter(lo), opts)
}

// listFilter selects the documents List returns.
func listFilter(lo ListOptions) bson.M {
	filter := bson.M{}
	if lo.ProjectName != "" {
		filter["project_name"] = lo.ProjectName
	}
	if lo.SessionID != "" {
		filter["session_id"] = lo.SessionID
	}
	return filter
}

func (m *MongoRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*PromptRecord, error) {
	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query prompt records: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*PromptRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode prompt records: %w", err)
	}
	return out, nil
}

// Close disconnects the client.
func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
