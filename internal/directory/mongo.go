package directory

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"barchat/internal/config"
	"barchat/internal/logging"
	"barchat/internal/models"
)

// barDocument mirrors a venue document in the directory store.
type barDocument struct {
	Name     string `bson:"name"`
	Location struct {
		Lat float64 `bson:"lat"`
		Lng float64 `bson:"lng"`
	} `bson:"location"`
}

// MongoDirectory reads venues from the bar directory's MongoDB.
type MongoDirectory struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoDirectory(ctx context.Context, cfg config.DirectoryConfig) (*MongoDirectory, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.Timeout)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory store: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Timeout)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping directory store: %w", err)
	}

	logging.Info().Str("database", cfg.Database).Str("collection", cfg.Collection).Msg("connected to venue directory")

	return &MongoDirectory{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// FindRoom resolves a room ID to its venue. Room IDs are the directory's
// document IDs; both ObjectID hex and plain string keys are accepted.
func (d *MongoDirectory) FindRoom(ctx context.Context, roomID string) (*models.Venue, error) {
	filter := bson.M{"_id": roomID}
	if oid, err := primitive.ObjectIDFromHex(roomID); err == nil {
		filter = bson.M{"_id": oid}
	}

	var doc barDocument
	if err := d.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("directory lookup failed: %w", err)
	}

	return &models.Venue{
		ID:   roomID,
		Name: doc.Name,
		Lat:  doc.Location.Lat,
		Lng:  doc.Location.Lng,
	}, nil
}

func (d *MongoDirectory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

func (d *MongoDirectory) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
