// Package store holds the persisted record of direct messages. Messages are
// insert-only: there is no update or delete.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"studo/models"
)

// MessageStore is the seam between the message handlers and the backing
// collection. ListBetween returns every message exchanged between the two
// parties, in whatever order the storage scan yields.
type MessageStore interface {
	Insert(ctx context.Context, msg *models.Message) error
	ListBetween(ctx context.Context, partyA, partyB string) ([]models.Message, error)
}

// Mongo stores messages in a MongoDB collection.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(coll *mongo.Collection) *Mongo {
	return &Mongo{coll: coll}
}

func (s *Mongo) Insert(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	_, err := s.coll.InsertOne(ctx, msg)
	return err
}

func (s *Mongo) ListBetween(ctx context.Context, partyA, partyB string) ([]models.Message, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender": partyA, "receiver": partyB},
			bson.M{"sender": partyB, "receiver": partyA},
		},
	}

	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
