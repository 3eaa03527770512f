package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"launchpad/internal/model"
)

// FlushJournalRepo keeps autosave batches the backend rejected
type FlushJournalRepo interface {
	Create(ctx context.Context, failure *model.FlushFailure) error
	ListUnreplayed(ctx context.Context, projectID string) ([]*model.FlushFailure, error)
	MarkReplayed(ctx context.Context, id string) error
}

type flushJournalRepo struct {
	collection *mongo.Collection
}

func NewFlushJournalRepo(db *mongo.Database) FlushJournalRepo {
	return &flushJournalRepo{
		collection: db.Collection("flush_failures"),
	}
}

func (r *flushJournalRepo) Create(ctx context.Context, failure *model.FlushFailure) error {
	if failure.FailedAt.IsZero() {
		failure.FailedAt = time.Now()
	}

	result, err := r.collection.InsertOne(ctx, failure)
	if err != nil {
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		failure.ID = oid.Hex()
	}
	return nil
}

// ListUnreplayed returns failures not yet replayed, oldest first
func (r *flushJournalRepo) ListUnreplayed(ctx context.Context, projectID string) ([]*model.FlushFailure, error) {
	filter := bson.M{
		"projectId":  projectID,
		"replayedAt": bson.M{"$exists": false},
	}
	opts := options.Find().SetSort(bson.D{{Key: "failedAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var failures []*model.FlushFailure
	if err := cursor.All(ctx, &failures); err != nil {
		return nil, err
	}
	return failures, nil
}

func (r *flushJournalRepo) MarkReplayed(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"replayedAt": time.Now()}},
	)
	return err
}
