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

// SubmissionRepo records every submit attempt
type SubmissionRepo interface {
	Create(ctx context.Context, attempt *model.SubmissionAttempt) error
	ListByProject(ctx context.Context, projectID string, limit int64) ([]*model.SubmissionAttempt, error)
	LastSuccessful(ctx context.Context, projectID string) (*model.SubmissionAttempt, error)
}

type submissionRepo struct {
	collection *mongo.Collection
}

// NewSubmissionRepo creates a new submission repository
func NewSubmissionRepo(db *mongo.Database) SubmissionRepo {
	return &submissionRepo{
		collection: db.Collection("submission_attempts"),
	}
}

func (r *submissionRepo) Create(ctx context.Context, attempt *model.SubmissionAttempt) error {
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}

	result, err := r.collection.InsertOne(ctx, attempt)
	if err != nil {
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		attempt.ID = oid.Hex()
	}
	return nil
}

// ListByProject returns the newest attempts first
func (r *submissionRepo) ListByProject(ctx context.Context, projectID string, limit int64) ([]*model.SubmissionAttempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "attemptedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var attempts []*model.SubmissionAttempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *submissionRepo) LastSuccessful(ctx context.Context, projectID string) (*model.SubmissionAttempt, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "attemptedAt", Value: -1}})

	var attempt model.SubmissionAttempt
	err := r.collection.FindOne(ctx, bson.M{"projectId": projectID, "success": true}, opts).Decode(&attempt)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}
