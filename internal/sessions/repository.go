package sessions

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Rotation carries the replacement values applied by RotateSecret.
type Rotation struct {
	NewSecret    string
	NewExpiresAt time.Time
	NewVersion   int
}

// Repository provides session persistence operations
type Repository interface {
	GetByID(ctx context.Context, id string) (*Session, error)
	GetByRefreshSecret(ctx context.Context, secret string) (*Session, error)
	Create(ctx context.Context, s *Session) error
	// RotateSecret conditionally replaces secret, expiry and version of the
	// session identified by id, but only while its stored secret still equals
	// prevSecret. Returns ErrRefreshConflict otherwise.
	RotateSecret(ctx context.Context, id, prevSecret string, rot Rotation) error
}

// MongoRepository implements Repository using a Mongo collection
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("session lookup by id: %w", err)
	}
	return &s, nil
}

func (r *MongoRepository) GetByRefreshSecret(ctx context.Context, secret string) (*Session, error) {
	var s Session
	if err := r.col.FindOne(ctx, bson.M{"refreshSecret": secret}).Decode(&s); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("session lookup by secret: %w", err)
	}
	return &s, nil
}

func (r *MongoRepository) Create(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, s); err != nil {
		return fmt.Errorf("session insert: %w", err)
	}
	return nil
}

// RotateSecret relies on the single-document atomicity of UpdateOne: the
// filter matches the previous secret, so a concurrent rotation that already
// replaced it leaves nothing to match and the loser sees ErrRefreshConflict.
func (r *MongoRepository) RotateSecret(ctx context.Context, id, prevSecret string, rot Rotation) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "refreshSecret": prevSecret},
		bson.M{"$set": bson.M{
			"refreshSecret":    rot.NewSecret,
			"refreshExpiresAt": rot.NewExpiresAt,
			"tokenVersion":     rot.NewVersion,
		}},
	)
	if err != nil {
		return fmt.Errorf("session rotate: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRefreshConflict
	}
	return nil
}
