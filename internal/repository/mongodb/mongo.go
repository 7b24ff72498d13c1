// Package mongodb implements repository.Store on a MongoDB collection.
//
// Documents use the field names of model.User's bson tags. The unique index
// on email is created at startup; secret fields are removed by a projection
// on every default read.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/model"
	"github.com/sakif/readme-studio/internal/repository"
)

const usersCollection = "users"

// hiddenFields is excluded from every read that does not ask for secrets.
var hiddenFields = bson.D{{Key: "password", Value: 0}, {Key: "githubToken", Value: 0}}

// Store implements repository.Store on MongoDB.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
}

var _ repository.Store = (*Store)(nil)

// New connects to uri, pings the primary and makes sure the email index exists.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging primary: %w", err)
	}

	s := &Store{client: client, users: client.Database(database).Collection(usersCollection)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("mongo: creating email index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Create inserts a user document.
func (s *Store) Create(ctx context.Context, user *model.User) error {
	// BSON dates carry millisecond precision; truncate so the caller's copy
	// matches what a later read returns.
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("email", user.Email)
		}
		return fmt.Errorf("mongo: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string, opts ...repository.ReadOption) (*model.User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}}, email, repository.ApplyReadOptions(opts))
}

func (s *Store) GetByID(ctx context.Context, id string, opts ...repository.ReadOption) (*model.User, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}}, id, repository.ApplyReadOptions(opts))
}

// UpdateGitHubToken overwrites the stored GitHub token.
func (s *Store) UpdateGitHubToken(ctx context.Context, id, token string) error {
	res, err := s.users.UpdateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "githubToken", Value: token},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
	if err != nil {
		return fmt.Errorf("mongo: updating github token for user %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.D, key string, o repository.ReadOptions) (*model.User, error) {
	findOpts := options.FindOne()
	if !o.IncludeSecrets {
		findOpts.SetProjection(hiddenFields)
	}

	var u model.User
	if err := s.users.FindOne(ctx, filter, findOpts).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("mongo: finding user %s: %w", key, err)
	}
	return &u, nil
}
