package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type userDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d userDocument) toDomain() *users.User {
	return &users.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         auth.NormalizeRole(d.Role),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

func (d userDocument) public() users.PublicUser {
	return users.PublicUser{ID: d.ID, Name: d.Name, Email: d.Email, Role: d.Role}
}

type UserRepository struct {
	repo
}

func (r *UserRepository) Create(ctx context.Context, params users.NewUser) (_ *users.User, err error) {
	defer func(start time.Time) { metrics.RecordQuery("users_create", start, err) }(time.Now())
	if _, ok := auth.ParseRole(string(params.Role)); !ok {
		return nil, fmt.Errorf("insert user: invalid role %q", params.Role)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDocument{
		ID:           params.ID,
		Name:         params.Name,
		Email:        strings.ToLower(params.Email),
		PasswordHash: params.PasswordHash,
		Role:         string(params.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (_ *users.User, err error) {
	defer func(start time.Time) { metrics.RecordQuery("users_get_by_email", start, err) }(time.Now())
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (_ *users.User, err error) {
	defer func(start time.Time) { metrics.RecordQuery("users_get_by_id", start, err) }(time.Now())
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*users.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var doc userDocument
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, users.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}
