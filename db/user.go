package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// User represents the schema for the "users" collection.
// RatingAverage and ReviewCount are denormalized aggregates over the
// "reviews" collection, recomputed by ReviewService inside the same
// transaction that inserts a review.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email         string             `bson:"email" json:"email"`
	Name          string             `bson:"name" json:"name"`
	Password      []byte             `bson:"password" json:"-"` // Don't include password in JSON
	FirstName     string             `bson:"firstName,omitempty" json:"firstName,omitempty"`
	LastName      string             `bson:"lastName,omitempty" json:"lastName,omitempty"`
	Phone         string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Bio           string             `bson:"bio,omitempty" json:"bio,omitempty"`
	Location      string             `bson:"location,omitempty" json:"location,omitempty"`
	Avatar        string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Active        bool               `bson:"active" json:"active" default:"true"`
	RatingAverage *Money             `bson:"ratingAverage,omitempty" json:"ratingAverage,omitempty"`
	ReviewCount   int                `bson:"reviewCount" json:"reviewCount" default:"0"`
	CreatedAt     time.Time          `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt     time.Time          `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Validate checks if the user data meets the required constraints
func (u *User) Validate() error {
	if len(u.Name) < 2 || len(u.Name) > 50 {
		return fmt.Errorf("name length must be between 2 and 50 characters")
	}
	if !strings.Contains(u.Email, "@") || len(u.Email) > 254 {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// UserService provides methods to interact with the "users" collection.
type UserService struct {
	Collection *mongo.Collection
	clock      TimeProvider
}

// NewUserService creates a new UserService.
func NewUserService(db *Database) *UserService {
	return &UserService{
		Collection: db.Database.Collection("users"),
		clock:      db.clock,
	}
}

// InsertUser inserts a new User document. A duplicate email maps to
// ErrEmailTaken via the unique index.
func (s *UserService) InsertUser(ctx context.Context, user *User) (*mongo.InsertOneResult, error) {
	now := s.clock.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	result, err := s.Collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrEmailTaken
	}
	return result, err
}

// GetUserByEmail retrieves a User by their email address.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	filter := bson.M{"email": email}
	err := s.Collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a User by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	var user User
	filter := bson.M{"_id": id}
	err := s.Collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser updates a User document by their ID. The update document holds
// only the fields being set; callers are responsible for whitelisting keys.
func (s *UserService) UpdateUser(ctx context.Context, id primitive.ObjectID, update bson.M) (*mongo.UpdateResult, error) {
	update["updatedAt"] = s.clock.Now()
	filter := bson.M{"_id": id}
	result, err := s.Collection.UpdateOne(ctx, filter, bson.M{"$set": update})
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, ErrUserNotFound
	}
	return result, nil
}

// CountUsers returns the total number of users.
func (s *UserService) CountUsers(ctx context.Context) (int64, error) {
	return s.Collection.CountDocuments(ctx, bson.M{})
}
