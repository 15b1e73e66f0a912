package db

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserEmailUniqueness(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	_, err := database.UserService.InsertUser(ctx, &User{
		Email: "alice@test.com", Name: "Alice", Password: []byte("x"), Active: true,
	})
	c.Assert(err, qt.IsNil)

	_, err = database.UserService.InsertUser(ctx, &User{
		Email: "alice@test.com", Name: "Other Alice", Password: []byte("y"), Active: true,
	})
	c.Assert(err, qt.Equals, ErrEmailTaken)
}

func TestUserSparseUpdate(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	userID := insertTestUser(t, database, "alice")

	_, err := database.UserService.UpdateUser(ctx, userID, bson.M{"bio": "tool collector"})
	c.Assert(err, qt.IsNil)

	user, err := database.UserService.GetUserByID(ctx, userID)
	c.Assert(err, qt.IsNil)
	c.Assert(user.Bio, qt.Equals, "tool collector")
	// Untouched fields survive the sparse update.
	c.Assert(user.Name, qt.Equals, "alice")
	c.Assert(user.Email, qt.Equals, "alice@test.com")

	_, err = database.UserService.UpdateUser(ctx, primitive.NewObjectID(), bson.M{"bio": "ghost"})
	c.Assert(err, qt.Equals, ErrUserNotFound)
}
