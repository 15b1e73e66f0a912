package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// mockClock is a controllable TimeProvider for tests that exercise the
// approval window.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(start time.Time) *mockClock {
	return &mockClock{now: start}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// startTestDB spins up a disposable MongoDB replica set container and
// returns a connected database using the given clock.
func startTestDB(t *testing.T, clock TimeProvider) *Database {
	ctx := context.Background()

	container, err := StartMongoContainer(ctx)
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to start MongoDB container"))
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	qt.Assert(t, err, qt.IsNil)

	database, err := NewWithClock(uri, clock)
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close(ctx) })

	err = database.CreateTables()
	qt.Assert(t, err, qt.IsNil)
	return database
}

func insertTestUser(t *testing.T, database *Database, name string) primitive.ObjectID {
	t.Helper()
	user := &User{
		Email:    fmt.Sprintf("%s@test.com", name),
		Name:     name,
		Password: []byte("hashed"),
		Active:   true,
	}
	result, err := database.UserService.InsertUser(context.Background(), user)
	qt.Assert(t, err, qt.IsNil)
	return result.InsertedID.(primitive.ObjectID)
}

func insertTestItem(t *testing.T, database *Database, ownerID primitive.ObjectID, pricePerDay string) primitive.ObjectID {
	t.Helper()
	price, err := MoneyFromString(pricePerDay)
	qt.Assert(t, err, qt.IsNil)
	item, err := database.ItemService.InsertItem(context.Background(), &Item{
		OwnerID:     ownerID,
		Title:       "cordless drill",
		Condition:   ItemConditionGood,
		PricePerDay: price,
		IsActive:    true,
	})
	qt.Assert(t, err, qt.IsNil)
	return item.ID
}

func testDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
