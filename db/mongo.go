package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Database struct encapsulates MongoDB client and database.
type Database struct {
	Client              *mongo.Client
	Database            *mongo.Database
	UserService         *UserService
	CategoryService     *CategoryService
	ItemService         *ItemService
	BookingService      *BookingService
	ReviewService       *ReviewService
	ConversationService *ConversationService

	clock TimeProvider
}

// New initializes a new MongoDB connection using the real system clock.
func New(uri string) (*Database, error) {
	return NewWithClock(uri, RealTimeProvider{})
}

// NewWithClock initializes a new MongoDB connection with an injected clock.
// Tests pass a mock provider to control booking expiry.
func NewWithClock(uri string, clock TimeProvider) (*Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// Use a random database name for isolation in tests
	dbName := RandomDatabaseName()
	db := client.Database(dbName)
	database := &Database{
		Client:   client,
		Database: db,
		clock:    clock,
	}
	database.UserService = NewUserService(database)
	database.CategoryService = NewCategoryService(database)
	database.ItemService = NewItemService(database)
	database.BookingService = NewBookingService(database)
	database.ReviewService = NewReviewService(database)
	database.ConversationService = NewConversationService(database)
	return database, nil
}

// Clock returns the time provider the store was built with.
func (db *Database) Clock() TimeProvider {
	return db.clock
}

// Close disconnects the MongoDB client.
func (db *Database) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

// CreateTables initializes all collections and indexes.
func (db *Database) CreateTables() error {
	return InitializeDatabase(db)
}

// WithTransaction runs fn inside a multi-document transaction. The driver
// retries fn on transient errors such as write conflicts, which is what
// serializes concurrent booking writers on the same item.
func (db *Database) WithTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := db.Client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
