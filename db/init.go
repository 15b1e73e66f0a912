package db

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitializeDatabase sets up the database and ensures collections are ready for use.
func InitializeDatabase(db *Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Create unique indexes
	if err := createUniqueIndexes(db, ctx); err != nil {
		return err
	}

	return nil
}

// createUniqueIndexes creates all required unique indexes for collections
func createUniqueIndexes(db *Database, ctx context.Context) error {
	// User collection indexes
	userColl := db.Database.Collection("users")
	_, err := userColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Printf("Error creating user indexes: %v\n", err)
		return err
	}

	// Category collection indexes
	categoryColl := db.Database.Collection("categories")
	_, err = categoryColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		log.Printf("Error creating category indexes: %v\n", err)
		return err
	}

	// Item collection indexes
	itemColl := db.Database.Collection("items")
	_, err = itemColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys: bson.D{
				{Key: "isActive", Value: 1},
				{Key: "categoryId", Value: 1},
				{Key: "pricePerDay", Value: 1},
			},
			Options: options.Index(),
		},
	})
	if err != nil {
		log.Printf("Error creating item indexes: %v\n", err)
		return err
	}

	// Review collection indexes. The unique (bookingId, direction) pair is
	// what makes duplicate review submission impossible under concurrency.
	reviewColl := db.Database.Collection("reviews")
	_, err = reviewColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "bookingId", Value: 1},
				{Key: "direction", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "reviewedUserId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index(),
		},
	})
	if err != nil {
		log.Printf("Error creating review indexes: %v\n", err)
		return err
	}

	// Conversation collection indexes. MongoDB unique indexes treat a missing
	// field as a single null value, so one compound index covers both the
	// per-booking conversations and the single general (bookingless) one.
	conversationColl := db.Database.Collection("conversations")
	_, err = conversationColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "participant1", Value: 1},
				{Key: "participant2", Value: 1},
				{Key: "bookingId", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "participant1", Value: 1}, {Key: "updatedAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "participant2", Value: 1}, {Key: "updatedAt", Value: -1}},
			Options: options.Index(),
		},
	})
	if err != nil {
		log.Printf("Error creating conversation indexes: %v\n", err)
		return err
	}

	// Message collection indexes
	messageColl := db.Database.Collection("messages")
	_, err = messageColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "conversationId", Value: 1},
				{Key: "createdAt", Value: 1},
			},
			Options: options.Index(),
		},
		{
			Keys: bson.D{
				{Key: "conversationId", Value: 1},
				{Key: "isRead", Value: 1},
				{Key: "senderId", Value: 1},
			},
			Options: options.Index(),
		},
	})
	if err != nil {
		log.Printf("Error creating message indexes: %v\n", err)
		return err
	}

	log.Println("All indexes created successfully")
	return nil
}
