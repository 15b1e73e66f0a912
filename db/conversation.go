package db

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Conversation represents the schema for the "conversations" collection.
// Participants are stored in canonical order (participant1 < participant2 by
// hex id), so the unique (participant1, participant2, bookingId) index makes
// a pair-plus-booking conversation exist at most once. BookingID is nil for
// the single general conversation of a pair.
type Conversation struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	Participant1 primitive.ObjectID  `bson:"participant1" json:"participant1"`
	Participant2 primitive.ObjectID  `bson:"participant2" json:"participant2"`
	BookingID    *primitive.ObjectID `bson:"bookingId,omitempty" json:"bookingId,omitempty"`
	CreatedAt    time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Message represents a message inside a conversation.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ConversationID primitive.ObjectID `bson:"conversationId" json:"conversationId"`
	SenderID       primitive.ObjectID `bson:"senderId" json:"senderId"`
	Content        string             `bson:"content" json:"content"`
	IsRead         bool               `bson:"isRead" json:"isRead"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}

// ConversationService provides methods to interact with the "conversations"
// and "messages" collections.
type ConversationService struct {
	Collection         *mongo.Collection
	MessagesCollection *mongo.Collection
	BookingsCollection *mongo.Collection
	database           *Database
	clock              TimeProvider
}

// NewConversationService creates a new ConversationService.
func NewConversationService(db *Database) *ConversationService {
	return &ConversationService{
		Collection:         db.Database.Collection("conversations"),
		MessagesCollection: db.Database.Collection("messages"),
		BookingsCollection: db.Database.Collection("bookings"),
		database:           db,
		clock:              db.clock,
	}
}

// normalizeParticipants orders a user pair canonically by hex identifier.
func normalizeParticipants(a, b primitive.ObjectID) (primitive.ObjectID, primitive.ObjectID) {
	if strings.Compare(a.Hex(), b.Hex()) > 0 {
		return b, a
	}
	return a, b
}

// Open returns the conversation between actor and other, creating it when it
// does not exist yet. When bookingID is given, the actor must be a
// participant of that booking and other must be the counterparty. Two
// concurrent opens race on the unique index; the loser re-reads the winner.
func (s *ConversationService) Open(
	ctx context.Context,
	actorID, otherID primitive.ObjectID,
	bookingID *primitive.ObjectID,
) (*Conversation, error) {
	if actorID == otherID {
		return nil, ErrSelfConversation
	}
	if bookingID != nil {
		var booking Booking
		if err := s.BookingsCollection.FindOne(ctx, bson.M{"_id": *bookingID}).Decode(&booking); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, ErrBookingNotFound
			}
			return nil, err
		}
		participants := map[primitive.ObjectID]bool{booking.RenterID: true, booking.OwnerID: true}
		if !participants[actorID] || !participants[otherID] {
			return nil, ErrNotBookingParticipant
		}
	}

	p1, p2 := normalizeParticipants(actorID, otherID)
	filter := bson.M{"participant1": p1, "participant2": p2}
	if bookingID != nil {
		filter["bookingId"] = *bookingID
	} else {
		// nil matches both a missing field and an explicit null.
		filter["bookingId"] = nil
	}

	var conversation Conversation
	err := s.Collection.FindOne(ctx, filter).Decode(&conversation)
	if err == nil {
		return &conversation, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	now := s.clock.Now()
	conversation = Conversation{
		Participant1: p1,
		Participant2: p2,
		BookingID:    bookingID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	result, err := s.Collection.InsertOne(ctx, &conversation)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost the race; return the winner.
			if err := s.Collection.FindOne(ctx, filter).Decode(&conversation); err != nil {
				return nil, err
			}
			return &conversation, nil
		}
		return nil, err
	}
	conversation.ID = result.InsertedID.(primitive.ObjectID)
	return &conversation, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, id primitive.ObjectID) (*Conversation, error) {
	var conversation Conversation
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation)
	if err == mongo.ErrNoDocuments {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// isParticipant reports whether the user belongs to the conversation.
func (c *Conversation) isParticipant(userID primitive.ObjectID) bool {
	return c.Participant1 == userID || c.Participant2 == userID
}

// SendMessage appends a message to a conversation and bumps the
// conversation's updatedAt in the same transaction. Messages start unread.
func (s *ConversationService) SendMessage(
	ctx context.Context,
	conversationID, senderID primitive.ObjectID,
	content string,
) (*Message, error) {
	if len(strings.TrimSpace(content)) == 0 {
		return nil, ErrEmptyMessage
	}

	var message *Message
	err := s.database.WithTransaction(ctx, func(sc mongo.SessionContext) error {
		conversation, err := s.Get(sc, conversationID)
		if err != nil {
			return err
		}
		if !conversation.isParticipant(senderID) {
			return ErrNotAuthorized
		}

		now := s.clock.Now()
		m := &Message{
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			IsRead:         false,
			CreatedAt:      now,
		}
		result, err := s.MessagesCollection.InsertOne(sc, m)
		if err != nil {
			return err
		}
		m.ID = result.InsertedID.(primitive.ObjectID)
		message = m

		_, err = s.Collection.UpdateOne(sc,
			bson.M{"_id": conversationID},
			bson.M{"$set": bson.M{"updatedAt": now}},
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// GetMessages retrieves the messages of a conversation in stable
// chronological order. Returns messages and total count for pagination.
func (s *ConversationService) GetMessages(
	ctx context.Context,
	conversationID, userID primitive.ObjectID,
	page int,
) ([]*Message, int64, error) {
	conversation, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if !conversation.isParticipant(userID) {
		return nil, 0, ErrNotAuthorized
	}

	if page < 0 {
		page = 0
	}
	skip := page * DefaultPageSize

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"conversationId": conversationID}}},
		// _id breaks ties between messages created in the same instant.
		bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$facet", Value: bson.D{
			{Key: "data", Value: bson.A{
				bson.D{{Key: "$skip", Value: int64(skip)}},
				bson.D{{Key: "$limit", Value: int64(DefaultPageSize)}},
			}},
			{Key: "count", Value: bson.A{
				bson.D{{Key: "$count", Value: "total"}},
			}},
		}}},
	}

	cursor, err := s.MessagesCollection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing cursor")
		}
	}()

	var result []struct {
		Data  []*Message `bson:"data"`
		Count []struct {
			Total int64 `bson:"total"`
		} `bson:"count"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, err
	}

	var messages []*Message
	var total int64
	if len(result) > 0 {
		messages = result[0].Data
		if len(result[0].Count) > 0 {
			total = result[0].Count[0].Total
		}
	}
	return messages, total, nil
}

// MarkRead marks all messages not sent by the reader as read and returns
// how many were affected. Marking twice is a no-op.
func (s *ConversationService) MarkRead(
	ctx context.Context,
	conversationID, readerID primitive.ObjectID,
) (int64, error) {
	conversation, err := s.Get(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conversation.isParticipant(readerID) {
		return 0, ErrNotAuthorized
	}

	result, err := s.MessagesCollection.UpdateMany(ctx,
		bson.M{
			"conversationId": conversationID,
			"senderId":       bson.M{"$ne": readerID},
			"isRead":         false,
		},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// GetUserConversations retrieves a user's conversations, most recently
// active first. Returns conversations and total count for pagination.
func (s *ConversationService) GetUserConversations(
	ctx context.Context,
	userID primitive.ObjectID,
	page int,
) ([]*Conversation, int64, error) {
	if page < 0 {
		page = 0
	}
	skip := page * DefaultPageSize

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"$or": []bson.M{
			{"participant1": userID},
			{"participant2": userID},
		}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$facet", Value: bson.D{
			{Key: "data", Value: bson.A{
				bson.D{{Key: "$skip", Value: int64(skip)}},
				bson.D{{Key: "$limit", Value: int64(DefaultPageSize)}},
			}},
			{Key: "count", Value: bson.A{
				bson.D{{Key: "$count", Value: "total"}},
			}},
		}}},
	}

	cursor, err := s.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing cursor")
		}
	}()

	var result []struct {
		Data  []*Conversation `bson:"data"`
		Count []struct {
			Total int64 `bson:"total"`
		} `bson:"count"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, err
	}

	var conversations []*Conversation
	var total int64
	if len(result) > 0 {
		conversations = result[0].Data
		if len(result[0].Count) > 0 {
			total = result[0].Count[0].Total
		}
	}
	return conversations, total, nil
}
