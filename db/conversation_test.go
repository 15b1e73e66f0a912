package db

import (
	"context"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestConversationUniqueness(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	aliceID := insertTestUser(t, database, "alice")
	bobID := insertTestUser(t, database, "bob")

	_, err := database.ConversationService.Open(ctx, aliceID, aliceID, nil)
	c.Assert(err, qt.Equals, ErrSelfConversation)

	// Opening from either side yields the same conversation.
	first, err := database.ConversationService.Open(ctx, aliceID, bobID, nil)
	c.Assert(err, qt.IsNil)
	second, err := database.ConversationService.Open(ctx, bobID, aliceID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(second.ID, qt.Equals, first.ID)

	// A booking-scoped conversation is distinct from the general one.
	itemID := insertTestItem(t, database, aliceID, "25.00")
	booking, err := database.BookingService.Create(ctx, bobID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 2, 1),
		EndDate:   testDate(2026, 2, 3),
	})
	c.Assert(err, qt.IsNil)

	scoped, err := database.ConversationService.Open(ctx, bobID, aliceID, &booking.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(scoped.ID, qt.Not(qt.Equals), first.ID)
	again, err := database.ConversationService.Open(ctx, aliceID, bobID, &booking.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(again.ID, qt.Equals, scoped.ID)

	// Booking-scoped conversations are only for the booking's two parties.
	carolID := insertTestUser(t, database, "carol")
	_, err = database.ConversationService.Open(ctx, carolID, aliceID, &booking.ID)
	c.Assert(err, qt.Equals, ErrNotBookingParticipant)

	unknown := primitive.NewObjectID()
	_, err = database.ConversationService.Open(ctx, aliceID, bobID, &unknown)
	c.Assert(err, qt.Equals, ErrBookingNotFound)
}

func TestConversationOpenRace(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	aliceID := insertTestUser(t, database, "alice")
	bobID := insertTestUser(t, database, "bob")

	const openers = 8
	var wg sync.WaitGroup
	ids := make([]primitive.ObjectID, openers)
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			actor, other := aliceID, bobID
			if idx%2 == 1 {
				actor, other = bobID, aliceID
			}
			conversation, err := database.ConversationService.Open(ctx, actor, other, nil)
			if err != nil {
				return
			}
			ids[idx] = conversation.ID
		}(i)
	}
	wg.Wait()

	// All goroutines converge on a single conversation.
	for i := 1; i < openers; i++ {
		c.Assert(ids[i], qt.Equals, ids[0])
	}
}

func TestMessagesAndMarkRead(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	aliceID := insertTestUser(t, database, "alice")
	bobID := insertTestUser(t, database, "bob")
	carolID := insertTestUser(t, database, "carol")

	conversation, err := database.ConversationService.Open(ctx, aliceID, bobID, nil)
	c.Assert(err, qt.IsNil)

	_, err = database.ConversationService.SendMessage(ctx, conversation.ID, aliceID, "   ")
	c.Assert(err, qt.Equals, ErrEmptyMessage)
	_, err = database.ConversationService.SendMessage(ctx, conversation.ID, carolID, "let me in")
	c.Assert(err, qt.Equals, ErrNotAuthorized)

	_, err = database.ConversationService.SendMessage(ctx, conversation.ID, aliceID, "is the drill available?")
	c.Assert(err, qt.IsNil)
	clock.Advance(1)
	_, err = database.ConversationService.SendMessage(ctx, conversation.ID, aliceID, "next weekend, ideally")
	c.Assert(err, qt.IsNil)
	clock.Advance(1)
	_, err = database.ConversationService.SendMessage(ctx, conversation.ID, bobID, "yes, both days")
	c.Assert(err, qt.IsNil)

	messages, total, err := database.ConversationService.GetMessages(ctx, conversation.ID, aliceID, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, int64(3))
	c.Assert(messages[0].Content, qt.Equals, "is the drill available?")
	c.Assert(messages[2].SenderID, qt.Equals, bobID)

	_, _, err = database.ConversationService.GetMessages(ctx, conversation.ID, carolID, 0)
	c.Assert(err, qt.Equals, ErrNotAuthorized)

	// Bob reads Alice's two messages; his own is untouched.
	marked, err := database.ConversationService.MarkRead(ctx, conversation.ID, bobID)
	c.Assert(err, qt.IsNil)
	c.Assert(marked, qt.Equals, int64(2))

	// Marking again is a no-op.
	marked, err = database.ConversationService.MarkRead(ctx, conversation.ID, bobID)
	c.Assert(err, qt.IsNil)
	c.Assert(marked, qt.Equals, int64(0))

	conversations, total, err := database.ConversationService.GetUserConversations(ctx, aliceID, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, int64(1))
	c.Assert(conversations[0].ID, qt.Equals, conversation.ID)
}
