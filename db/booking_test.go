package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBookingLifecycle(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	ownerID := insertTestUser(t, database, "owner")
	renterID := insertTestUser(t, database, "renter")
	itemID := insertTestItem(t, database, ownerID, "500.00")

	// 8 inclusive days at 500/day hits the 7-day discount tier.
	booking, err := database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 1, 10),
		EndDate:   testDate(2026, 1, 17),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(booking.BookingStatus, qt.Equals, BookingStatusPending)
	c.Assert(booking.TotalDays, qt.Equals, 8)
	c.Assert(booking.BaseTotal.String(), qt.Equals, "4000.00")
	c.Assert(booking.DiscountAmount.String(), qt.Equals, "400.00")
	c.Assert(booking.FinalTotal.String(), qt.Equals, "3600.00")

	// The renter cannot approve their own request.
	_, err = database.BookingService.Transition(ctx, booking.ID, renterID, BookingStatusApproved)
	c.Assert(err, qt.Equals, ErrNotAuthorized)

	// A stranger is not a participant at all.
	strangerID := insertTestUser(t, database, "stranger")
	_, err = database.BookingService.Transition(ctx, booking.ID, strangerID, BookingStatusApproved)
	c.Assert(err, qt.Equals, ErrNotBookingParticipant)

	// Owner walks the booking through the happy path.
	booking, err = database.BookingService.Transition(ctx, booking.ID, ownerID, BookingStatusApproved)
	c.Assert(err, qt.IsNil)
	c.Assert(booking.BookingStatus, qt.Equals, BookingStatusApproved)

	// Skipping PAYMENT_PENDING is not a legal edge.
	_, err = database.BookingService.Transition(ctx, booking.ID, ownerID, BookingStatusCompleted)
	c.Assert(err, qt.Equals, ErrInvalidTransition)

	booking, err = database.BookingService.Transition(ctx, booking.ID, ownerID, BookingStatusPaymentPending)
	c.Assert(err, qt.IsNil)
	booking, err = database.BookingService.Transition(ctx, booking.ID, ownerID, BookingStatusCompleted)
	c.Assert(err, qt.IsNil)
	c.Assert(booking.BookingStatus, qt.Equals, BookingStatusCompleted)

	// Terminal states admit nothing.
	_, err = database.BookingService.Transition(ctx, booking.ID, ownerID, BookingStatusCancelled)
	c.Assert(err, qt.Equals, ErrInvalidTransition)
}

func TestBookingSelfAndInactive(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	ownerID := insertTestUser(t, database, "owner")
	itemID := insertTestItem(t, database, ownerID, "10.00")

	_, err := database.BookingService.Create(ctx, ownerID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 1, 10),
		EndDate:   testDate(2026, 1, 12),
	})
	c.Assert(err, qt.Equals, ErrSelfBooking)

	renterID := insertTestUser(t, database, "renter")

	// Bookings cannot start in the past.
	_, err = database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2025, 12, 20),
		EndDate:   testDate(2025, 12, 25),
	})
	c.Assert(err, qt.Equals, ErrInvalidDateRange)

	// Deactivated items cannot be booked.
	err = database.ItemService.UpdateItem(ctx, itemID, bson.M{"isActive": false})
	c.Assert(err, qt.IsNil)
	_, err = database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 1, 10),
		EndDate:   testDate(2026, 1, 12),
	})
	c.Assert(err, qt.Equals, ErrItemInactive)
}

func TestBookingOverlapConcurrent(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	ownerID := insertTestUser(t, database, "owner")
	itemID := insertTestItem(t, database, ownerID, "25.00")

	const renters = 8
	var wg sync.WaitGroup
	errs := make([]error, renters)
	for i := 0; i < renters; i++ {
		renterID := insertTestUser(t, database, fmt.Sprintf("renter%d", i))
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
				ItemID:    itemID,
				StartDate: testDate(2026, 2, 1),
				EndDate:   testDate(2026, 2, 5),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			c.Assert(err, qt.Equals, ErrBookingOverlap)
		}
	}
	c.Assert(succeeded, qt.Equals, 1)
}

func TestBookingRejectThenRebook(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	ownerID := insertTestUser(t, database, "owner")
	renterID := insertTestUser(t, database, "renter")
	otherID := insertTestUser(t, database, "other")
	itemID := insertTestItem(t, database, ownerID, "25.00")

	first, err := database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 3, 1),
		EndDate:   testDate(2026, 3, 5),
	})
	c.Assert(err, qt.IsNil)

	// While PENDING the dates are held.
	_, err = database.BookingService.Create(ctx, otherID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 3, 5),
		EndDate:   testDate(2026, 3, 8),
	})
	c.Assert(err, qt.Equals, ErrBookingOverlap)

	// Rejection releases them.
	_, err = database.BookingService.Transition(ctx, first.ID, ownerID, BookingStatusRejected)
	c.Assert(err, qt.IsNil)

	second, err := database.BookingService.Create(ctx, otherID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 3, 1),
		EndDate:   testDate(2026, 3, 5),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(second.BookingStatus, qt.Equals, BookingStatusPending)
}

func TestBookingExpiry(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	ownerID := insertTestUser(t, database, "owner")
	renterID := insertTestUser(t, database, "renter")
	itemID := insertTestItem(t, database, ownerID, "25.00")

	booking, err := database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 2, 1),
		EndDate:   testDate(2026, 2, 5),
	})
	c.Assert(err, qt.IsNil)

	// Just inside the window the owner can still approve.
	clock.Advance(PendingApprovalWindow - time.Minute)
	count, err := database.BookingService.ExpirePendingBookings(ctx, PendingApprovalWindow, true)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, int64(0))

	// Past the window approval is refused.
	clock.Advance(2 * time.Minute)
	_, err = database.BookingService.Transition(ctx, booking.ID, ownerID, BookingStatusApproved)
	c.Assert(err, qt.Equals, ErrBookingExpired)

	// The renter may still cancel an expired request.
	cancelled, err := database.BookingService.Transition(ctx, booking.ID, renterID, BookingStatusCancelled)
	c.Assert(err, qt.IsNil)
	c.Assert(cancelled.BookingStatus, qt.Equals, BookingStatusCancelled)

	// A fresh expired PENDING booking gets swept by the expirer.
	other, err := database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 2, 10),
		EndDate:   testDate(2026, 2, 12),
	})
	c.Assert(err, qt.IsNil)
	clock.Advance(PendingApprovalWindow + time.Minute)

	count, err = database.BookingService.ExpirePendingBookings(ctx, PendingApprovalWindow, true)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, int64(1))

	expired, err := database.BookingService.ExpirePendingBookings(ctx, PendingApprovalWindow, false)
	c.Assert(err, qt.IsNil)
	c.Assert(expired, qt.Equals, int64(1))

	swept, err := database.BookingService.Get(ctx, other.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(swept.BookingStatus, qt.Equals, BookingStatusCancelled)

	// Sweeping again finds nothing.
	expired, err = database.BookingService.ExpirePendingBookings(ctx, PendingApprovalWindow, false)
	c.Assert(err, qt.IsNil)
	c.Assert(expired, qt.Equals, int64(0))
}

func TestItemAvailability(t *testing.T) {
	c := qt.New(t)
	clock := newMockClock(testDate(2026, 1, 1))
	database := startTestDB(t, clock)
	ctx := context.Background()

	ownerID := insertTestUser(t, database, "owner")
	renterID := insertTestUser(t, database, "renter")
	itemID := insertTestItem(t, database, ownerID, "25.00")

	first, err := database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 4, 1),
		EndDate:   testDate(2026, 4, 5),
	})
	c.Assert(err, qt.IsNil)
	_, err = database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 4, 10),
		EndDate:   testDate(2026, 4, 12),
	})
	c.Assert(err, qt.IsNil)

	// Rejected bookings do not occupy dates.
	third, err := database.BookingService.Create(ctx, renterID, &CreateBookingRequest{
		ItemID:    itemID,
		StartDate: testDate(2026, 4, 20),
		EndDate:   testDate(2026, 4, 22),
	})
	c.Assert(err, qt.IsNil)
	_, err = database.BookingService.Transition(ctx, third.ID, ownerID, BookingStatusRejected)
	c.Assert(err, qt.IsNil)

	ranges, err := database.BookingService.GetItemAvailability(ctx,
		itemID, testDate(2026, 4, 1), testDate(2026, 4, 30))
	c.Assert(err, qt.IsNil)
	c.Assert(ranges, qt.HasLen, 2)
	c.Assert(ranges[0].StartDate.Equal(first.StartDate), qt.IsTrue)
	c.Assert(ranges[0].Status, qt.Equals, BookingStatusPending)

	// A window touching only the second booking returns just that one.
	ranges, err = database.BookingService.GetItemAvailability(ctx,
		itemID, testDate(2026, 4, 12), testDate(2026, 4, 15))
	c.Assert(err, qt.IsNil)
	c.Assert(ranges, qt.HasLen, 1)

	_, err = database.BookingService.GetItemAvailability(ctx,
		primitive.NewObjectID(), testDate(2026, 4, 1), testDate(2026, 4, 30))
	c.Assert(err, qt.Equals, ErrItemNotFound)
}
