package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dzrentit/rentit-app-backend/pricing"
)

// BookingStatus represents the current state of a booking
type BookingStatus string

const (
	BookingStatusPending        BookingStatus = "PENDING"
	BookingStatusApproved       BookingStatus = "APPROVED"
	BookingStatusRejected       BookingStatus = "REJECTED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
	BookingStatusPaymentPending BookingStatus = "PAYMENT_PENDING"
	BookingStatusCompleted      BookingStatus = "COMPLETED"
)

// PendingApprovalWindow is how long a PENDING booking can wait for owner
// approval. Older requests cannot be approved and get cancelled by the
// expirer.
const PendingApprovalWindow = 48 * time.Hour

// activeBookingStatuses are the statuses that block the item's calendar.
var activeBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusApproved,
	BookingStatusPaymentPending,
}

// IsActive reports whether a booking in this status occupies its dates.
func (s BookingStatus) IsActive() bool {
	for _, status := range activeBookingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusRejected, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// validTransitions maps each legal edge of the booking state machine to
// whether only the owner may take it. Renter and owner may both cancel any
// active booking; everything else is the owner's call.
var validTransitions = map[BookingStatus]map[BookingStatus]bool{
	BookingStatusPending: {
		BookingStatusApproved:  true,
		BookingStatusRejected:  true,
		BookingStatusCancelled: false,
	},
	BookingStatusApproved: {
		BookingStatusPaymentPending: true,
		BookingStatusCancelled:      false,
	},
	BookingStatusPaymentPending: {
		BookingStatusCompleted: true,
		BookingStatusCancelled: false,
	},
}

// BookingRole filters booking listings by the user's side of the booking.
type BookingRole string

const (
	BookingRoleRenter BookingRole = "renter"
	BookingRoleOwner  BookingRole = "owner"
	BookingRoleBoth   BookingRole = "both"
)

// Booking represents an item booking in the system. The price breakdown is
// frozen at creation time; later item price changes do not affect it.
type Booking struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ItemID         primitive.ObjectID `bson:"itemId" json:"itemId"`
	RenterID       primitive.ObjectID `bson:"renterId" json:"renterId"`
	OwnerID        primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	StartDate      time.Time          `bson:"startDate" json:"startDate"`
	EndDate        time.Time          `bson:"endDate" json:"endDate"`
	BookingStatus  BookingStatus      `bson:"bookingStatus" json:"bookingStatus"`
	TotalDays      int                `bson:"totalDays" json:"totalDays"`
	BaseTotal      Money              `bson:"baseTotal" json:"baseTotal"`
	DiscountRate   Money              `bson:"discountRate" json:"discountRate"`
	DiscountAmount Money              `bson:"discountAmount" json:"discountAmount"`
	FinalTotal     Money              `bson:"finalTotal" json:"finalTotal"`
	DepositAmount  Money              `bson:"depositAmount" json:"depositAmount"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// AvailabilityRange is one busy interval of an item's calendar.
type AvailabilityRange struct {
	StartDate time.Time     `bson:"startDate" json:"startDate"`
	EndDate   time.Time     `bson:"endDate" json:"endDate"`
	Status    BookingStatus `bson:"bookingStatus" json:"status"`
}

// BookingService handles all booking related database operations
type BookingService struct {
	collection      *mongo.Collection
	itemsCollection *mongo.Collection
	database        *Database
	clock           TimeProvider
}

// NewBookingService creates a new BookingService instance
func NewBookingService(db *Database) *BookingService {
	collection := db.Database.Collection("bookings")

	// Create indexes
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "itemId", Value: 1},
				{Key: "bookingStatus", Value: 1},
				{Key: "startDate", Value: 1},
				{Key: "endDate", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "renterId", Value: 1},
				{Key: "createdAt", Value: -1}, // For efficient sorting by date
			},
		},
		{
			Keys: bson.D{
				{Key: "ownerId", Value: 1},
				{Key: "createdAt", Value: -1}, // For efficient sorting by date
			},
		},
		{
			Keys: bson.D{
				{Key: "bookingStatus", Value: 1},
				{Key: "createdAt", Value: 1}, // For the expirer scan
			},
		},
	}

	_, err := collection.Indexes().CreateMany(context.Background(), indexes)
	if err != nil {
		panic(err)
	}

	return &BookingService{
		collection:      collection,
		itemsCollection: db.Database.Collection("items"),
		database:        db,
		clock:           db.clock,
	}
}

// CreateBookingRequest represents the request to create a new booking
type CreateBookingRequest struct {
	ItemID    primitive.ObjectID `json:"itemId"`
	StartDate time.Time          `json:"startDate"`
	EndDate   time.Time          `json:"endDate"`
}

// lockItem bumps the item's booking sequence inside the current transaction.
// Two concurrent transactions writing the same item document conflict at
// commit; the driver retries the loser, whose overlap scan then sees the
// winner's committed booking. Returns ErrItemNotFound for unknown items.
func (s *BookingService) lockItem(sc mongo.SessionContext, itemID primitive.ObjectID) (*Item, error) {
	var item Item
	err := s.itemsCollection.FindOneAndUpdate(sc,
		bson.M{"_id": itemID},
		bson.M{"$inc": bson.M{"bookingSeq": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Create creates a new booking for the renter. The admission pipeline runs
// inside one transaction: item checks, date validation, pricing, overlap
// scan, insert. No two bookings with overlapping inclusive date ranges can
// both be admitted for the same item.
func (s *BookingService) Create(
	ctx context.Context,
	renterID primitive.ObjectID,
	req *CreateBookingRequest,
) (*Booking, error) {
	var booking *Booking
	err := s.database.WithTransaction(ctx, func(sc mongo.SessionContext) error {
		item, err := s.lockItem(sc, req.ItemID)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return ErrItemInactive
		}
		if item.OwnerID == renterID {
			return ErrSelfBooking
		}

		start := ToDate(req.StartDate)
		end := ToDate(req.EndDate)
		today := ToDate(s.clock.Now())
		if start.Before(today) {
			return ErrInvalidDateRange
		}

		quote, err := pricing.Calculate(item.PricePerDay.Decimal, start, end)
		if err != nil {
			return ErrInvalidDateRange
		}

		conflict, err := s.hasDateConflict(sc, item.ID, start, end)
		if err != nil {
			return err
		}
		if conflict {
			return ErrBookingOverlap
		}

		now := s.clock.Now()
		booking = &Booking{
			ItemID:         item.ID,
			RenterID:       renterID,
			OwnerID:        item.OwnerID,
			StartDate:      start,
			EndDate:        end,
			BookingStatus:  BookingStatusPending,
			TotalDays:      quote.TotalDays,
			BaseTotal:      NewMoney(quote.BaseTotal),
			DiscountRate:   NewMoney(quote.DiscountRate),
			DiscountAmount: NewMoney(quote.DiscountAmount),
			FinalTotal:     NewMoney(quote.FinalTotal),
			DepositAmount:  item.DepositAmount,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		result, err := s.collection.InsertOne(sc, booking)
		if err != nil {
			return err
		}
		booking.ID = result.InsertedID.(primitive.ObjectID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Get retrieves a booking by ID
func (s *BookingService) Get(ctx context.Context, id primitive.ObjectID) (*Booking, error) {
	var booking Booking
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err == mongo.ErrNoDocuments {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Transition moves a booking to a target status on behalf of an actor,
// enforcing the state machine, actor authorization and the approval window.
// It shares the item lock with Create so that an approval and a conflicting
// creation cannot interleave.
func (s *BookingService) Transition(
	ctx context.Context,
	id primitive.ObjectID,
	actorID primitive.ObjectID,
	target BookingStatus,
) (*Booking, error) {
	var booking *Booking
	err := s.database.WithTransaction(ctx, func(sc mongo.SessionContext) error {
		var current Booking
		if err := s.collection.FindOne(sc, bson.M{"_id": id}).Decode(&current); err != nil {
			if err == mongo.ErrNoDocuments {
				return ErrBookingNotFound
			}
			return err
		}
		if _, err := s.lockItem(sc, current.ItemID); err != nil {
			return err
		}

		isOwner := actorID == current.OwnerID
		isRenter := actorID == current.RenterID
		if !isOwner && !isRenter {
			return ErrNotBookingParticipant
		}

		ownerOnly, ok := validTransitions[current.BookingStatus][target]
		if !ok {
			return ErrInvalidTransition
		}
		if ownerOnly && !isOwner {
			return ErrNotAuthorized
		}

		// Stale PENDING requests cannot be approved anymore; the expirer
		// will cancel them.
		if current.BookingStatus == BookingStatusPending && target == BookingStatusApproved {
			if s.clock.Now().Sub(current.CreatedAt) >= PendingApprovalWindow {
				return ErrBookingExpired
			}
		}

		now := s.clock.Now()
		update := bson.M{"$set": bson.M{
			"bookingStatus": target,
			"updatedAt":     now,
		}}
		if _, err := s.collection.UpdateOne(sc, bson.M{"_id": id}, update); err != nil {
			return err
		}
		current.BookingStatus = target
		current.UpdatedAt = now
		booking = &current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// GetUserBookings gets paginated bookings for a user, filtered by the user's
// role. Returns bookings and total count for pagination.
func (s *BookingService) GetUserBookings(
	ctx context.Context,
	userID primitive.ObjectID,
	role BookingRole,
	page int,
) ([]*Booking, int64, error) {
	if page < 0 {
		page = 0
	}
	skip := page * DefaultPageSize

	var match bson.M
	switch role {
	case BookingRoleRenter:
		match = bson.M{"renterId": userID}
	case BookingRoleOwner:
		match = bson.M{"ownerId": userID}
	default:
		match = bson.M{"$or": []bson.M{
			{"renterId": userID},
			{"ownerId": userID},
		}}
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}}},
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

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing cursor")
		}
	}()

	var result []struct {
		Data  []*Booking `bson:"data"`
		Count []struct {
			Total int64 `bson:"total"`
		} `bson:"count"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, err
	}

	var bookings []*Booking
	var total int64
	if len(result) > 0 {
		bookings = result[0].Data
		if len(result[0].Count) > 0 {
			total = result[0].Count[0].Total
		}
	}
	return bookings, total, nil
}

// GetItemAvailability projects the busy intervals of an item's calendar
// within [from, to], ordered by start date. Only bookings in an active
// status occupy dates.
func (s *BookingService) GetItemAvailability(
	ctx context.Context,
	itemID primitive.ObjectID,
	from, to time.Time,
) ([]AvailabilityRange, error) {
	count, err := s.itemsCollection.CountDocuments(ctx, bson.M{"_id": itemID})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrItemNotFound
	}

	from = ToDate(from)
	to = ToDate(to)
	filter := bson.M{
		"itemId":        itemID,
		"bookingStatus": bson.M{"$in": activeBookingStatuses},
		"startDate":     bson.M{"$lte": to},
		"endDate":       bson.M{"$gte": from},
	}
	cursor, err := s.collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "startDate", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing cursor")
		}
	}()

	ranges := []AvailabilityRange{}
	if err := cursor.All(ctx, &ranges); err != nil {
		return nil, err
	}
	return ranges, nil
}

// ExpirePendingBookings cancels PENDING bookings older than the given window.
// Each booking is expired with a single-document compare-and-set, so one
// being transitioned concurrently simply no longer matches and is skipped.
// With dryRun set, it only counts the candidates. Returns the number of
// bookings expired (or that would be).
func (s *BookingService) ExpirePendingBookings(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	filter := bson.M{
		"bookingStatus": BookingStatusPending,
		"createdAt":     bson.M{"$lte": cutoff},
	}

	if dryRun {
		return s.collection.CountDocuments(ctx, filter)
	}

	cursor, err := s.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, err
	}
	var candidates []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &candidates); err != nil {
		return 0, err
	}

	var expired int64
	now := s.clock.Now()
	for _, candidate := range candidates {
		result, err := s.collection.UpdateOne(ctx,
			bson.M{
				"_id":           candidate.ID,
				"bookingStatus": BookingStatusPending,
				"createdAt":     bson.M{"$lte": cutoff},
			},
			bson.M{"$set": bson.M{
				"bookingStatus": BookingStatusCancelled,
				"updatedAt":     now,
			}},
		)
		if err != nil {
			return expired, err
		}
		expired += result.ModifiedCount
	}
	return expired, nil
}

// hasDateConflict checks whether any booking in an active status overlaps
// [start, end] for the given item. Ranges are inclusive on both ends, so
// back-to-back bookings sharing a boundary day conflict.
func (s *BookingService) hasDateConflict(
	ctx context.Context,
	itemID primitive.ObjectID,
	start, end time.Time,
) (bool, error) {
	filter := bson.M{
		"itemId":        itemID,
		"bookingStatus": bson.M{"$in": activeBookingStatuses},
		"startDate":     bson.M{"$lte": end},
		"endDate":       bson.M{"$gte": start},
	}

	count, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
