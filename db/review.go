package db

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ReviewDirection tells which side of the booking wrote the review.
type ReviewDirection string

const (
	DirectionRenterToOwner ReviewDirection = "RENTER_TO_OWNER"
	DirectionOwnerToRenter ReviewDirection = "OWNER_TO_RENTER"
)

// MinCommentLength is the minimum number of characters in a review comment,
// counted after trimming whitespace.
const MinCommentLength = 10

// Review represents the schema for the "reviews" collection. The
// (bookingId, direction) pair is unique: each participant reviews the other
// at most once per booking.
type Review struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	BookingID      primitive.ObjectID `bson:"bookingId" json:"bookingId"`
	ReviewerID     primitive.ObjectID `bson:"reviewerId" json:"reviewerId"`
	ReviewedUserID primitive.ObjectID `bson:"reviewedUserId" json:"reviewedUserId"`
	Direction      ReviewDirection    `bson:"direction" json:"direction"`
	Rating         int                `bson:"rating" json:"rating"`
	Comment        string             `bson:"comment" json:"comment"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}

// ReviewService provides methods to interact with the "reviews" collection.
type ReviewService struct {
	Collection   *mongo.Collection
	BookingsColl *mongo.Collection
	UsersColl    *mongo.Collection
	database     *Database
	clock        TimeProvider
}

// NewReviewService creates a new ReviewService.
func NewReviewService(db *Database) *ReviewService {
	return &ReviewService{
		Collection:   db.Database.Collection("reviews"),
		BookingsColl: db.Database.Collection("bookings"),
		UsersColl:    db.Database.Collection("users"),
		database:     db,
		clock:        db.clock,
	}
}

// Create inserts a review for a completed booking and recomputes the
// reviewed user's denormalized rating aggregates in the same transaction,
// so readers never observe a review without its effect on the average.
func (s *ReviewService) Create(
	ctx context.Context,
	reviewerID, bookingID primitive.ObjectID,
	rating int,
	comment string,
) (*Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if len(strings.TrimSpace(comment)) < MinCommentLength {
		return nil, ErrCommentTooShort
	}

	var review *Review
	err := s.database.WithTransaction(ctx, func(sc mongo.SessionContext) error {
		var booking Booking
		if err := s.BookingsColl.FindOne(sc, bson.M{"_id": bookingID}).Decode(&booking); err != nil {
			if err == mongo.ErrNoDocuments {
				return ErrBookingNotFound
			}
			return err
		}
		if booking.BookingStatus != BookingStatusCompleted {
			return ErrReviewNotEligible
		}

		// The direction follows from the reviewer's role in the booking.
		var direction ReviewDirection
		var reviewedUserID primitive.ObjectID
		switch reviewerID {
		case booking.RenterID:
			direction = DirectionRenterToOwner
			reviewedUserID = booking.OwnerID
		case booking.OwnerID:
			direction = DirectionOwnerToRenter
			reviewedUserID = booking.RenterID
		default:
			return ErrNotBookingParticipant
		}

		r := &Review{
			BookingID:      bookingID,
			ReviewerID:     reviewerID,
			ReviewedUserID: reviewedUserID,
			Direction:      direction,
			Rating:         rating,
			Comment:        comment,
			CreatedAt:      s.clock.Now(),
		}
		result, err := s.Collection.InsertOne(sc, r)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrDuplicateReview
			}
			return err
		}
		r.ID = result.InsertedID.(primitive.ObjectID)
		review = r

		return s.updateUserRating(sc, reviewedUserID)
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// updateUserRating recomputes ratingAverage and reviewCount for a user from
// the reviews collection. The average is computed in decimal from the integer
// sum, rounded half-up to 2 places.
func (s *ReviewService) updateUserRating(ctx context.Context, userID primitive.ObjectID) error {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"reviewedUserId": userID}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"sum":   bson.M{"$sum": "$rating"},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := s.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	var results []struct {
		Sum   int64 `bson:"sum"`
		Count int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return err
	}
	if len(results) == 0 || results[0].Count == 0 {
		return nil
	}

	average := NewMoney(decimal.NewFromInt(results[0].Sum).
		Div(decimal.NewFromInt(results[0].Count)).
		Round(2))
	_, err = s.UsersColl.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{
			"ratingAverage": average,
			"reviewCount":   results[0].Count,
			"updatedAt":     s.clock.Now(),
		}},
	)
	return err
}

// GetUserReviews retrieves the reviews received by a user, newest first.
// Returns reviews and total count for pagination.
func (s *ReviewService) GetUserReviews(
	ctx context.Context,
	userID primitive.ObjectID,
	page int,
) ([]*Review, int64, error) {
	if page < 0 {
		page = 0
	}
	skip := page * DefaultPageSize

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"reviewedUserId": userID}}},
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
		Data  []*Review `bson:"data"`
		Count []struct {
			Total int64 `bson:"total"`
		} `bson:"count"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, err
	}

	var reviews []*Review
	var total int64
	if len(result) > 0 {
		reviews = result[0].Data
		if len(result[0].Count) > 0 {
			total = result[0].Count[0].Total
		}
	}
	return reviews, total, nil
}
