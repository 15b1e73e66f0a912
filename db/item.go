package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ItemCondition describes the physical state of a listed item.
type ItemCondition string

const (
	ItemConditionNew       ItemCondition = "new"
	ItemConditionExcellent ItemCondition = "excellent"
	ItemConditionGood      ItemCondition = "good"
	ItemConditionFair      ItemCondition = "fair"
)

// Valid reports whether c is one of the known conditions.
func (c ItemCondition) Valid() bool {
	switch c {
	case ItemConditionNew, ItemConditionExcellent, ItemConditionGood, ItemConditionFair:
		return true
	}
	return false
}

// ItemImage is image metadata attached to an item. Binary upload and storage
// are handled by an external media service; items only carry references.
type ItemImage struct {
	URL     string `bson:"url" json:"url"`
	IsCover bool   `bson:"isCover" json:"isCover"`
	Order   int    `bson:"order" json:"order"`
}

// Item represents the schema for the "items" collection.
// BookingSeq is bumped inside every booking transaction that touches the
// item, which serializes concurrent booking writers on the same item.
type Item struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerID       primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	Title         string             `bson:"title" json:"title"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	CategoryID    *int64             `bson:"categoryId,omitempty" json:"categoryId,omitempty"`
	Condition     ItemCondition      `bson:"condition" json:"condition"`
	PricePerDay   Money              `bson:"pricePerDay" json:"pricePerDay"`
	DepositAmount Money              `bson:"depositAmount" json:"depositAmount"`
	Location      string             `bson:"location,omitempty" json:"location,omitempty"`
	IsActive      bool               `bson:"isActive" json:"isActive"`
	Images        []ItemImage        `bson:"images,omitempty" json:"images,omitempty"`
	BookingSeq    int64              `bson:"bookingSeq" json:"-"`
	CreatedAt     time.Time          `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt     time.Time          `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Validate checks if the item data meets the required constraints
func (i *Item) Validate() error {
	if len(i.Title) == 0 || len(i.Title) > 120 {
		return fmt.Errorf("title length must be between 1 and 120 characters")
	}
	if !i.Condition.Valid() {
		return fmt.Errorf("invalid item condition: %s", i.Condition)
	}
	if i.PricePerDay.IsNegative() {
		return fmt.Errorf("pricePerDay must not be negative")
	}
	if i.DepositAmount.IsNegative() {
		return fmt.Errorf("depositAmount must not be negative")
	}
	covers := 0
	for _, img := range i.Images {
		if img.IsCover {
			covers++
		}
	}
	if covers > 1 {
		return fmt.Errorf("item can have at most one cover image")
	}
	return nil
}

// ItemOrder values accepted by SearchItems.
const (
	ItemOrderNewest    = "newest"
	ItemOrderPriceAsc  = "priceAsc"
	ItemOrderPriceDesc = "priceDesc"
)

// ItemFilter represents filters for item search queries.
type ItemFilter struct {
	CategoryID *int64
	MinPrice   *Money
	MaxPrice   *Money
	Location   string
	SearchTerm string
	OrderBy    string
	Page       int
	PageSize   int
}

// ItemService provides methods to interact with the "items" collection.
type ItemService struct {
	Collection     *mongo.Collection
	BookingsColl   *mongo.Collection
	CategoriesColl *mongo.Collection
	clock          TimeProvider
}

// NewItemService creates a new ItemService.
func NewItemService(db *Database) *ItemService {
	return &ItemService{
		Collection:     db.Database.Collection("items"),
		BookingsColl:   db.Database.Collection("bookings"),
		CategoriesColl: db.Database.Collection("categories"),
		clock:          db.clock,
	}
}

// InsertItem inserts a new Item document. The category, when given, must exist.
func (s *ItemService) InsertItem(ctx context.Context, item *Item) (*Item, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if item.CategoryID != nil {
		count, err := s.CategoriesColl.CountDocuments(ctx, bson.M{"id": *item.CategoryID})
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrCategoryNotFound
		}
	}

	now := s.clock.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	result, err := s.Collection.InsertOne(ctx, item)
	if err != nil {
		return nil, err
	}
	item.ID = result.InsertedID.(primitive.ObjectID)
	return item, nil
}

// GetItemByID retrieves an Item by its ID.
func (s *ItemService) GetItemByID(ctx context.Context, id primitive.ObjectID) (*Item, error) {
	var item Item
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem applies a sparse update to an item. The update document holds
// only the fields being set; callers are responsible for whitelisting keys.
func (s *ItemService) UpdateItem(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	if category, ok := update["categoryId"]; ok && category != nil {
		categoryID, ok := category.(int64)
		if !ok {
			return fmt.Errorf("categoryId must be an integer")
		}
		count, err := s.CategoriesColl.CountDocuments(ctx, bson.M{"id": categoryID})
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrCategoryNotFound
		}
	}

	update["updatedAt"] = s.clock.Now()
	result, err := s.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeleteItem removes an item. Items with bookings in an active status cannot
// be deleted; deactivate them instead.
func (s *ItemService) DeleteItem(ctx context.Context, id primitive.ObjectID) error {
	count, err := s.BookingsColl.CountDocuments(ctx, bson.M{
		"itemId":        id,
		"bookingStatus": bson.M{"$in": activeBookingStatuses},
	})
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrItemHasActiveBookings
	}

	result, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GetItemsByOwner retrieves all items owned by a user, newest first.
func (s *ItemService) GetItemsByOwner(ctx context.Context, ownerID primitive.ObjectID, page int) ([]*Item, error) {
	if page < 0 {
		page = 0
	}
	skip := page * DefaultPageSize

	cursor, err := s.Collection.Find(ctx,
		bson.M{"ownerId": ownerID},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
			SetSkip(int64(skip)).
			SetLimit(int64(DefaultPageSize)),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing cursor")
		}
	}()

	var items []*Item
	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SearchItems retrieves active items matching the filter using an aggregation
// pipeline. Returns items and total count for pagination.
func (s *ItemService) SearchItems(ctx context.Context, filter ItemFilter) ([]*Item, int64, error) {
	if filter.Page < 0 {
		filter.Page = 0
	}
	pageSize := SanitizePageSize(filter.PageSize)
	skip := filter.Page * pageSize

	match := bson.M{"isActive": true}
	if filter.CategoryID != nil {
		match["categoryId"] = *filter.CategoryID
	}
	if filter.MinPrice != nil || filter.MaxPrice != nil {
		price := bson.M{}
		if filter.MinPrice != nil {
			price["$gte"] = *filter.MinPrice
		}
		if filter.MaxPrice != nil {
			price["$lte"] = *filter.MaxPrice
		}
		match["pricePerDay"] = price
	}
	if filter.Location != "" {
		match["location"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Location), Options: "i"}
	}
	if filter.SearchTerm != "" {
		regex := primitive.Regex{Pattern: regexp.QuoteMeta(filter.SearchTerm), Options: "i"}
		match["$or"] = []bson.M{
			{"title": regex},
			{"description": regex},
		}
	}

	// Secondary sort on _id keeps pagination stable across equal keys.
	var sort bson.D
	switch filter.OrderBy {
	case ItemOrderPriceAsc:
		sort = bson.D{{Key: "pricePerDay", Value: 1}, {Key: "_id", Value: 1}}
	case ItemOrderPriceDesc:
		sort = bson.D{{Key: "pricePerDay", Value: -1}, {Key: "_id", Value: 1}}
	default:
		sort = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	}

	// Create the aggregation pipeline with $facet to get both data and count
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$sort", Value: sort}},
		bson.D{{Key: "$facet", Value: bson.D{
			{Key: "data", Value: bson.A{
				bson.D{{Key: "$skip", Value: int64(skip)}},
				bson.D{{Key: "$limit", Value: int64(pageSize)}},
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
		Data  []*Item `bson:"data"`
		Count []struct {
			Total int64 `bson:"total"`
		} `bson:"count"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, err
	}

	var items []*Item
	var total int64
	if len(result) > 0 {
		items = result[0].Data
		if len(result[0].Count) > 0 {
			total = result[0].Count[0].Total
		}
	}
	return items, total, nil
}
