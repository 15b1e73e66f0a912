package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Category represents the schema for the "categories" collection.
// Categories form a tree via ParentID; the tree is kept acyclic by walking
// the ancestor chain on every parent assignment.
type Category struct {
	ID        int64     `bson:"id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Slug      string    `bson:"slug" json:"slug"`
	ParentID  *int64    `bson:"parentId,omitempty" json:"parentId,omitempty"`
	Icon      string    `bson:"icon,omitempty" json:"icon,omitempty"`
	CreatedAt time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Validate checks if the category data meets the required constraints
func (c *Category) Validate() error {
	if len(c.Name) == 0 {
		return fmt.Errorf("category name must not be empty")
	}
	if len(c.Slug) == 0 {
		return fmt.Errorf("category slug must not be empty")
	}
	return nil
}

// CategoryService provides methods to interact with the "categories" collection.
type CategoryService struct {
	Collection      *mongo.Collection
	CountersColl    *mongo.Collection
	ItemsCollection *mongo.Collection
	database        *Database
}

// NewCategoryService creates a new CategoryService.
func NewCategoryService(db *Database) *CategoryService {
	return &CategoryService{
		Collection:      db.Database.Collection("categories"),
		CountersColl:    db.Database.Collection("counters"),
		ItemsCollection: db.Database.Collection("items"),
		database:        db,
	}
}

// nextID allocates the next category identifier from the counters collection.
func (s *CategoryService) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.CountersColl.FindOneAndUpdate(ctx,
		bson.M{"_id": "categories"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

// InsertCategory inserts a new Category, allocating its identifier. The
// parent, when given, must already exist. A duplicate slug maps to
// ErrDuplicateSlug via the unique index.
func (s *CategoryService) InsertCategory(ctx context.Context, category *Category) (*Category, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	if category.ParentID != nil {
		if _, err := s.GetCategoryByID(ctx, *category.ParentID); err != nil {
			return nil, err
		}
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}
	category.ID = id
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now()
	}

	if _, err := s.Collection.InsertOne(ctx, category); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateSlug
		}
		return nil, err
	}
	return category, nil
}

// GetCategoryByID retrieves a Category by its identifier.
func (s *CategoryService) GetCategoryByID(ctx context.Context, id int64) (*Category, error) {
	var category Category
	err := s.Collection.FindOne(ctx, bson.M{"id": id}).Decode(&category)
	if err == mongo.ErrNoDocuments {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// GetCategoryBySlug retrieves a Category by its slug.
func (s *CategoryService) GetCategoryBySlug(ctx context.Context, slug string) (*Category, error) {
	var category Category
	err := s.Collection.FindOne(ctx, bson.M{"slug": slug}).Decode(&category)
	if err == mongo.ErrNoDocuments {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// GetAllCategories retrieves the full category tree as a flat list sorted by id.
func (s *CategoryService) GetAllCategories(ctx context.Context) ([]*Category, error) {
	cursor, err := s.Collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var categories []*Category
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// UpdateCategory applies a sparse update. Reassigning the parent triggers an
// ancestor walk so that self-parenting and cycles are rejected.
func (s *CategoryService) UpdateCategory(ctx context.Context, id int64, update bson.M) error {
	if parent, ok := update["parentId"]; ok && parent != nil {
		parentID, ok := parent.(int64)
		if !ok {
			return fmt.Errorf("parentId must be an integer")
		}
		if err := s.checkCycle(ctx, id, parentID); err != nil {
			return err
		}
	}

	result, err := s.Collection.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": update})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSlug
		}
		return err
	}
	if result.MatchedCount == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// checkCycle walks up the ancestor chain starting at newParentID and fails
// when it reaches id. Bounded by the category count to survive corrupt data.
func (s *CategoryService) checkCycle(ctx context.Context, id, newParentID int64) error {
	if newParentID == id {
		return ErrCategoryCycle
	}
	limit, err := s.Collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return err
	}
	current := newParentID
	for i := int64(0); i <= limit; i++ {
		category, err := s.GetCategoryByID(ctx, current)
		if err != nil {
			return err
		}
		if category.ParentID == nil {
			return nil
		}
		if *category.ParentID == id {
			return ErrCategoryCycle
		}
		current = *category.ParentID
	}
	return ErrCategoryCycle
}

// DeleteCategory removes a category and all its descendants, clearing the
// category of affected items. The whole cascade runs in one transaction.
func (s *CategoryService) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := s.GetCategoryByID(ctx, id); err != nil {
		return err
	}

	return s.database.WithTransaction(ctx, func(sc mongo.SessionContext) error {
		ids, err := s.collectSubtree(sc, id)
		if err != nil {
			return err
		}
		if _, err := s.Collection.DeleteMany(sc, bson.M{"id": bson.M{"$in": ids}}); err != nil {
			return err
		}
		_, err = s.ItemsCollection.UpdateMany(sc,
			bson.M{"categoryId": bson.M{"$in": ids}},
			bson.M{"$unset": bson.M{"categoryId": ""}},
		)
		return err
	})
}

// CategorySeed is one row of a category import. Line is the source line in
// the import file, used for error reporting.
type CategorySeed struct {
	Name       string
	Slug       string
	ParentSlug string
	Icon       string
	Line       int
}

// ImportCategories applies seed rows in file order inside a single
// transaction, so parents land before children and a failure part way
// through leaves the database untouched. Rows whose slug already exists are
// skipped unless update is true, in which case name, icon and parent are
// overwritten. Returns the created, updated and skipped counts.
func (s *CategoryService) ImportCategories(
	ctx context.Context,
	rows []CategorySeed,
	update bool,
) (created, updated, skipped int, err error) {
	err = s.database.WithTransaction(ctx, func(sc mongo.SessionContext) error {
		// The driver may retry the callback, so the counts restart with it.
		created, updated, skipped = 0, 0, 0
		for _, row := range rows {
			var parentID *int64
			if row.ParentSlug != "" {
				parent, err := s.GetCategoryBySlug(sc, row.ParentSlug)
				if err != nil {
					return fmt.Errorf("line %d: resolving parent %q: %w", row.Line, row.ParentSlug, err)
				}
				parentID = &parent.ID
			}

			existing, err := s.GetCategoryBySlug(sc, row.Slug)
			switch {
			case err == nil:
				if !update {
					skipped++
					continue
				}
				change := bson.M{"name": row.Name, "icon": row.Icon}
				if parentID != nil {
					change["parentId"] = *parentID
				} else {
					change["parentId"] = nil
				}
				if err := s.UpdateCategory(sc, existing.ID, change); err != nil {
					return fmt.Errorf("line %d: updating %q: %w", row.Line, row.Slug, err)
				}
				updated++
			case errors.Is(err, ErrCategoryNotFound):
				category := &Category{
					Name:     row.Name,
					Slug:     row.Slug,
					ParentID: parentID,
					Icon:     row.Icon,
				}
				if _, err := s.InsertCategory(sc, category); err != nil {
					return fmt.Errorf("line %d: creating %q: %w", row.Line, row.Slug, err)
				}
				created++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}
	return created, updated, skipped, nil
}

// collectSubtree gathers the ids of a category and all its descendants.
func (s *CategoryService) collectSubtree(ctx context.Context, rootID int64) ([]int64, error) {
	ids := []int64{rootID}
	frontier := []int64{rootID}
	for len(frontier) > 0 {
		cursor, err := s.Collection.Find(ctx, bson.M{"parentId": bson.M{"$in": frontier}})
		if err != nil {
			return nil, err
		}
		var children []*Category
		if err := cursor.All(ctx, &children); err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, child := range children {
			ids = append(ids, child.ID)
			frontier = append(frontier, child.ID)
		}
	}
	return ids, nil
}
