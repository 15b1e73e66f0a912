package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dzrentit/rentit-app-backend/db"
	"github.com/dzrentit/rentit-app-backend/pricing"
)

// CreateItemRequest is the request body for listing a new item.
type CreateItemRequest struct {
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	CategoryID    *int64           `json:"categoryId,omitempty"`
	Condition     db.ItemCondition `json:"condition"`
	PricePerDay   db.Money         `json:"pricePerDay"`
	DepositAmount db.Money         `json:"depositAmount"`
	Location      string           `json:"location,omitempty"`
	Images        []db.ItemImage   `json:"images,omitempty"`
}

// ItemListResponse is a paginated list of items.
type ItemListResponse struct {
	Items      []*db.Item     `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// AvailabilityResponse lists the busy intervals of an item's calendar.
type AvailabilityResponse struct {
	ItemID string              `json:"itemId"`
	From   string              `json:"from"`
	To     string              `json:"to"`
	Busy   []AvailabilityEntry `json:"busy"`
}

type AvailabilityEntry struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Status    string `json:"status"`
}

// PriceQuoteResponse is the price breakdown for a prospective booking.
type PriceQuoteResponse struct {
	TotalDays      int    `json:"totalDays"`
	BaseTotal      string `json:"baseTotal"`
	DiscountRate   string `json:"discountRate"`
	DiscountAmount string `json:"discountAmount"`
	FinalTotal     string `json:"finalTotal"`
}

// itemUpdatableFields are the only item fields the update endpoint accepts.
// The "category" key maps to the stored categoryId.
var itemUpdatableFields = map[string]bool{
	"title":         true,
	"description":   true,
	"category":      true,
	"condition":     true,
	"pricePerDay":   true,
	"depositAmount": true,
	"location":      true,
	"isActive":      true,
}

// RegisterPublicItemRoutes registers the public item routes to the router.
func (a *API) RegisterPublicItemRoutes(r chi.Router) {
	log.Info().Msg("register route GET /items")
	r.Get("/items", a.routerHandler(a.searchItemsHandler))

	log.Info().Msg("register route GET /items/{itemId}")
	r.Get("/items/{itemId}", a.routerHandler(a.getItemHandler))

	log.Info().Msg("register route GET /items/{itemId}/availability")
	r.Get("/items/{itemId}/availability", a.routerHandler(a.itemAvailabilityHandler))

	log.Info().Msg("register route GET /items/{itemId}/price")
	r.Get("/items/{itemId}/price", a.routerHandler(a.itemPriceQuoteHandler))
}

// RegisterItemRoutes registers the authenticated item routes to the router.
func (a *API) RegisterItemRoutes(r chi.Router) {
	log.Info().Msg("register route POST /items")
	r.Post("/items", a.routerHandler(a.createItemHandler))

	log.Info().Msg("register route PUT /items/{itemId}")
	r.Put("/items/{itemId}", a.routerHandler(a.updateItemHandler))

	log.Info().Msg("register route DELETE /items/{itemId}")
	r.Delete("/items/{itemId}", a.routerHandler(a.deleteItemHandler))

	log.Info().Msg("register route GET /items/mine")
	r.Get("/items/mine", a.routerHandler(a.getOwnItemsHandler))
}

func (a *API) itemIDFromRequest(r *Request) (primitive.ObjectID, error) {
	idParam := r.Context.URLParam("itemId")
	if idParam == nil {
		return primitive.NilObjectID, fmt.Errorf("missing itemId")
	}
	return primitive.ObjectIDFromHex(idParam[0])
}

// dateQueryParam parses a YYYY-MM-DD query parameter, returning the fallback
// when absent.
func dateQueryParam(r *Request, key string, fallback time.Time) (time.Time, error) {
	param := r.Context.URLParam(key)
	if param == nil {
		return fallback, nil
	}
	date, err := time.Parse(time.DateOnly, param[0])
	if err != nil {
		return time.Time{}, err
	}
	return date, nil
}

// createItemHandler lists a new item owned by the authenticated user.
func (a *API) createItemHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}

	req := CreateItemRequest{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	item := &db.Item{
		OwnerID:       userID,
		Title:         req.Title,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Condition:     req.Condition,
		PricePerDay:   req.PricePerDay,
		DepositAmount: req.DepositAmount,
		Location:      req.Location,
		IsActive:      true,
		Images:        req.Images,
	}
	if err := item.Validate(); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	created, err := a.database.ItemService.InsertItem(r.Context.Request.Context(), item)
	if err != nil {
		return nil, fromDBError(err)
	}
	return created, nil
}

// getItemHandler returns a single item by id.
func (a *API) getItemHandler(r *Request) (interface{}, error) {
	itemID, err := a.itemIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	item, err := a.database.ItemService.GetItemByID(r.Context.Request.Context(), itemID)
	if err != nil {
		return nil, fromDBError(err)
	}
	return item, nil
}

// updateItemHandler applies a sparse update to an item owned by the
// authenticated user. Unknown keys fail the whole request.
func (a *API) updateItemHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	itemID, err := a.itemIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	ctx := r.Context.Request.Context()
	item, err := a.database.ItemService.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, fromDBError(err)
	}
	if item.OwnerID != userID {
		return nil, ErrActorNotAllowed
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &fields); err != nil {
		return nil, ErrInvalidJSON.WithErr(err)
	}
	if len(fields) == 0 {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("no fields to update"))
	}

	update := bson.M{}
	for key, raw := range fields {
		if !itemUpdatableFields[key] {
			return nil, ErrUnknownField.WithErr(fmt.Errorf("field %q is not updatable", key))
		}
		switch key {
		case "title", "description", "location":
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("field %q must be a string", key))
			}
			update[key] = value
		case "category":
			var value *int64
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("category must be an integer or null"))
			}
			if value == nil {
				update["categoryId"] = nil
			} else {
				update["categoryId"] = *value
			}
		case "condition":
			var value db.ItemCondition
			if err := json.Unmarshal(raw, &value); err != nil || !value.Valid() {
				return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid item condition"))
			}
			update[key] = value
		case "pricePerDay", "depositAmount":
			var value db.Money
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("field %q must be a decimal string", key))
			}
			if value.IsNegative() {
				return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("field %q must not be negative", key))
			}
			update[key] = value
		case "isActive":
			var value bool
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("isActive must be a boolean"))
			}
			update[key] = value
		}
	}

	if err := a.database.ItemService.UpdateItem(ctx, itemID, update); err != nil {
		return nil, fromDBError(err)
	}
	item, err = a.database.ItemService.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, fromDBError(err)
	}
	return item, nil
}

// deleteItemHandler removes an item owned by the authenticated user. Items
// with active bookings cannot be deleted.
func (a *API) deleteItemHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	itemID, err := a.itemIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	ctx := r.Context.Request.Context()
	item, err := a.database.ItemService.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, fromDBError(err)
	}
	if item.OwnerID != userID {
		return nil, ErrActorNotAllowed
	}

	if err := a.database.ItemService.DeleteItem(ctx, itemID); err != nil {
		return nil, fromDBError(err)
	}
	return nil, nil
}

// getOwnItemsHandler returns the authenticated user's own items, newest first.
func (a *API) getOwnItemsHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	page, err := r.Context.GetPage()
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	items, err := a.database.ItemService.GetItemsByOwner(r.Context.Request.Context(), userID, page)
	if err != nil {
		return nil, fromDBError(err)
	}
	return items, nil
}

// searchItemsHandler searches active items with optional filters taken from
// the query string.
func (a *API) searchItemsHandler(r *Request) (interface{}, error) {
	page, pageSize, err := r.Context.GetPaginationParams()
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	filter := db.ItemFilter{
		Page:     page,
		PageSize: pageSize,
	}
	if param := r.Context.URLParam("category"); param != nil {
		categoryID, err := strconv.ParseInt(param[0], 10, 64)
		if err != nil {
			return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid category"))
		}
		filter.CategoryID = &categoryID
	}
	if param := r.Context.URLParam("minPrice"); param != nil {
		price, err := db.MoneyFromString(param[0])
		if err != nil {
			return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid minPrice"))
		}
		filter.MinPrice = &price
	}
	if param := r.Context.URLParam("maxPrice"); param != nil {
		price, err := db.MoneyFromString(param[0])
		if err != nil {
			return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid maxPrice"))
		}
		filter.MaxPrice = &price
	}
	if param := r.Context.URLParam("location"); param != nil {
		filter.Location = param[0]
	}
	if param := r.Context.URLParam("search"); param != nil {
		filter.SearchTerm = param[0]
	}
	if param := r.Context.URLParam("orderBy"); param != nil {
		filter.OrderBy = param[0]
	}

	items, total, err := a.database.ItemService.SearchItems(r.Context.Request.Context(), filter)
	if err != nil {
		return nil, fromDBError(err)
	}
	return &ItemListResponse{
		Items:      items,
		Pagination: CalculatePagination(page, pageSize, total),
	}, nil
}

// itemAvailabilityHandler projects the busy intervals of an item's calendar.
// The window defaults to one year from today.
func (a *API) itemAvailabilityHandler(r *Request) (interface{}, error) {
	itemID, err := a.itemIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	today := db.ToDate(a.database.Clock().Now())
	from, err := dateQueryParam(r, "from", today)
	if err != nil {
		return nil, ErrInvalidDateFormat.WithErr(err)
	}
	to, err := dateQueryParam(r, "to", today.AddDate(1, 0, 0))
	if err != nil {
		return nil, ErrInvalidDateFormat.WithErr(err)
	}
	if to.Before(from) {
		return nil, ErrInvalidBookingDates.WithErr(fmt.Errorf("to must not be before from"))
	}

	ranges, err := a.database.BookingService.GetItemAvailability(r.Context.Request.Context(), itemID, from, to)
	if err != nil {
		return nil, fromDBError(err)
	}

	busy := make([]AvailabilityEntry, 0, len(ranges))
	for _, rng := range ranges {
		busy = append(busy, AvailabilityEntry{
			StartDate: rng.StartDate.Format(time.DateOnly),
			EndDate:   rng.EndDate.Format(time.DateOnly),
			Status:    string(rng.Status),
		})
	}
	return &AvailabilityResponse{
		ItemID: itemID.Hex(),
		From:   db.ToDate(from).Format(time.DateOnly),
		To:     db.ToDate(to).Format(time.DateOnly),
		Busy:   busy,
	}, nil
}

// itemPriceQuoteHandler returns the price breakdown a booking over the given
// dates would be charged, without creating anything.
func (a *API) itemPriceQuoteHandler(r *Request) (interface{}, error) {
	itemID, err := a.itemIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	start, err := dateQueryParam(r, "startDate", time.Time{})
	if err != nil {
		return nil, ErrInvalidDateFormat.WithErr(err)
	}
	end, err := dateQueryParam(r, "endDate", time.Time{})
	if err != nil {
		return nil, ErrInvalidDateFormat.WithErr(err)
	}
	if start.IsZero() || end.IsZero() {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("startDate and endDate are required"))
	}

	item, err := a.database.ItemService.GetItemByID(r.Context.Request.Context(), itemID)
	if err != nil {
		return nil, fromDBError(err)
	}

	quote, err := pricing.Calculate(item.PricePerDay.Decimal, start, end)
	if err != nil {
		return nil, ErrInvalidBookingDates.WithErr(err)
	}
	return &PriceQuoteResponse{
		TotalDays:      quote.TotalDays,
		BaseTotal:      quote.BaseTotal.StringFixed(2),
		DiscountRate:   quote.DiscountRate.String(),
		DiscountAmount: quote.DiscountAmount.StringFixed(2),
		FinalTotal:     quote.FinalTotal.StringFixed(2),
	}, nil
}
