package api

import (
	"encoding/json"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dzrentit/rentit-app-backend/db"
)

// CreateReviewRequest is the request body for reviewing a completed booking.
type CreateReviewRequest struct {
	BookingID string `json:"bookingId"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// ReviewListResponse is a paginated list of reviews.
type ReviewListResponse struct {
	Reviews    []*db.Review   `json:"reviews"`
	Pagination PaginationInfo `json:"pagination"`
}

// RegisterReviewRoutes registers the review routes to the router.
func (a *API) RegisterReviewRoutes(r chi.Router) {
	log.Info().Msg("register route POST /reviews")
	r.Post("/reviews", a.routerHandler(a.createReviewHandler))

	log.Info().Msg("register route GET /users/{userId}/reviews")
	r.Get("/users/{userId}/reviews", a.routerHandler(a.getUserReviewsHandler))
}

// createReviewHandler submits a review for a completed booking the
// authenticated user took part in. The reviewed side follows from the
// reviewer's role in the booking.
func (a *API) createReviewHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}

	req := CreateReviewRequest{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	bookingID, err := primitive.ObjectIDFromHex(req.BookingID)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid bookingId"))
	}

	review, err := a.database.ReviewService.Create(
		r.Context.Request.Context(), userID, bookingID, req.Rating, req.Comment)
	if err != nil {
		return nil, fromDBError(err)
	}
	return review, nil
}

// getUserReviewsHandler lists the reviews received by a user, newest first.
func (a *API) getUserReviewsHandler(r *Request) (interface{}, error) {
	idParam := r.Context.URLParam("userId")
	if idParam == nil {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("missing userId"))
	}
	userID, err := primitive.ObjectIDFromHex(idParam[0])
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid userId"))
	}
	page, err := r.Context.GetPage()
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	reviews, total, err := a.database.ReviewService.GetUserReviews(r.Context.Request.Context(), userID, page)
	if err != nil {
		return nil, fromDBError(err)
	}
	return &ReviewListResponse{
		Reviews:    reviews,
		Pagination: CalculatePagination(page, db.DefaultPageSize, total),
	}, nil
}
