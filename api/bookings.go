package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dzrentit/rentit-app-backend/db"
)

// CreateBookingRequest is the request body for requesting a booking. Dates
// are YYYY-MM-DD and inclusive on both ends.
type CreateBookingRequest struct {
	ItemID    string `json:"itemId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// BookingListResponse is a paginated list of bookings.
type BookingListResponse struct {
	Bookings   []*BookingResponse `json:"bookings"`
	Pagination PaginationInfo     `json:"pagination"`
}

// BookingResponse is the wire representation of a booking.
type BookingResponse struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"itemId"`
	RenterID       string    `json:"renterId"`
	OwnerID        string    `json:"ownerId"`
	StartDate      string    `json:"startDate"`
	EndDate        string    `json:"endDate"`
	BookingStatus  string    `json:"bookingStatus"`
	TotalDays      int       `json:"totalDays"`
	BaseTotal      string    `json:"baseTotal"`
	DiscountRate   string    `json:"discountRate"`
	DiscountAmount string    `json:"discountAmount"`
	FinalTotal     string    `json:"finalTotal"`
	DepositAmount  string    `json:"depositAmount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// bookingActions maps the action path segment to the target status of the
// booking state machine.
var bookingActions = map[string]db.BookingStatus{
	"approve":         db.BookingStatusApproved,
	"reject":          db.BookingStatusRejected,
	"cancel":          db.BookingStatusCancelled,
	"request-payment": db.BookingStatusPaymentPending,
	"complete":        db.BookingStatusCompleted,
}

// RegisterBookingRoutes registers the booking routes to the router.
func (a *API) RegisterBookingRoutes(r chi.Router) {
	log.Info().Msg("register route POST /bookings")
	r.Post("/bookings", a.routerHandler(a.createBookingHandler))

	log.Info().Msg("register route GET /bookings")
	r.Get("/bookings", a.routerHandler(a.getBookingsHandler))

	log.Info().Msg("register route GET /bookings/{bookingId}")
	r.Get("/bookings/{bookingId}", a.routerHandler(a.getBookingHandler))

	log.Info().Msg("register route POST /bookings/{bookingId}/{action}")
	r.Post("/bookings/{bookingId}/{action}", a.routerHandler(a.bookingActionHandler))
}

func (a *API) bookingIDFromRequest(r *Request) (primitive.ObjectID, error) {
	idParam := r.Context.URLParam("bookingId")
	if idParam == nil {
		return primitive.NilObjectID, fmt.Errorf("missing bookingId")
	}
	return primitive.ObjectIDFromHex(idParam[0])
}

func bookingToResponse(booking *db.Booking) *BookingResponse {
	return &BookingResponse{
		ID:             booking.ID.Hex(),
		ItemID:         booking.ItemID.Hex(),
		RenterID:       booking.RenterID.Hex(),
		OwnerID:        booking.OwnerID.Hex(),
		StartDate:      booking.StartDate.Format(time.DateOnly),
		EndDate:        booking.EndDate.Format(time.DateOnly),
		BookingStatus:  string(booking.BookingStatus),
		TotalDays:      booking.TotalDays,
		BaseTotal:      booking.BaseTotal.String(),
		DiscountRate:   booking.DiscountRate.Decimal.String(),
		DiscountAmount: booking.DiscountAmount.String(),
		FinalTotal:     booking.FinalTotal.String(),
		DepositAmount:  booking.DepositAmount.String(),
		CreatedAt:      booking.CreatedAt,
		UpdatedAt:      booking.UpdatedAt,
	}
}

// createBookingHandler requests a new booking for the authenticated user as
// renter. The booking starts in PENDING, awaiting owner approval.
func (a *API) createBookingHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}

	req := CreateBookingRequest{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	itemID, err := primitive.ObjectIDFromHex(req.ItemID)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid itemId"))
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return nil, ErrInvalidDateFormat.WithErr(err)
	}
	end, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		return nil, ErrInvalidDateFormat.WithErr(err)
	}

	booking, err := a.database.BookingService.Create(r.Context.Request.Context(), userID, &db.CreateBookingRequest{
		ItemID:    itemID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return nil, fromDBError(err)
	}
	return bookingToResponse(booking), nil
}

// getBookingsHandler lists the authenticated user's bookings, filtered by
// the user's role (renter, owner, or both).
func (a *API) getBookingsHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	page, err := r.Context.GetPage()
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	role := db.BookingRoleBoth
	if param := r.Context.URLParam("role"); param != nil {
		switch db.BookingRole(param[0]) {
		case db.BookingRoleRenter:
			role = db.BookingRoleRenter
		case db.BookingRoleOwner:
			role = db.BookingRoleOwner
		case db.BookingRoleBoth:
			role = db.BookingRoleBoth
		default:
			return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid role %q", param[0]))
		}
	}

	bookings, total, err := a.database.BookingService.GetUserBookings(r.Context.Request.Context(), userID, role, page)
	if err != nil {
		return nil, fromDBError(err)
	}

	responses := make([]*BookingResponse, len(bookings))
	for i, booking := range bookings {
		responses[i] = bookingToResponse(booking)
	}
	return &BookingListResponse{
		Bookings:   responses,
		Pagination: CalculatePagination(page, db.DefaultPageSize, total),
	}, nil
}

// getBookingHandler returns a booking. Only its renter and owner may see it.
func (a *API) getBookingHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	bookingID, err := a.bookingIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	booking, err := a.database.BookingService.Get(r.Context.Request.Context(), bookingID)
	if err != nil {
		return nil, fromDBError(err)
	}
	if booking.RenterID != userID && booking.OwnerID != userID {
		return nil, ErrActorNotAllowed
	}
	return bookingToResponse(booking), nil
}

// bookingActionHandler moves a booking through the state machine on behalf
// of the authenticated user. The action segment names the target state.
func (a *API) bookingActionHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	bookingID, err := a.bookingIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	actionParam := r.Context.URLParam("action")
	if actionParam == nil {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("missing action"))
	}
	target, ok := bookingActions[actionParam[0]]
	if !ok {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("unknown action %q", actionParam[0]))
	}

	booking, err := a.database.BookingService.Transition(r.Context.Request.Context(), bookingID, userID, target)
	if err != nil {
		return nil, fromDBError(err)
	}
	return bookingToResponse(booking), nil
}
