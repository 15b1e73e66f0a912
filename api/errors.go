package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dzrentit/rentit-app-backend/db"
)

// HTTPError represents an error with an HTTP status code
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// WithErr returns a copy of the error with the underlying cause appended to
// the message. The status code is preserved.
func (e *HTTPError) WithErr(err error) *HTTPError {
	return &HTTPError{
		Code:    e.Code,
		Message: fmt.Sprintf("%s: %v", e.Message, err),
	}
}

var (
	// Validation (400)
	ErrInvalidRequestBodyData = &HTTPError{Code: http.StatusBadRequest, Message: "invalid request body data"}
	ErrInvalidJSON            = &HTTPError{Code: http.StatusBadRequest, Message: "invalid json body"}
	ErrInvalidDateFormat      = &HTTPError{Code: http.StatusBadRequest, Message: "dates must be YYYY-MM-DD"}
	ErrInvalidBookingDates    = &HTTPError{Code: http.StatusBadRequest, Message: "invalid booking dates"}
	ErrUnknownField           = &HTTPError{Code: http.StatusBadRequest, Message: "unknown field in update"}

	// Authentication (401)
	ErrUnauthorized = &HTTPError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrWrongLogin   = &HTTPError{Code: http.StatusUnauthorized, Message: "wrong password or email"}

	// Authorization (403)
	ErrActorNotAllowed = &HTTPError{Code: http.StatusForbidden, Message: "actor is not allowed to perform this action"}

	// Not-found (404)
	ErrUserNotFound         = &HTTPError{Code: http.StatusNotFound, Message: "user not found"}
	ErrItemNotFound         = &HTTPError{Code: http.StatusNotFound, Message: "item not found"}
	ErrCategoryNotFound     = &HTTPError{Code: http.StatusNotFound, Message: "category not found"}
	ErrBookingNotFound      = &HTTPError{Code: http.StatusNotFound, Message: "booking not found"}
	ErrConversationNotFound = &HTTPError{Code: http.StatusNotFound, Message: "conversation not found"}

	// Concurrency conflicts (409)
	ErrEmailTaken           = &HTTPError{Code: http.StatusConflict, Message: "email already registered"}
	ErrDuplicateSlug        = &HTTPError{Code: http.StatusConflict, Message: "category slug already exists"}
	ErrBookingDatesConflict = &HTTPError{Code: http.StatusConflict, Message: "booking dates conflict with existing booking"}
	ErrDuplicateReview      = &HTTPError{Code: http.StatusConflict, Message: "review already submitted for this booking"}

	// State conflicts (422)
	ErrItemInactive          = &HTTPError{Code: http.StatusUnprocessableEntity, Message: "item is not active"}
	ErrItemHasActiveBookings = &HTTPError{Code: http.StatusUnprocessableEntity, Message: "item has active bookings"}
	ErrSelfBooking           = &HTTPError{Code: http.StatusUnprocessableEntity, Message: "owners cannot book their own items"}
	ErrInvalidTransition     = &HTTPError{Code: http.StatusUnprocessableEntity, Message: "invalid booking status transition"}
	ErrBookingExpired        = &HTTPError{Code: http.StatusUnprocessableEntity, Message: "booking request has expired"}
	ErrReviewNotEligible     = &HTTPError{Code: http.StatusUnprocessableEntity, Message: "booking is not eligible for review"}
	ErrCategoryCycle         = &HTTPError{Code: http.StatusUnprocessableEntity, Message: "category parent assignment would create a cycle"}

	// Internal (500)
	ErrInternalServerError = &HTTPError{Code: http.StatusInternalServerError, Message: "internal server error"}
)

// dbErrorMap translates store sentinels into coded HTTP errors.
var dbErrorMap = map[error]*HTTPError{
	db.ErrUserNotFound:         ErrUserNotFound,
	db.ErrItemNotFound:         ErrItemNotFound,
	db.ErrCategoryNotFound:     ErrCategoryNotFound,
	db.ErrBookingNotFound:      ErrBookingNotFound,
	db.ErrConversationNotFound: ErrConversationNotFound,

	db.ErrInvalidDateRange: ErrInvalidBookingDates,
	db.ErrInvalidRating:    {Code: http.StatusBadRequest, Message: db.ErrInvalidRating.Error()},
	db.ErrCommentTooShort:  {Code: http.StatusBadRequest, Message: db.ErrCommentTooShort.Error()},
	db.ErrEmptyMessage:     {Code: http.StatusBadRequest, Message: db.ErrEmptyMessage.Error()},

	db.ErrEmailTaken:      ErrEmailTaken,
	db.ErrDuplicateSlug:   ErrDuplicateSlug,
	db.ErrDuplicateReview: ErrDuplicateReview,
	db.ErrBookingOverlap:  ErrBookingDatesConflict,

	db.ErrItemInactive:          ErrItemInactive,
	db.ErrItemHasActiveBookings: ErrItemHasActiveBookings,
	db.ErrSelfBooking:           ErrSelfBooking,
	db.ErrSelfConversation:      {Code: http.StatusUnprocessableEntity, Message: db.ErrSelfConversation.Error()},
	db.ErrInvalidTransition:     ErrInvalidTransition,
	db.ErrBookingExpired:        ErrBookingExpired,
	db.ErrReviewNotEligible:     ErrReviewNotEligible,
	db.ErrCategoryCycle:         ErrCategoryCycle,

	db.ErrNotAuthorized:         ErrActorNotAllowed,
	db.ErrNotBookingParticipant: ErrActorNotAllowed,
}

// fromDBError maps a store error to its HTTP error. Unknown errors become an
// internal server error so nothing unexpected leaks with a misleading code.
func fromDBError(err error) *HTTPError {
	for sentinel, httpErr := range dbErrorMap {
		if errors.Is(err, sentinel) {
			return httpErr
		}
	}
	return ErrInternalServerError.WithErr(err)
}
