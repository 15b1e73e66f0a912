package db

import "errors"

// Typed sentinel errors returned by the store. The api package maps each of
// these to an HTTP status; callers match with errors.Is.
var (
	// Not-found
	ErrUserNotFound         = errors.New("user not found")
	ErrItemNotFound         = errors.New("item not found")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrReviewNotFound       = errors.New("review not found")
	ErrConversationNotFound = errors.New("conversation not found")

	// Validation
	ErrInvalidDateRange = errors.New("invalid booking dates")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrCommentTooShort  = errors.New("review comment must be at least 10 characters")
	ErrEmptyMessage     = errors.New("message content must not be empty")

	// Uniqueness conflicts
	ErrEmailTaken      = errors.New("email already registered")
	ErrDuplicateSlug   = errors.New("category slug already exists")
	ErrDuplicateReview = errors.New("review already submitted for this booking")
	ErrBookingOverlap  = errors.New("booking dates conflict with an existing booking")

	// State conflicts
	ErrItemInactive          = errors.New("item is not active")
	ErrItemHasActiveBookings = errors.New("item has active bookings")
	ErrSelfBooking           = errors.New("owners cannot book their own items")
	ErrSelfConversation      = errors.New("cannot open a conversation with yourself")
	ErrInvalidTransition     = errors.New("invalid booking status transition")
	ErrBookingExpired        = errors.New("booking request has expired")
	ErrReviewNotEligible     = errors.New("booking is not eligible for review")
	ErrCategoryCycle         = errors.New("category parent assignment would create a cycle")

	// Authorization
	ErrNotAuthorized         = errors.New("actor is not allowed to perform this action")
	ErrNotBookingParticipant = errors.New("actor is not a participant of this booking")
)
