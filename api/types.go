package api

import (
	"time"

	"github.com/dzrentit/rentit-app-backend/db"
)

// Response is the default response of the API
type Response struct {
	Header ResponseHeader `json:"header"`
	Data   any            `json:"data,omitempty"`
}

// ResponseHeader is the header of the response
type ResponseHeader struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode int    `json:"errorCode,omitempty"`
}

// Register is the request body for the register endpoint.
type Register struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login is the request body for the login endpoint.
type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the JWT pair issued on register, login and refresh.
type LoginResponse struct {
	Token        string    `json:"token"`
	Expirity     time.Time `json:"expirity"`
	RefreshToken string    `json:"refreshToken"`
}

// Refresh is the request body for the refresh endpoint.
type Refresh struct {
	RefreshToken string `json:"refreshToken"`
}

// Profile is the authenticated user's own profile.
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	Location      string    `json:"location,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	RatingAverage *string   `json:"ratingAverage"`
	ReviewCount   int       `json:"reviewCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PublicProfile is the subset of a user's profile visible to everyone.
type PublicProfile struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Location      string  `json:"location,omitempty"`
	RatingAverage *string `json:"ratingAverage"`
	ReviewCount   int     `json:"reviewCount"`
}

// Info is the public summary returned by the info endpoint.
type Info struct {
	Users      int            `json:"users"`
	Categories []*db.Category `json:"categories"`
}

// PaginationInfo carries pagination metadata for list responses.
type PaginationInfo struct {
	Current  int   `json:"current"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
	Pages    int   `json:"pages"`
}

func profileFromUser(user *db.User) *Profile {
	return &Profile{
		ID:            user.ID.Hex(),
		Email:         user.Email,
		Name:          user.Name,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Phone:         user.Phone,
		Bio:           user.Bio,
		Location:      user.Location,
		Avatar:        user.Avatar,
		RatingAverage: ratingString(user.RatingAverage),
		ReviewCount:   user.ReviewCount,
		CreatedAt:     user.CreatedAt,
	}
}

func publicProfileFromUser(user *db.User) *PublicProfile {
	return &PublicProfile{
		ID:            user.ID.Hex(),
		Name:          user.Name,
		Location:      user.Location,
		RatingAverage: ratingString(user.RatingAverage),
		ReviewCount:   user.ReviewCount,
	}
}

// ratingString renders the denormalized average as a 2-decimal string, or
// nil (JSON null) for users without reviews.
func ratingString(rating *db.Money) *string {
	if rating == nil {
		return nil
	}
	s := rating.String()
	return &s
}
