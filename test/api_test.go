package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/dzrentit/rentit-app-backend/api"
	"github.com/dzrentit/rentit-app-backend/db"
	"github.com/dzrentit/rentit-app-backend/test/utils"
)

func registerAndLogin(t *testing.T, s *utils.TestService, name, email string) string {
	t.Helper()
	_, code := s.Request(http.MethodPost, "", &api.Register{
		Name:     name,
		Email:    email,
		Password: "password1234",
	}, "register")
	qt.Assert(t, code, qt.Equals, 200)

	resp, code := s.Request(http.MethodPost, "", &api.Login{
		Email:    email,
		Password: "password1234",
	}, "login")
	qt.Assert(t, code, qt.Equals, 200)

	var login struct {
		Data api.LoginResponse `json:"data"`
	}
	qt.Assert(t, json.Unmarshal(resp, &login), qt.IsNil)
	qt.Assert(t, login.Data.Token, qt.Not(qt.Equals), "")
	return login.Data.Token
}

func decodeData(t *testing.T, body []byte, dst any) {
	t.Helper()
	wrapper := struct {
		Data any `json:"data"`
	}{Data: dst}
	qt.Assert(t, json.Unmarshal(body, &wrapper), qt.IsNil)
}

func TestAuthAndProfile(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	token := registerAndLogin(t, s, "Alice", "alice@test.com")

	// Duplicate registration conflicts.
	_, code := s.Request(http.MethodPost, "", &api.Register{
		Name: "Alice Again", Email: "alice@test.com", Password: "password1234",
	}, "register")
	c.Assert(code, qt.Equals, 409)

	// Wrong password is a 401 that does not leak which part was wrong.
	_, code = s.Request(http.MethodPost, "", &api.Login{
		Email: "alice@test.com", Password: "wrongpassword",
	}, "login")
	c.Assert(code, qt.Equals, 401)

	// No token, no profile.
	_, code = s.Request(http.MethodGet, "", nil, "profile")
	c.Assert(code, qt.Equals, 401)

	var profile api.Profile
	resp, code := s.Request(http.MethodGet, token, nil, "profile")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &profile)
	c.Assert(profile.Email, qt.Equals, "alice@test.com")
	c.Assert(profile.RatingAverage, qt.IsNil)

	// Sparse update with a whitelisted field.
	resp, code = s.Request(http.MethodPost, token, map[string]any{"bio": "tool person"}, "profile")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &profile)
	c.Assert(profile.Bio, qt.Equals, "tool person")

	// Unknown keys fail the whole update.
	_, code = s.Request(http.MethodPost, token, map[string]any{"email": "new@test.com"}, "profile")
	c.Assert(code, qt.Equals, 400)

	// Public profile exposes only the public subset.
	var public api.PublicProfile
	resp, code = s.Request(http.MethodGet, "", nil, "users", profile.ID)
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &public)
	c.Assert(public.Name, qt.Equals, "Alice")
}

func TestBookingFlowOverHTTP(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	ownerToken := registerAndLogin(t, s, "Owner", "owner@test.com")
	renterToken := registerAndLogin(t, s, "Renter", "renter@test.com")

	// Owner lists an item.
	var item struct {
		ID string `json:"id"`
	}
	resp, code := s.Request(http.MethodPost, ownerToken, map[string]any{
		"title":         "cordless drill",
		"condition":     "good",
		"pricePerDay":   "500.00",
		"depositAmount": "50.00",
	}, "items")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &item)
	c.Assert(item.ID, qt.Not(qt.Equals), "")

	// Anyone can quote a price; 8 inclusive days at 500/day is 3600 after
	// the weekly discount.
	var quote api.PriceQuoteResponse
	resp, code = s.Request(http.MethodGet, "", nil,
		"items", item.ID, "price?startDate=2027-01-10&endDate=2027-01-17")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &quote)
	c.Assert(quote.TotalDays, qt.Equals, 8)
	c.Assert(quote.FinalTotal, qt.Equals, "3600.00")

	// Owners cannot book their own items.
	_, code = s.Request(http.MethodPost, ownerToken, &api.CreateBookingRequest{
		ItemID: item.ID, StartDate: "2027-01-10", EndDate: "2027-01-17",
	}, "bookings")
	c.Assert(code, qt.Equals, 422)

	// Malformed dates are a 400.
	_, code = s.Request(http.MethodPost, renterToken, &api.CreateBookingRequest{
		ItemID: item.ID, StartDate: "10/01/2027", EndDate: "2027-01-17",
	}, "bookings")
	c.Assert(code, qt.Equals, 400)

	var booking api.BookingResponse
	resp, code = s.Request(http.MethodPost, renterToken, &api.CreateBookingRequest{
		ItemID: item.ID, StartDate: "2027-01-10", EndDate: "2027-01-17",
	}, "bookings")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &booking)
	c.Assert(booking.BookingStatus, qt.Equals, "PENDING")
	c.Assert(booking.FinalTotal, qt.Equals, "3600.00")

	// Overlapping dates conflict while the request is live.
	otherToken := registerAndLogin(t, s, "Other", "other@test.com")
	_, code = s.Request(http.MethodPost, otherToken, &api.CreateBookingRequest{
		ItemID: item.ID, StartDate: "2027-01-17", EndDate: "2027-01-20",
	}, "bookings")
	c.Assert(code, qt.Equals, 409)

	// Only the owner may approve.
	_, code = s.Request(http.MethodPost, renterToken, nil, "bookings", booking.ID, "approve")
	c.Assert(code, qt.Equals, 403)

	for _, action := range []string{"approve", "request-payment", "complete"} {
		resp, code = s.Request(http.MethodPost, ownerToken, nil, "bookings", booking.ID, action)
		c.Assert(code, qt.Equals, 200, qt.Commentf("action %s", action))
	}
	decodeData(t, resp, &booking)
	c.Assert(booking.BookingStatus, qt.Equals, "COMPLETED")

	// Completed bookings admit no further transitions.
	_, code = s.Request(http.MethodPost, ownerToken, nil, "bookings", booking.ID, "cancel")
	c.Assert(code, qt.Equals, 422)

	// The busy calendar shows the completed range is gone (only active
	// statuses hold dates).
	var availability api.AvailabilityResponse
	resp, code = s.Request(http.MethodGet, "", nil,
		"items", item.ID, "availability?from=2027-01-01&to=2027-02-01")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &availability)
	c.Assert(availability.Busy, qt.HasLen, 0)

	// Review the completed booking and watch the owner's average appear.
	_, code = s.Request(http.MethodPost, renterToken, &api.CreateReviewRequest{
		BookingID: booking.ID, Rating: 5, Comment: "great drill, smooth handover",
	}, "reviews")
	c.Assert(code, qt.Equals, 200)

	// Reviewing twice conflicts.
	_, code = s.Request(http.MethodPost, renterToken, &api.CreateReviewRequest{
		BookingID: booking.ID, Rating: 4, Comment: "changed my mind about it",
	}, "reviews")
	c.Assert(code, qt.Equals, 409)

	var owner api.PublicProfile
	resp, code = s.Request(http.MethodGet, "", nil, "users", booking.OwnerID)
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &owner)
	c.Assert(owner.RatingAverage, qt.IsNotNil)
	c.Assert(*owner.RatingAverage, qt.Equals, "5.00")
	c.Assert(owner.ReviewCount, qt.Equals, 1)
}

func TestConversationsOverHTTP(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	aliceToken := registerAndLogin(t, s, "Alice", "alice@test.com")
	bobToken := registerAndLogin(t, s, "Bob", "bob@test.com")

	var alice, bob api.Profile
	resp, code := s.Request(http.MethodGet, aliceToken, nil, "profile")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &alice)
	resp, code = s.Request(http.MethodGet, bobToken, nil, "profile")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &bob)

	// Opening from both sides converges on one conversation.
	var conversation struct {
		ID string `json:"id"`
	}
	resp, code = s.Request(http.MethodPost, aliceToken,
		&api.OpenConversationRequest{WithUserID: bob.ID}, "conversations")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &conversation)
	firstID := conversation.ID

	resp, code = s.Request(http.MethodPost, bobToken,
		&api.OpenConversationRequest{WithUserID: alice.ID}, "conversations")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &conversation)
	c.Assert(conversation.ID, qt.Equals, firstID)

	// Talking to yourself is refused.
	_, code = s.Request(http.MethodPost, aliceToken,
		&api.OpenConversationRequest{WithUserID: alice.ID}, "conversations")
	c.Assert(code, qt.Equals, 422)

	_, code = s.Request(http.MethodPost, aliceToken,
		&api.SendMessageRequest{Content: "is the ladder free this week?"},
		"conversations", firstID, "messages")
	c.Assert(code, qt.Equals, 200)
	_, code = s.Request(http.MethodPost, aliceToken,
		&api.SendMessageRequest{Content: "   "},
		"conversations", firstID, "messages")
	c.Assert(code, qt.Equals, 400)

	var messages api.MessageListResponse
	resp, code = s.Request(http.MethodGet, bobToken, nil, "conversations", firstID, "messages")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &messages)
	c.Assert(messages.Messages, qt.HasLen, 1)
	c.Assert(messages.Messages[0].IsRead, qt.Equals, false)

	var marked api.MarkReadResponse
	resp, code = s.Request(http.MethodPost, bobToken, nil, "conversations", firstID, "read")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &marked)
	c.Assert(marked.MarkedRead, qt.Equals, int64(1))
}

func TestRefreshTokenOverHTTP(t *testing.T) {
	c := qt.New(t)
	s := utils.NewTestService(t)

	_, code := s.Request(http.MethodPost, "", &api.Register{
		Name: "Alice", Email: "alice@test.com", Password: "password1234",
	}, "register")
	c.Assert(code, qt.Equals, 200)

	resp, code := s.Request(http.MethodPost, "", &api.Login{
		Email: "alice@test.com", Password: "password1234",
	}, "login")
	c.Assert(code, qt.Equals, 200)
	var login struct {
		Data api.LoginResponse `json:"data"`
	}
	c.Assert(json.Unmarshal(resp, &login), qt.IsNil)

	// A refresh token cannot be used as an access token.
	_, code = s.Request(http.MethodGet, login.Data.RefreshToken, nil, "profile")
	c.Assert(code, qt.Equals, 401)

	// But it can be exchanged for a fresh pair.
	resp, code = s.Request(http.MethodPost, "",
		&api.Refresh{RefreshToken: login.Data.RefreshToken}, "refresh")
	c.Assert(code, qt.Equals, 200)
	var refreshed struct {
		Data api.LoginResponse `json:"data"`
	}
	c.Assert(json.Unmarshal(resp, &refreshed), qt.IsNil)

	_, code = s.Request(http.MethodGet, refreshed.Data.Token, nil, "profile")
	c.Assert(code, qt.Equals, 200)

	// Garbage tokens are rejected.
	_, code = s.Request(http.MethodPost, "", &api.Refresh{RefreshToken: "not-a-token"}, "refresh")
	c.Assert(code, qt.Equals, 401)
}

func TestCategoriesReadOnlyOverHTTP(t *testing.T) {
	c := qt.New(t)
	clock := &utils.MockTimeProvider{}
	clock.SetTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := utils.NewTestServiceWithClock(t, clock)

	// Seed a small tree through the store, the way the import command does.
	_, _, _, err := s.Database().CategoryService.ImportCategories(context.Background(), []db.CategorySeed{
		{Name: "Tools", Slug: "tools", Line: 2},
		{Name: "Power Tools", Slug: "power-tools", ParentSlug: "tools", Line: 3},
	}, false)
	c.Assert(err, qt.IsNil)

	var categories []*db.Category
	resp, code := s.Request(http.MethodGet, "", nil, "categories")
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &categories)
	c.Assert(categories, qt.HasLen, 2)

	token := registerAndLogin(t, s, "Alice", "alice@test.com")

	// The tree cannot be changed over the API, even authenticated.
	_, code = s.Request(http.MethodPost, token, map[string]any{"name": "Garden", "slug": "garden"}, "categories")
	c.Assert(code, qt.Equals, 405)
	_, code = s.Request(http.MethodPut, token, map[string]any{"name": "Renamed"}, "categories", fmt.Sprint(categories[0].ID))
	c.Assert(code, qt.Equals, 405)
	_, code = s.Request(http.MethodDelete, token, nil, "categories", fmt.Sprint(categories[0].ID))
	c.Assert(code, qt.Equals, 405)

	all, err := s.Database().CategoryService.GetAllCategories(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 2)

	var category db.Category
	resp, code = s.Request(http.MethodGet, "", nil, "categories", fmt.Sprint(categories[1].ID))
	c.Assert(code, qt.Equals, 200)
	decodeData(t, resp, &category)
	c.Assert(category.Slug, qt.Equals, "power-tools")
	c.Assert(*category.ParentID, qt.Equals, categories[0].ID)
}
