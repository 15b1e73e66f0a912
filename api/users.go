package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dzrentit/rentit-app-backend/db"
)

// userUpdatableFields are the only profile fields the update endpoint
// accepts. Any other key in the request body is rejected.
var userUpdatableFields = map[string]bool{
	"firstName": true,
	"lastName":  true,
	"phone":     true,
	"bio":       true,
	"location":  true,
	"avatar":    true,
}

// RegisterPublicUserRoutes registers the public user routes to the router.
func (a *API) RegisterPublicUserRoutes(r chi.Router) {
	log.Info().Msg("register route POST /register")
	r.Post("/register", a.routerHandler(a.registerHandler))

	log.Info().Msg("register route POST /login")
	r.Post("/login", a.routerHandler(a.loginHandler))

	log.Info().Msg("register route POST /refresh")
	r.Post("/refresh", a.routerHandler(a.refreshHandler))

	log.Info().Msg("register route GET /users/{userId}")
	r.Get("/users/{userId}", a.routerHandler(a.publicProfileHandler))
}

// RegisterUserRoutes registers the authenticated user routes to the router.
func (a *API) RegisterUserRoutes(r chi.Router) {
	log.Info().Msg("register route GET /profile")
	r.Get("/profile", a.routerHandler(a.profileHandler))

	log.Info().Msg("register route POST /profile")
	r.Post("/profile", a.routerHandler(a.updateProfileHandler))
}

// registerHandler creates a new user account and returns a JWT token pair.
func (a *API) registerHandler(r *Request) (interface{}, error) {
	req := Register{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	if len(req.Password) < 8 {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("password must be at least 8 characters"))
	}

	user := &db.User{
		Email:    req.Email,
		Name:     req.Name,
		Password: hashPassword(req.Password),
		Active:   true,
	}
	if err := user.Validate(); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	result, err := a.database.UserService.InsertUser(r.Context.Request.Context(), user)
	if err != nil {
		return nil, fromDBError(err)
	}
	id := result.InsertedID.(primitive.ObjectID)

	token, err := a.makeToken(id.Hex())
	if err != nil {
		return nil, err
	}
	return token, nil
}

// loginHandler validates the credentials and returns a JWT token pair.
func (a *API) loginHandler(r *Request) (interface{}, error) {
	req := Login{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	user, err := a.database.UserService.GetUserByEmail(r.Context.Request.Context(), req.Email)
	if err != nil {
		// Do not reveal whether the email exists.
		return nil, ErrWrongLogin
	}
	if !bytes.Equal(user.Password, hashPassword(req.Password)) {
		return nil, ErrWrongLogin
	}

	token, err := a.makeToken(user.ID.Hex())
	if err != nil {
		return nil, err
	}
	return token, nil
}

// refreshHandler exchanges a valid refresh token for a fresh token pair.
func (a *API) refreshHandler(r *Request) (interface{}, error) {
	req := Refresh{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	userID, err := a.validateRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	// The user must still exist and be active.
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := a.database.UserService.GetUserByID(r.Context.Request.Context(), oid)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if !user.Active {
		return nil, ErrUnauthorized
	}

	token, err := a.makeToken(user.ID.Hex())
	if err != nil {
		return nil, err
	}
	return token, nil
}

// profileHandler returns the authenticated user's own profile.
func (a *API) profileHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	user, err := a.database.UserService.GetUserByID(r.Context.Request.Context(), userID)
	if err != nil {
		return nil, fromDBError(err)
	}
	return profileFromUser(user), nil
}

// updateProfileHandler applies a sparse update to the authenticated user's
// profile. Only whitelisted fields are accepted; unknown keys fail the whole
// request so typos do not get silently dropped.
func (a *API) updateProfileHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
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
		if !userUpdatableFields[key] {
			return nil, ErrUnknownField.WithErr(fmt.Errorf("field %q is not updatable", key))
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("field %q must be a string", key))
		}
		update[key] = value
	}

	ctx := r.Context.Request.Context()
	if _, err := a.database.UserService.UpdateUser(ctx, userID, update); err != nil {
		return nil, fromDBError(err)
	}
	user, err := a.database.UserService.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fromDBError(err)
	}
	return profileFromUser(user), nil
}

// publicProfileHandler returns the public subset of any user's profile.
func (a *API) publicProfileHandler(r *Request) (interface{}, error) {
	idParam := r.Context.URLParam("userId")
	if idParam == nil {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("missing userId"))
	}
	userID, err := primitive.ObjectIDFromHex(idParam[0])
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid userId"))
	}

	user, err := a.database.UserService.GetUserByID(r.Context.Request.Context(), userID)
	if err != nil {
		return nil, fromDBError(err)
	}
	return publicProfileFromUser(user), nil
}
