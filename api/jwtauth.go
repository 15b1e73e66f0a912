package api

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// authHandler is a handler that authenticates the user and returns a JWT token.
// If successful, the user identifier is added to the HTTP header as `X-User-Id`,
// so that it can be used by the next handlers.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}

		if err := jwt.Validate(token, jwt.WithRequiredClaim("userId")); err != nil {
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		// Refresh tokens can only be exchanged, never used for API calls.
		if tokenType, ok := claims["type"].(string); ok && tokenType == "refresh" {
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		// Retrieve the `userId` from the claims and add it to the HTTP header
		r.Header.Add("X-User-Id", claims["userId"].(string))
		// Token is authenticated, pass it through
		next.ServeHTTP(w, r)
	})
}

// makeToken creates the JWT token pair for the given user identifier.
// Both tokens are signed with the API secret, following the JWT specification.
// The access token is valid for jwtExpiration, the refresh token for
// refreshExpiration.
func (a *API) makeToken(id string) (*LoginResponse, error) {
	lr := LoginResponse{}
	lr.Expirity = time.Now().Add(jwtExpiration)

	access, err := a.encodeToken(map[string]interface{}{
		"userId":          id,
		jwt.ExpirationKey: lr.Expirity.Unix(),
	})
	if err != nil {
		return nil, err
	}
	lr.Token = access

	refresh, err := a.encodeToken(map[string]interface{}{
		"userId":          id,
		"type":            "refresh",
		jwt.ExpirationKey: time.Now().Add(refreshExpiration).Unix(),
	})
	if err != nil {
		return nil, err
	}
	lr.RefreshToken = refresh
	return &lr, nil
}

func (a *API) encodeToken(claims map[string]interface{}) (string, error) {
	j := jwt.New()
	for key, value := range claims {
		if err := j.Set(key, value); err != nil {
			return "", ErrInternalServerError.WithErr(fmt.Errorf("failed to set %s claim: %w", key, err))
		}
	}
	jmap, err := j.AsMap(context.Background())
	if err != nil {
		return "", ErrInternalServerError.WithErr(fmt.Errorf("failed to convert token to map: %w", err))
	}
	_, token, err := a.auth.Encode(jmap)
	if err != nil {
		return "", ErrInternalServerError.WithErr(fmt.Errorf("failed to encode token: %w", err))
	}
	return token, nil
}

// validateRefreshToken decodes a refresh token and returns the user id it
// was issued for.
func (a *API) validateRefreshToken(tokenString string) (string, error) {
	token, err := a.auth.Decode(tokenString)
	if err != nil {
		return "", ErrUnauthorized
	}
	if err := jwt.Validate(token, jwt.WithRequiredClaim("userId"), jwt.WithRequiredClaim("type")); err != nil {
		return "", ErrUnauthorized
	}
	claims, err := token.AsMap(context.Background())
	if err != nil {
		return "", ErrUnauthorized
	}
	if tokenType, ok := claims["type"].(string); !ok || tokenType != "refresh" {
		return "", ErrUnauthorized
	}
	userID, ok := claims["userId"].(string)
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}

func hashPassword(password string) []byte {
	return sha256.New().Sum([]byte(passwordSalt + password))
}
