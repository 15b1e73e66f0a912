package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/rs/zerolog/log"

	"github.com/dzrentit/rentit-app-backend/db"
)

const (
	jwtExpiration     = 24 * time.Hour  // access tokens
	refreshExpiration = 720 * time.Hour // refresh tokens, 30 days
	passwordSalt      = "rentit"        // salt for password hashing
)

// APIConfig holds the dependencies and settings of the HTTP API.
type APIConfig struct {
	DB        *db.Database
	JwtSecret string
	Debug     bool
	Metrics   bool
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	Router   *chi.Mux
	auth     *jwtauth.JWTAuth
	database *db.Database
	metrics  bool
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	a := &API{
		auth:     jwtauth.New("HS256", []byte(conf.JwtSecret), nil),
		database: conf.DB,
		metrics:  conf.Metrics,
	}
	a.Router = a.router()
	return a, nil
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start(host string, port int) {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", host, port), a.Router); err != nil {
			log.Fatal().Err(err).Msg("failed to start api router")
		}
	}()
}

// Close closes the API service database.
func (a *API) Close() {
	if err := a.database.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

// router creates the router with all the routes and middleware.
func (a *API) router() *chi.Mux {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 30*time.Second))
	r.Use(middleware.Timeout(30 * time.Second))
	if a.metrics {
		usePrometheusMetrics(r)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		// Seek, verify and validate JWT tokens
		r.Use(jwtauth.Verifier(a.auth))

		// Handle valid JWT tokens.
		r.Use(a.authenticator)

		// Register domain-specific routes
		a.RegisterUserRoutes(r)
		a.RegisterItemRoutes(r)
		a.RegisterBookingRoutes(r)
		a.RegisterReviewRoutes(r)
		a.RegisterMessageRoutes(r)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Error().Err(err).Msg("failed to write response")
			}
		})

		// Register public domain-specific routes
		a.RegisterPublicUserRoutes(r)
		a.RegisterPublicCategoryRoutes(r)
		a.RegisterPublicItemRoutes(r)

		// Info route
		log.Info().Msg("register route GET /info")
		r.Get("/info", a.routerHandler(a.infoHandler))
	})

	return r
}

// info handler returns the basic info about the API.
func (a *API) infoHandler(r *Request) (interface{}, error) {
	ctx := r.Context.Request.Context()

	userCount, err := a.database.UserService.CountUsers(ctx)
	if err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to count users: %w", err))
	}

	categories, err := a.database.CategoryService.GetAllCategories(ctx)
	if err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to get categories: %w", err))
	}

	return &Info{
		Users:      int(userCount),
		Categories: categories,
	}, nil
}
