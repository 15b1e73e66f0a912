package service

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dzrentit/rentit-app-backend/api"
	"github.com/dzrentit/rentit-app-backend/db"
	"github.com/dzrentit/rentit-app-backend/scheduler"
)

// Service is the main service struct for the API backend.
type Service struct {
	Database  *db.Database
	API       *api.API
	Expirer   *scheduler.Expirer
	Metrics   bool
	jwtSecret string
	debug     bool
}

// Start starts the API service and the booking expirer.
func (s *Service) Start(host string, port int) error {
	a, err := api.New(&api.APIConfig{
		DB:        s.Database,
		JwtSecret: s.jwtSecret,
		Debug:     s.debug,
		Metrics:   s.Metrics,
	})
	if err != nil {
		return err
	}
	s.API = a
	s.API.Start(host, port)

	s.Expirer = scheduler.NewExpirer(s.Database.BookingService, scheduler.DefaultExpireInterval, db.PendingApprovalWindow)
	s.Expirer.Start()

	log.Info().Msgf("api service started at %s:%d", host, port)
	return nil
}

// Close stops the expirer and closes the service database.
func (s *Service) Close() {
	if s.Expirer != nil {
		s.Expirer.Stop()
	}
	if err := s.Database.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

// New creates a new API service. It connects to the database and ensures the
// collections and indexes exist. It also sets the global log level to
// InfoLevel or DebugLevel if debug is true.
// The service must be started with Service.Start().
// The database must be closed with Service.Close().
func New(mongoURI, jwtSecret string, debug bool) (*Service, error) {
	return NewWithClock(mongoURI, jwtSecret, debug, db.RealTimeProvider{})
}

// NewWithClock is New with an injected time source, used by tests to control
// the approval window.
func NewWithClock(mongoURI, jwtSecret string, debug bool, clock db.TimeProvider) (*Service, error) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().Msg("starting app backend")

	database, err := db.NewWithClock(mongoURI, clock)
	if err != nil {
		return nil, err
	}
	if err := database.CreateTables(); err != nil {
		return nil, err
	}
	return &Service{
		Database:  database,
		jwtSecret: jwtSecret,
		debug:     debug,
	}, nil
}
