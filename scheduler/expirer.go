package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dzrentit/rentit-app-backend/db"
)

// DefaultExpireInterval is how often the expirer sweeps for stale requests.
const DefaultExpireInterval = 10 * time.Minute

// Expirer periodically cancels PENDING bookings whose approval window has
// passed. Each sweep is idempotent, so running several expirers against the
// same database is safe.
type Expirer struct {
	bookings *db.BookingService
	interval time.Duration
	window   time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewExpirer creates an expirer sweeping every interval for PENDING bookings
// older than window.
func NewExpirer(bookings *db.BookingService, interval, window time.Duration) *Expirer {
	if interval <= 0 {
		interval = DefaultExpireInterval
	}
	if window <= 0 {
		window = db.PendingApprovalWindow
	}
	return &Expirer{
		bookings: bookings,
		interval: interval,
		window:   window,
	}
}

// Start launches the sweep loop in a background goroutine. An initial sweep
// runs immediately so stale requests do not survive a restart by interval.
func (e *Expirer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		e.sweep(ctx)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweep(ctx)
			}
		}
	}()
	log.Info().
		Dur("interval", e.interval).
		Dur("window", e.window).
		Msg("booking expirer started")
}

// Stop terminates the sweep loop and waits for a running sweep to finish.
func (e *Expirer) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	log.Info().Msg("booking expirer stopped")
}

func (e *Expirer) sweep(ctx context.Context) {
	expired, err := e.bookings.ExpirePendingBookings(ctx, e.window, false)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("failed to expire pending bookings")
		return
	}
	if expired > 0 {
		log.Info().Int64("expired", expired).Msg("cancelled expired booking requests")
	}
}
