package main

import (
	"context"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dzrentit/rentit-app-backend/db"
)

// expirebookings runs a single expiry sweep: PENDING bookings older than the
// given number of hours are cancelled. With --dry-run it only reports how
// many would be. Meant for cron or one-off operation; the API server runs
// the same sweep periodically on its own.
func main() {
	flag.String("mongo", "mongodb://localhost:27017", "sets the mongo URI")
	flag.Int("hours", 48, "age in hours beyond which pending bookings expire")
	flag.Bool("dry-run", false, "only report what would be expired")
	flag.Bool("debug", false, "sets log level to debug")

	flag.Parse()

	viper.SetEnvPrefix("RENTIT")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	mongoURI := viper.GetString("mongo")
	hours := viper.GetInt("hours")
	dryRun := viper.GetBool("dry-run")
	debug := viper.GetBool("debug")

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if hours <= 0 {
		log.Fatal().Msgf("invalid hours value %d", hours)
	}

	database, err := db.New(mongoURI)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to the database")
	}
	defer func() {
		if err := database.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	window := time.Duration(hours) * time.Hour
	expired, err := database.BookingService.ExpirePendingBookings(context.Background(), window, dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to expire pending bookings")
	}

	if dryRun {
		log.Info().Int64("candidates", expired).Msgf("dry run: %d pending bookings older than %s would be cancelled", expired, window)
		return
	}
	log.Info().Int64("expired", expired).Msgf("cancelled %d pending bookings older than %s", expired, window)
}
