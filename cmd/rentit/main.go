package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rs/zerolog/log"

	"github.com/dzrentit/rentit-app-backend/service"
)

func main() {
	flag.Bool("debug", false, "sets log level to debug")
	flag.Int("port", 3333, "sets the port to listen on")
	flag.String("host", "0.0.0.0", "sets the host to listen on")
	flag.String("secret", "", "sets the secret for JWT")
	flag.String("mongo", "mongodb://localhost:27017", "sets the mongo URI")
	flag.Bool("metrics", false, "enables the prometheus metrics endpoint")

	flag.Parse()

	// Initialize Viper
	viper.SetEnvPrefix("RENTIT")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	secret := viper.GetString("secret")
	debug := viper.GetBool("debug")
	metrics := viper.GetBool("metrics")
	mongoURI := viper.GetString("mongo")

	// if no secret is provided, generate a random one
	if secret == "" {
		sb := make([]byte, 32)
		if _, err := rand.Read(sb); err != nil {
			log.Fatal().Err(err).Msg("failed to generate random secret")
		}
		secret = fmt.Sprintf("%x", sb)
		log.Warn().Msgf("no secret provided, using %s", secret)
	}

	log.Info().Msgf("connecting to database at %s", mongoURI)
	s, err := service.New(mongoURI, secret, debug)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create service")
	}
	defer s.Close()
	s.Metrics = metrics

	if err := s.Start(host, port); err != nil {
		log.Fatal().Err(err).Msg("failed to start service")
	}

	log.Info().Msg("startup complete")

	// close if interrupt received
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Warn().Msgf("received SIGTERM, exiting at %s", time.Now().Format(time.RFC850))
}
