package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pixelbar/ledcontrol/internal/app"
	"github.com/pixelbar/ledcontrol/internal/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load configuration")
	}

	setupLogging(&cfg.Log)

	log.Info().Str("config", configPath).Msg("Starting ledcontrold")

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot build application")
	}

	// Runs until a signal arrives or a service dies.
	ctx := app.SignalContext()
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Cannot start application")
	}
	application.Wait()

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

func setupLogging(cfg *config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.UseJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !cfg.Colors,
		})
	}

	level, err := zerolog.ParseLevel(cfg.GetLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
