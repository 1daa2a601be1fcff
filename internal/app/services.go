package app

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pixelbar/ledcontrol/internal/api"
	"github.com/pixelbar/ledcontrol/internal/config"
	"github.com/pixelbar/ledcontrol/internal/controller"
	"github.com/pixelbar/ledcontrol/internal/db"
	"github.com/pixelbar/ledcontrol/internal/frame"
	"github.com/pixelbar/ledcontrol/internal/preset"
	"github.com/pixelbar/ledcontrol/internal/serialport"
)

// Services is a container for all application services. It manages service
// initialization order and dependencies.
type Services struct {
	cfg *config.Config

	DB         *db.DB
	Presets    *preset.Store
	Controller *controller.Controller
	API        *api.Server
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize preset database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Presets = preset.NewStore(database.DB)

	// Resolve the encoding profile for this deployment's firmware
	profile, err := frame.ByName(cfg.LEDs.Profile)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Resolve the serial device
	device := cfg.Serial.Device
	if cfg.Serial.Autodetect {
		if detected, err := serialport.Detect(); err == nil {
			device = detected
			log.Info().Str("device", device).Msg("Detected serial device")
		} else {
			log.Warn().Err(err).Str("device", device).Msg("Autodetect failed, using configured device")
		}
	}

	transport := serialport.New(cfg.Serial.WriteTimeout.Duration())
	s.Controller = controller.New(transport, controller.Config{
		Device:    device,
		Baud:      cfg.Serial.Baud,
		Groups:    len(cfg.LEDs.Groups),
		Profile:   profile,
		RateLimit: rate.Limit(cfg.LEDs.RateLimitFPS),
	})

	s.API = api.NewServer(cfg.Server.Host, cfg.Server.Port, s.Controller, s.Presets, cfg.LEDs.Groups)

	return s, nil
}

// Start launches the long-running services. The API server runs until ctx is
// cancelled; if it dies on its own (a failed listen, most likely), onFatalError
// is invoked so the daemon shuts down instead of idling without an HTTP
// surface.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	go func() {
		if err := s.API.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
			onFatalError(err)
		}
	}()
	return nil
}

// Stop releases the serial link and the database.
func (s *Services) Stop() error {
	if s.Controller != nil {
		if err := s.Controller.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close serial link")
		}
	}
	s.Close()
	return nil
}

// Close releases resources acquired during initialization.
func (s *Services) Close() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
