package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if pretty {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	// Set global logger
	Log = log.With().
		Str("service", "sessionforge").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("Logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Store creates a logger for the Store subsystem
func Store() *zerolog.Logger { return component("store") }

// Provider creates a logger for a ProviderDriver backend
func Provider(backend string) *zerolog.Logger {
	l := Log.With().Str("component", "provider").Str("backend", backend).Logger()
	return &l
}

// Billing creates a logger for the billing engine
func Billing() *zerolog.Logger { return component("billing") }

// Manager creates a logger for the session manager
func Manager() *zerolog.Logger { return component("manager") }

// Monitor creates a logger for the session monitor
func Monitor() *zerolog.Logger { return component("monitor") }

// Shell creates a logger for interactive shell bridging
func Shell() *zerolog.Logger { return component("shell") }

// Server creates a logger for process bootstrap and shutdown
func Server() *zerolog.Logger { return component("server") }
