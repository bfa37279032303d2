package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initOnce     sync.Once
)

// InitLogger initializes the global structured logger.
// Only the first call has any effect.
func InitLogger(level string, pretty bool) {
	initOnce.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(level))

		var out io.Writer = os.Stdout
		if pretty {
			out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		globalLogger = zerolog.New(out).With().Timestamp().Str("service", "barberbot").Logger()
		log.Logger = globalLogger
	})
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the global logger, initializing it with defaults if needed
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	return globalLogger
}

// ForComponent returns a logger tagged with a component name
func ForComponent(component string) zerolog.Logger {
	return GetLogger().With().Str("component", component).Logger()
}

// ForCall returns a per-call logger carrying the carrier call id and a fresh correlation id
func ForCall(callSID string) zerolog.Logger {
	return GetLogger().With().
		Str("component", "call").
		Str("call_sid", callSID).
		Str("correlation_id", NewCorrelationID()).
		Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
