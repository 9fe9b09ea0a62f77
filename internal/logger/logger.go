package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance. Starts as a plain stderr logger so that component
	// loggers created before Initialize still write somewhere.
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Initialize sets up the global logger with a human-readable console writer on stdout.
func Initialize(logLevel string) {
	InitializeWithWriter(logLevel, zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	})
}

// InitializeWithWriter sets up the global logger writing to w.
func InitializeWithWriter(logLevel string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	Logger = zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(parseLevel(logLevel))

	// Replace standard log with zerolog
	log.Logger = Logger
}

func parseLevel(logLevel string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering.
// Call it from constructors rather than package init so it picks up Initialize.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a writer to a log file, e.g. for a zerolog.MultiLevelWriter
// alongside the console.
func FileWriter(path string) (io.Writer, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
