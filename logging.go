package surge

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog.Logger with the small set of fields this
// subsystem emits (SPEC_FULL.md ambient "Logging" section), grounded on
// EthanHeilman-bzero's bzerolib logger usage of rs/zerolog.
type Logger struct {
	z zerolog.Logger
}

// NewLogger builds a Logger writing to stderr at level, or to a
// lumberjack-rotated file when filePath is non-empty.
func NewLogger(level string, filePath string) *Logger {
	var w io.Writer = os.Stderr
	if filePath != "" {
		w = &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	z := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
	return &Logger{z: z}
}

// NopLogger returns a Logger that discards everything, the default for a
// Client that didn't configure one (matches zerolog.Nop() idiom so
// library consumers don't get unsolicited output).
func NopLogger() *Logger {
	return &Logger{z: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Event logs one structured line with the connection/generation/state
// fields; the manager emits it on entry into Connected, on each scheduled
// reconnect, and on entry into Failed.
func (l *Logger) Event(level zerolog.Level, connID string, generation uint64, state, event string) *zerolog.Event {
	if l == nil {
		l = NopLogger()
	}
	return l.z.WithLevel(level).
		Str("conn_id", connID).
		Uint64("generation", generation).
		Str("state", state).
		Str("event", event)
}

// Debugf logs a routine-dispatch-level message with no structured
// fields, used for paths that don't have connection context yet.
func (l *Logger) Debugf(msg string) {
	if l == nil {
		l = NopLogger()
	}
	l.z.Debug().Msg(msg)
}
