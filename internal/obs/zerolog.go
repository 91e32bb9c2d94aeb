package obs

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger forwards log lines to a zerolog.Logger.
type ZerologLogger struct {
	L zerolog.Logger
}

// NewZerologLogger writes JSON lines to w, or human readable lines when
// console is true. Lines below min are dropped. Writes to w are
// serialized.
func NewZerologLogger(w io.Writer, min Level, console bool) ZerologLogger {
	w = zerolog.SyncWriter(w)
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).Level(zerologLevel(min)).With().Timestamp().Logger()
	return ZerologLogger{L: l}
}

func (z ZerologLogger) Logf(level Level, format string, args ...interface{}) {
	z.L.WithLevel(zerologLevel(level)).Msgf(format, args...)
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}
