package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Builds the process logger. Console output for dev, JSON otherwise.
func New(w io.Writer, level string, console bool) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if console {
		w = zerolog.ConsoleWriter{Out: w}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
