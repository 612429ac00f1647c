package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultMaxBytes = 64 << 20 // 64 MiB per log file

// Setup configures the global zerolog logger. When logFile is non-empty,
// JSON lines go to a rotating file; otherwise a console writer on stderr.
// The returned closer flushes and closes the file writer, if any.
func Setup(level, logFile string) (io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if logFile == "" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
		return nopCloser{}, nil
	}

	w, err := NewRotatingWriter(logFile, defaultMaxBytes)
	if err != nil {
		return nil, err
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
