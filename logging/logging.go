// Package logging sends zerolog output to a file so it never draws over the
// terminal UI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup points the global logger at path and sets the level. The returned
// closer flushes and closes the file. An empty path discards log output.
func Setup(path string, level zerolog.Level) (io.Closer, error) {
	zerolog.SetGlobalLevel(level)

	if path == "" {
		log.Logger = zerolog.New(io.Discard)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	log.Logger = New(f)
	log.Info().Str("logFile", path).Str("level", level.String()).Msg("logging to file")
	return f, nil
}

// New returns a plain-text logger writing to w
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).With().Timestamp().Logger()
}
