// Package logging configures the process logger.
package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLevel maps a level name to a zerolog level. Accepts zerolog's own
// names plus "verbose" (trace) and "critical" (fatal).
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "verbose":
		return zerolog.TraceLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

// New creates a logger writing to w, filtered at the given level. Every
// record carries a timestamp and the caller's file basename:line.
func New(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Caller().Logger(), nil
}

// Console wraps w in zerolog's human-readable console format, for
// interactive use.
func Console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w}
}
