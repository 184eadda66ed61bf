// Package obslog constructs the process-wide zerolog.Logger used by every
// component, generalizing the teacher's bare log.Printf calls into
// structured, level-aware logging (see SPEC_FULL.md §10.1). No component
// reaches for a package-level logger; each is handed a logger by its
// constructor, matching the teacher's dependency-injection discipline
// (internal/capture.NewCircuitBreaker takes an emitEvent func rather than
// reaching for a global).
package obslog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a logger at the given level. levelName accepts zerolog level
// names (trace, debug, info, warn, error) case-insensitively; an unknown
// or empty name falls back to info. When out is a terminal, output is
// human-readable console text; otherwise (e.g. piped to a log collector)
// it is newline-delimited JSON.
func New(levelName string, out *os.File) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w io.Writer = out
	if isTerminal(out) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// FromEnv resolves the level from LOG_LEVEL, falling back to RUST_LOG for
// compatibility with the original collaborator's env convention (§6),
// then to "info".
func FromEnv() zerolog.Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = os.Getenv("RUST_LOG")
	}
	if level == "" {
		level = "info"
	}
	return New(level, os.Stderr)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
