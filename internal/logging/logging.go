// Package logging configures the process-wide zerolog logger and hands out
// component-scoped child loggers.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Options controls process-wide logger construction.
type Options struct {
	// Debug enables debug-level logging and a human-readable console writer.
	// When false, logs are emitted as newline-delimited JSON suitable for
	// a log aggregator or `launchd` redirecting stdout to a file.
	Debug bool

	// Output overrides the destination writer. Defaults to os.Stderr.
	Output io.Writer
}

// Init configures the package-wide base logger. Call once at startup before
// any WithComponent calls that matter for output formatting.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(level)

	mu.Lock()
	base = zerolog.New(out).With().Timestamp().Logger()
	mu.Unlock()
}

// WithComponent returns a child logger tagged with the given component name,
// the same pattern used throughout the daemon's predecessor: every store,
// poller, and client keeps its own `log zerolog.Logger` field set at
// construction time rather than threading a logger through every call.
func WithComponent(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", name).Logger()
}
