package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Replaced in tests.
var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// Options configures SlogManager.Setup.
type Options struct {
	// File receives every record. When nil records go to stdout.
	File  io.Writer
	Level string
	// Provider enables the OpenTelemetry bridge when non-nil.
	Provider *sdklog.LoggerProvider
	// Scope is the OpenTelemetry instrumentation scope name.
	Scope string
	// ExportLevel is the floor for records sent to Provider. Empty exports
	// whatever Level lets through.
	ExportLevel string
	// Context adds dynamic attributes to every record.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger
	zlog   zerolog.Logger
	ready  bool

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system with file and optional OTel output.
func (m *SlogManager) Setup(opts Options) {
	lvl := parseLevel(opts.Level)
	m.logProvider = opts.Provider

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var out io.Writer = osStdout
	if opts.File != nil {
		out = opts.File
	}

	sinks := []Sink{{Handler: slog.NewTextHandler(out, handlerOpts), Level: lvl}}
	if opts.Provider != nil {
		scope := opts.Scope
		if scope == "" {
			scope = "squad-warden"
		}
		export := lvl
		if opts.ExportLevel != "" {
			export = max(lvl, parseLevel(opts.ExportLevel))
		}
		sinks = append(sinks, Sink{
			Handler: otelslog.NewHandler(scope, otelslog.WithLoggerProvider(opts.Provider)),
			Level:   export,
		})
	}

	var h slog.Handler = NewSinkHandler(sinks...)
	if opts.Context != nil {
		h = NewContextHandler(h, opts.Context)
	}

	m.logger = slog.New(h)
	m.zlog = NewZerolog(out, opts.Level)
	m.ready = true
	m.logger.Info("Logging initialized", "level", lvl.String())
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Zerolog returns a zerolog.Logger writing to the same destination, for the
// layers that log through zerolog.
func (m *SlogManager) Zerolog() zerolog.Logger {
	if !m.ready {
		return zerolog.Nop()
	}
	return m.zlog
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
