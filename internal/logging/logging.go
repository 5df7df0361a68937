package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// NewZerolog builds a plain-text zerolog.Logger at the given level. Unknown
// levels fall back to info.
func NewZerolog(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
