package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgroy10/excel-to-image-api/internal/config"
)

const serviceName = "excel-to-image-api"

// New builds the service logger. Format "console" is for local runs;
// anything else emits JSON lines.
func New(cfg config.LoggerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}
