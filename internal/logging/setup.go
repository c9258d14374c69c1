package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/blankon/submission-relay/internal/config"
)

// Setup configures the global logger: console on stderr, plus a rotated JSON
// file when a log file is configured. The returned logger is the global one.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return log.Logger, fmt.Errorf("failed to create log directory: %w", err)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		writer = io.MultiWriter(writer, fileWriter)
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()

	if cfg.File != "" {
		log.Info().Str("file", cfg.File).Str("level", level.String()).Msg("File logging initialized")
	}

	return log.Logger, nil
}
