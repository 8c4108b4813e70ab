// Package log provides structured logging for git-theta-go using zerolog.
//
// Clean/smudge run as git filters; their stdout is the protocol payload, so
// logging there must never touch stdout. The entry points therefore use
// InitFile, which logs to a file under the temp directory (Init with no
// Output writes to stdout), mirroring the original tool's choice to
// log to a temp file because "they don't appear on the console when called
// via git."
package log

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents a log level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// InitFile opens (creating if needed) a log file under the OS temp
// directory and initializes the global logger to write JSON lines to it.
// Used by the filter/diff/merge entry points, which must keep stdout free
// for the protocol payload.
func InitFile(name string, level Level) (*os.File, error) {
	path := filepath.Join(os.TempDir(), name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	Init(Config{Level: level, JSONOutput: true, Output: f})
	return f, nil
}

// WithComponent creates a child logger with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithParam creates a child logger scoped to a parameter name.
func WithParam(name string) zerolog.Logger {
	return Logger.With().Str("param", name).Logger()
}

// WithOid creates a child logger scoped to an object id.
func WithOid(oid string) zerolog.Logger {
	return Logger.With().Str("oid", oid).Logger()
}

// WithCommit creates a child logger scoped to a commit hash.
func WithCommit(commit string) zerolog.Logger {
	return Logger.With().Str("commit", commit).Logger()
}

func Info(msg string) { Logger.Info().Msg(msg) }

func Debug(msg string) { Logger.Debug().Msg(msg) }

func Warn(msg string) { Logger.Warn().Msg(msg) }

func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) { Logger.Error().Err(err).Msg(format) }

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
