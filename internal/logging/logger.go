// Package logging provides the zerolog-backed structured logger shared
// by the sampler and postprocessor binaries, adapted from the teacher's
// reporting.Logger wrapper.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level names accepted by New.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format controls console vs JSON rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures a Logger.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger wraps a zerolog.Logger with the sampler's field conventions.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from cfg, defaulting to stderr/info/text.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var out io.Writer = cfg.Output
	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339, NoColor: false}
	}

	z := zerolog.New(out).With().Timestamp().Logger()
	switch cfg.Level {
	case LevelDebug:
		z = z.Level(zerolog.DebugLevel)
	case LevelWarn:
		z = z.Level(zerolog.WarnLevel)
	case LevelError:
		z = z.Level(zerolog.ErrorLevel)
	default:
		z = z.Level(zerolog.InfoLevel)
	}
	return &Logger{z: z}
}

// Sampler returns a child logger scoped to one sampler run.
func (l *Logger) Sampler(samplerID int64) *Logger {
	return &Logger{z: l.z.With().Int64("sampler", samplerID).Logger()}
}

// Worker returns a child logger scoped to one worker thread.
func (l *Logger) Worker(thread int) *Logger {
	return &Logger{z: l.z.With().Int("thread", thread).Logger()}
}

func (l *Logger) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.z.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.z.Warn().Msg(msg) }

// Error logs msg with err attached.
func (l *Logger) Error(msg string, err error) { l.z.Error().Err(err).Msg(msg) }

// Fatal logs msg with err attached and exits the process.
func (l *Logger) Fatal(msg string, err error) { l.z.Fatal().Err(err).Msg(msg) }

// Progress logs one periodic status line (spec §7's progress reporting).
func (l *Logger) Progress(level int, numLevels int, logX float64, acceptRate float64) {
	l.z.Info().
		Int("level", level).
		Int("num_levels", numLevels).
		Float64("logx", logX).
		Float64("accept_rate", acceptRate).
		Msg("progress")
}
