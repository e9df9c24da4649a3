// Package observability provides the engine-wide structured logger: a
// thin verbosity-gated wrapper over zap with log-file rotation.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the engine-wide logging facade passed through every phase.
type Logger struct {
	zap               *zap.Logger
	fileName          string
	verbosity         int
	duplicateToStderr bool
}

// Config controls where and how verbosely the engine logs.
type Config struct {
	LogFile           string // "" or "stderr" logs to stderr; otherwise a file path
	Verbosity         int    // -1 off, 0 default, up to 2
	DuplicateToStderr bool
}

// New builds a Logger from Config. An empty LogFile logs to stderr.
func New(cfg Config) (*Logger, error) {
	if cfg.Verbosity < -1 || cfg.Verbosity > 2 {
		return nil, fmt.Errorf("incorrect verbosity passed: %d", cfg.Verbosity)
	}

	zl, err := buildZapLogger(cfg.LogFile)
	if err != nil {
		return nil, err
	}

	return &Logger{
		zap:               zl,
		fileName:          cfg.LogFile,
		verbosity:         cfg.Verbosity,
		duplicateToStderr: cfg.DuplicateToStderr,
	}, nil
}

func buildZapLogger(logFile string) (*zap.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	var ws zapcore.WriteSyncer
	if logFile == "" || logFile == "stderr" {
		ws = zapcore.AddSync(os.Stderr)
	} else {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			return nil, err
		}
		ws = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(encoder, ws, zapcore.DebugLevel)
	return zap.New(core), nil
}

// Info logs a message if the logger's verbosity is high enough.
func (l *Logger) Info(verbosity int, msg string, fields ...zap.Field) {
	if l == nil || l.zap == nil {
		return
	}
	if l.verbosity >= verbosity {
		l.zap.Info(msg, fields...)
	}
}

// Error always logs, optionally duplicating to stderr.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	if l == nil || l.zap == nil {
		return
	}
	l.zap.Error(msg, fields...)
	if l.duplicateToStderr {
		fmt.Fprintln(os.Stderr, "[fcbuild] "+msg)
	}
}

// Warn always logs a warning-level phase diagnostic.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if l == nil || l.zap == nil {
		return
	}
	l.zap.Warn(msg, fields...)
}

// RotateLogFile reopens the underlying log file, for log-rotation signal
// handlers.
func (l *Logger) RotateLogFile() error {
	if l.fileName == "" || l.fileName == "stderr" {
		return nil
	}
	zl, err := buildZapLogger(l.fileName)
	if err != nil {
		return err
	}
	old := l.zap
	l.zap = zl
	_ = old.Sync()
	return nil
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

