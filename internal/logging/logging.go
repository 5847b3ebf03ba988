// ABOUTME: Logger construction for convo-gateway
// ABOUTME: Exposes *slog.Logger backed by zap cores for the console and a JSON log file

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/2389/convo-gateway/internal/config"
)

// FileName is the name of the log file written under log.log_dir.
const FileName = "gateway.log"

// Logger bundles the slog front end with the zap logger that backs it.
type Logger struct {
	*slog.Logger
	zap  *zap.Logger
	file *os.File
}

// New builds a logger writing to stderr at the configured console level and,
// when cfg.LogDir is set, to <log_dir>/gateway.log as JSON at debug level.
func New(cfg config.LogConfig) (*Logger, error) {
	cores := []zapcore.Core{
		newCore(zapcore.Lock(os.Stderr), cfg.Format, ParseLevel(cfg.ConsoleLogLevel)),
	}

	var file *os.File
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		file = f
		cores = append(cores, newCore(zapcore.AddSync(f), "json", zapcore.DebugLevel))
	}

	zl := zap.New(zapcore.NewTee(cores...))
	return &Logger{
		Logger: slog.New(zapslog.NewHandler(zl.Core())),
		zap:    zl,
		file:   file,
	}, nil
}

// NewWriter builds a logger that writes to w only. Used by tests and the CLI.
func NewWriter(w io.Writer, format, level string) *Logger {
	zl := zap.New(newCore(zapcore.AddSync(w), format, ParseLevel(level)))
	return &Logger{
		Logger: slog.New(zapslog.NewHandler(zl.Core())),
		zap:    zl,
	}
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	_ = l.zap.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ParseLevel maps a level name (DEBUG, info, warning, ...) to a zap level.
// Unknown names fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "critical":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newCore(ws zapcore.WriteSyncer, format string, level zapcore.Level) zapcore.Core {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, ws, level)
}
