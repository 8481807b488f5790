// Package logging builds the zap logger shared by every component. Records go
// to a buffered file under the temp directory, rotated at startup once it
// grows past 10MB, and optionally to stderr as well.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	maxLogSize      = 10 * 1024 * 1024 // 10MB
	logBufferSize   = 32 * 1024        // 32KB
	maxLogRotations = 5
	logFileName     = "como.log"
)

// DefaultDir is where logs go when Options.Dir is empty.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "como-logs")
}

// Options configures New.
type Options struct {
	Level  string // debug, info, warn or error; empty means info
	Dir    string // DefaultDir when empty
	Stderr bool   // also write human readable records to stderr
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
}

// New returns a logger and a function that flushes and closes its file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, logFileName)
	rotateLogFile(path)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	ws := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(file),
		Size:          logBufferSize,
		FlushInterval: time.Second,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, level),
	}
	if opts.Stderr {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closeFn := func() error {
		_ = logger.Sync()
		if err := ws.Stop(); err != nil {
			file.Close()
			return fmt.Errorf("flush log buffer: %w", err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		return nil
	}
	return logger, closeFn, nil
}

// rotateLogFile shifts como.log to como.log.1 and so on when it is too big,
// keeping maxLogRotations generations.
func rotateLogFile(logPath string) {
	fi, err := os.Stat(logPath)
	if err != nil || fi.Size() <= maxLogSize {
		return
	}
	for i := maxLogRotations - 1; i > 0; i-- {
		os.Rename(fmt.Sprintf("%s.%d", logPath, i), fmt.Sprintf("%s.%d", logPath, i+1))
	}
	os.Rename(logPath, logPath+".1")
}
