// Package observability owns the process loggers. CLILogger renders
// human-oriented console output for command flows; Init builds the
// structured runtime logger the simulation loop and server log through.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the console logger for command output: no timestamps, no
// caller, message-first. Always available, even before Init runs.
var CLILogger *zap.Logger

func init() {
	encCfg := zapcore.EncoderConfig{
		MessageKey:    "msg",
		LevelKey:      "",
		TimeKey:       "",
		NameKey:       "",
		CallerKey:     "",
		StacktraceKey: "",
		LineEnding:    zapcore.DefaultLineEnding,
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Encoding:         "console",
		EncoderConfig:    encCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	CLILogger = logger
}

var runtimeLogger = zap.NewNop()

// Init builds the structured runtime logger. Profile "structured" emits
// JSON; "console" emits developer-friendly output. The logger is also
// available afterwards via Logger.
func Init(level, profile string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(profile) {
	case "", "structured", "json":
		cfg = zap.NewProductionConfig()
	case "console", "dev", "development":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown logging profile %q", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	runtimeLogger = logger
	return logger, nil
}

// Logger returns the runtime logger. Before Init it is a no-op logger.
func Logger() *zap.Logger { return runtimeLogger }

// Sync flushes buffered log entries. Safe to call on shutdown paths.
func Sync() {
	_ = runtimeLogger.Sync()
	_ = CLILogger.Sync()
}
