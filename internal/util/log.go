package util

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a logger writing to stdout, as JSON or as colored
// console lines.
func NewLogger(json bool) *zap.Logger {
	return NewLoggerWithLevel(json, "debug")
}

// NewLoggerWithLevel is NewLogger dropping entries below level, one of
// debug, info, warn or error. Unknown levels log everything.
func NewLoggerWithLevel(json bool, level string) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		TimeKey:        "ts",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	lvl := zap.DebugLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.DebugLevel
	}

	var core zapcore.Core

	if json {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), os.Stdout, lvl)
	} else {
		econf.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(econf), os.Stdout, lvl)
	}
	return zap.New(core)
}
