package utilities

import (
	"fmt"
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string
	Dev   bool
	// File, when set, is the base path of a daily-rotated JSON log file
	// written in addition to stdout.
	File   string
	MaxAge time.Duration
}

// ConfigFromEnv reads minimal config from env vars.
func ConfigFromEnv() Config {
	dev := os.Getenv("LOG_DEV") == "1"
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		if dev {
			lvl = "debug"
		} else {
			lvl = "info"
		}
	}
	maxAge := 7 * 24 * time.Hour
	if v := os.Getenv("LOG_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			maxAge = d
		}
	}
	return Config{Level: lvl, Dev: dev, File: os.Getenv("LOG_FILE"), MaxAge: maxAge}
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev && cfg.File == "" {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var stdout zapcore.Core
	if cfg.Dev {
		stdout = zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(os.Stdout), lvl)
	} else {
		stdout = zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl)
	}

	core := stdout
	if cfg.File != "" {
		w, err := rotatingWriter(cfg.File, cfg.MaxAge)
		if err != nil {
			return nil, err
		}
		core = zapcore.NewTee(stdout, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), lvl))
	}
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(core, opts...), nil
}

// rotatingWriter rotates daily; files older than maxAge are removed.
func rotatingWriter(base string, maxAge time.Duration) (*rotatelogs.RotateLogs, error) {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	w, err := rotatelogs.New(
		base+".%Y%m%d",
		rotatelogs.WithLinkName(base),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return w, nil
}
