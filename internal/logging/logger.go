package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. level is a zap level name ("debug", "info", ...); an empty
// level means info, or debug in dev mode. When file is set, output is appended to it in
// addition to stderr.
func New(level string, dev bool, file string) (*zap.Logger, error) {
	conf := zap.NewProductionConfig()
	if dev {
		conf = zap.NewDevelopmentConfig()
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		conf.Level = zap.NewAtomicLevelAt(lvl)
	}

	conf.EncoderConfig.TimeKey = "time"
	conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		conf.OutputPaths = append(conf.OutputPaths, file)
		conf.ErrorOutputPaths = append(conf.ErrorOutputPaths, file)
	}

	logger, err := conf.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
