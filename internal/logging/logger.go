package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a JSON logger in production and a console logger otherwise.
// An empty level keeps the config's default.
func New(env, level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if env == "production" {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
