package main

import (
	"go.uber.org/zap"

	"github.com/hed1ad/anomalyscore/internal/config"
)

// newLogger writes to stderr so that stdout stays free for results.
func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	lvl, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
