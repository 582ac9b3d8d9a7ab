package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hed1ad/anomalyscore/internal/config"
	"github.com/hed1ad/anomalyscore/pkg/cache"
	"github.com/hed1ad/anomalyscore/pkg/cache/badgerstore"
	"github.com/hed1ad/anomalyscore/pkg/cache/redisstore"
	"github.com/hed1ad/anomalyscore/pkg/detectors/iforest"
	"github.com/hed1ad/anomalyscore/pkg/resource"
)

// app holds what every subcommand needs once the configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	fetcher resource.Fetcher
	cache   cache.Getter
	closers []func() error
}

func newApp(root *rootCmdConfig) (*app, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, root.verbose)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		logger.Sync()
		return nil
	})

	if cfg.API.Username != "" || cfg.API.APIKey != "" {
		a.fetcher = resource.NewClient(cfg.API.BaseURL, cfg.API.Username, cfg.API.APIKey,
			resource.WithClientLogger(logger.Named("api")))
	}

	if err := a.openCache(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openCache() error {
	c := a.cfg.Cache
	switch c.Backend {
	case config.CacheMemory:
		a.cache = cache.NewMemory()
	case config.CacheRedis:
		rc := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		a.closers = append(a.closers, rc.Close)
		a.cache = redisstore.New(rc, c.Redis.Prefix, c.Redis.TTL)
	case config.CacheBadger:
		if c.Badger.Dir == "" {
			a.logger.Warn("badger cache has no directory, keeping scorers in memory")
		}
		store, err := badgerstore.Open(c.Badger.Dir, c.Badger.TTL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.cache = store
	}
	if a.cache != nil {
		a.logger.Debug("scorer cache enabled", zap.String("backend", c.Backend))
	}
	return nil
}

// store returns the configured cache when it accepts writes.
func (a *app) store() (cache.Store, error) {
	store, ok := a.cache.(cache.Store)
	if !ok || a.cfg.Cache.Backend == config.CacheMemory {
		return nil, fmt.Errorf("cache backend %q cannot persist scorers", a.cfg.Cache.Backend)
	}
	return store, nil
}

func (a *app) open(ctx context.Context, source string, opts ...iforest.Option) (*iforest.IsolationForest, error) {
	base := []iforest.Option{
		iforest.WithLogger(a.logger.Named("iforest")),
		iforest.WithThreshold(a.cfg.Scoring.Threshold),
	}
	if a.cache != nil {
		base = append(base, iforest.WithCache(a.cache))
	}
	return iforest.Open(ctx, source, a.fetcher, append(base, opts...)...)
}

// Close releases the resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing", zap.Error(err))
		}
	}
}
