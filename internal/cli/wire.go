package cli

import (
	"fmt"

	"github.com/kiwina/gules/internal/api"
	"github.com/kiwina/gules/internal/cache"
	"github.com/kiwina/gules/internal/core"
)

// newTransport builds the HTTP transport; tests replace it with a fake.
var newTransport = func(apiKey, baseURL string, verbose bool) api.Transport {
	return api.NewClient(apiKey, baseURL, verbose)
}

// app bundles what a command needs once flags and config are resolved.
type app struct {
	cfg     *core.Config
	cfgPath string
	store   *cache.Store
	close   func()
}

func (o *rootOptions) resolvedConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return core.ConfigPath()
}

func (o *rootOptions) loadConfig() (*core.Config, error) {
	cfg, err := core.LoadConfig(o.resolvedConfigPath())
	if err != nil {
		return nil, err
	}
	core.Eprint(fmt.Sprintf("[Config] Loaded %s", o.resolvedConfigPath()), o.verbose)
	return cfg, nil
}

// source controls whether wireApp connects the store to the API.
type source int

const (
	// noSource builds a store that can only inspect and clear the cache.
	noSource source = iota
	// requireSource fails when no API key is configured.
	requireSource
	// optionalSource connects when an API key is available.
	optionalSource
)

// wireApp loads config and builds the cache store over the configured backend.
func (o *rootOptions) wireApp(src source) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	var activitySource cache.ActivitySource
	if src != noSource {
		key, err := core.ResolveAPIKey(o.apiKey, cfg)
		switch {
		case err == nil:
			activitySource = api.NewJulesAPI(newTransport(key, cfg.APIURL, o.verbose))
		case src == requireSource:
			closeStorage()
			return nil, err
		default:
			core.ProgressPrint("Warning: no API key configured; only cached data is available", o.quiet)
		}
	}

	store := cache.NewStore(activitySource, storage, cache.Config{
		Enabled:     cfg.Cache.Enabled,
		MaxSessions: cfg.Cache.MaxSessions,
	}, o.verbose)

	return &app{
		cfg:     cfg,
		cfgPath: o.resolvedConfigPath(),
		store:   store,
		close:   closeStorage,
	}, nil
}

func openStorage(cfg *core.Config) (cache.Storage, func(), error) {
	switch cfg.Cache.Backend {
	case core.SQLiteCacheBackend:
		s, err := cache.NewSQLiteStorage(cfg.CacheDir())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return cache.NewFilesystemStorage(cfg.CacheDir()), func() {}, nil
	}
}
