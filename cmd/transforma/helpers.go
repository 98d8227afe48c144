// Package main contains the transforma CLI commands.
package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/transformahq/transforma-agent/internal/config"
	"github.com/transformahq/transforma-agent/internal/dupcache"
	"github.com/transformahq/transforma-agent/internal/relay"
	"github.com/transformahq/transforma-agent/internal/router"
	"github.com/transformahq/transforma-agent/internal/session"
)

func cachePath() string {
	if path := viper.GetString("cache.path"); path != "" {
		return config.ExpandPath(path)
	}
	return config.DefaultCachePath()
}

func syncSourcePath() string {
	if path := viper.GetString("cache.sync_db"); path != "" {
		return config.ExpandPath(path)
	}
	return config.DefaultSyncDBPath()
}

func sessionPath() string {
	if path := viper.GetString("session.path"); path != "" {
		return config.ExpandPath(path)
	}
	return config.DefaultSessionPath()
}

// openCache creates the duplicate cache and loads it from disk. A missing or
// corrupted cache file degrades to an empty cache rather than failing.
func openCache() (*dupcache.Cache, error) {
	opts := []dupcache.Option{}
	if interval := viper.GetDuration("cache.sync_interval"); interval > 0 {
		opts = append(opts, dupcache.WithSyncInterval(interval))
	}

	cache := dupcache.New(cachePath(), opts...)
	if err := cache.Load(); err != nil {
		return nil, fmt.Errorf("failed to load duplicate cache: %w", err)
	}
	return cache, nil
}

func openSessionStore() *session.Store {
	return session.NewStore(sessionPath())
}

func relayClient() *relay.Client {
	cfg := relay.DefaultConfig()
	if host := viper.GetString("relay.host"); host != "" {
		cfg.Host = host
	}
	if port := viper.GetInt("relay.port"); port > 0 {
		cfg.Port = port
	}
	if d := viper.GetDuration("relay.dial_timeout"); d > 0 {
		cfg.DialTimeout = d
	}
	if d := viper.GetDuration("relay.request_timeout"); d > 0 {
		cfg.RequestTimeout = d
	}
	return relay.NewClient(cfg)
}

// buildRouter assembles the document router, loading extra filename patterns
// from a JSON file when one is configured. File-provided patterns take
// precedence over the built-in set.
func buildRouter(patternsFile string, maxChars int) (*router.Router, error) {
	cfg := router.DefaultConfig()
	if maxChars > 0 {
		cfg.MaxChars = maxChars
	}

	r := router.NewWithConfig(router.NewExtractor(), cfg)

	if patternsFile == "" {
		patternsFile = viper.GetString("routing.patterns_file")
	}
	if patternsFile != "" {
		patterns, err := router.LoadPatternsFile(config.ExpandPath(patternsFile))
		if err != nil {
			return nil, fmt.Errorf("failed to load patterns file: %w", err)
		}
		r.ReloadPatterns(append(patterns, router.DefaultPatterns()...))
	}

	return r, nil
}
