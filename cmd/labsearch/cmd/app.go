package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/Aman-CERP/labsearch/internal/config"
	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/embed"
	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/search"
	"github.com/Aman-CERP/labsearch/internal/store"
	"github.com/Aman-CERP/labsearch/internal/telemetry"
)

// configDir returns the directory the workspace config is read from, and
// the workspace file named by --workspace, if any.
func configDir() (dir, workspaceFile string, err error) {
	if workspaceFlag == "" {
		dir, err = os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return dir, "", nil
	}

	abs, err := filepath.Abs(workspaceFlag)
	if err != nil {
		return "", "", fmt.Errorf("invalid workspace path: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return abs, "", nil
	}
	return filepath.Dir(abs), abs, nil
}

// loadConfig loads the effective configuration and applies the global
// flags on top of it.
func loadConfig() (*config.Config, error) {
	dir, workspaceFile, err := configDir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if workspaceFile != "" {
		cfg.Workspace.Path = workspaceFile
	}
	if dataDirFlag != "" {
		abs, err := filepath.Abs(dataDirFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid data directory: %w", err)
		}
		cfg.Workspace.DataDir = abs
	}
	return cfg, nil
}

// app wires the engine for one command invocation.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	registry *embed.Registry
	source   content.Source
	indexer  *index.Orchestrator
	searcher *search.Service
	metrics  *telemetry.QueryMetrics

	// keyCfg is the config API keys resolve from. Long-lived commands
	// replace it when the config file changes.
	keyCfg atomic.Pointer[config.Config]
}

// openApp opens the store and builds the indexing and search services.
func openApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DBPath(), store.Options{
		Driver:        cfg.Store.Driver,
		BusyTimeoutMS: cfg.Store.BusyTimeoutMS,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		store:    st,
		registry: embed.RegistryFromConfig(cfg),
		source:   content.NewFileSource(cfg.Workspace.Path),
	}
	a.keyCfg.Store(cfg)

	a.indexer, err = index.New(index.Dependencies{
		Store:       st,
		Source:      a.source,
		Registry:    a.registry,
		KeyResolver: a.apiKey,
		LockPath:    cfg.LockPath(),
		BatchSize:   cfg.Indexing.BatchSize,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	if cfg.Search.QueryStats {
		statsStore, err := telemetry.NewSQLiteStore(st.DB())
		if err != nil {
			slog.Warn("query_stats_disabled", slog.String("error", err.Error()))
		} else {
			a.metrics = telemetry.NewQueryMetrics(statsStore, telemetry.DefaultConfig())
		}
	}

	searchCfg := search.DefaultConfig()
	searchCfg.DefaultLimit = cfg.Search.Limit
	searchCfg.DefaultThreshold = cfg.Search.Threshold
	searchCfg.ANNMinRecords = cfg.Search.ANNMinRecords
	searchCfg.QueryCacheSize = cfg.Embeddings.QueryCacheSize

	a.searcher, err = search.NewService(search.Dependencies{
		Store:       st,
		Registry:    a.registry,
		KeyResolver: a.apiKey,
		Source:      a.source,
		Metrics:     a.metrics,
	}, searchCfg)
	if err != nil {
		_ = a.metrics.Close()
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

// apiKey resolves a provider key from config and the environment.
func (a *app) apiKey(id embed.ProviderID) string {
	return embed.ResolveAPIKey(id, a.keyCfg.Load())
}

// reloadKeys re-reads the configuration for API key resolution. Other
// settings keep their startup values.
func (a *app) reloadKeys() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a.keyCfg.Store(cfg)
	slog.Info("config_keys_reloaded")
	return nil
}

// providerUsable reports whether the configured provider can embed now.
func (a *app) providerUsable() bool {
	p, err := a.registry.Default()
	if err != nil {
		return false
	}
	return embed.Usable(p, a.apiKey(p.ID()))
}

// Close flushes query statistics and releases the store.
func (a *app) Close() error {
	return errors.Join(a.metrics.Close(), a.store.Close())
}
