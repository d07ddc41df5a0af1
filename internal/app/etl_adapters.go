package app

// ─────────────────────────────────────────────────────────────
// ETL Adapter Bridge
// ─────────────────────────────────────────────────────────────
//
// The kaggle source resolves datasets through the sources.Downloader
// interface so the etl packages stay free of HTTP and credential handling.
// This file builds the concrete client and installs it.

import (
	"fmt"
	"log/slog"

	"etlbranching/internal/config"
	"etlbranching/internal/etl/sources" // also registers all sources via init()
	"etlbranching/internal/kaggle"
	"etlbranching/internal/secret"
)

// credentialStore looks in the environment first, then kaggle.json.
func credentialStore(cfg *config.Config) secret.SecretStore {
	return secret.Chain{
		secret.NewEnvStore(),
		secret.NewKaggleFileStore(cfg.Kaggle.ConfigDir),
	}
}

// setupETLAdapters builds the Kaggle client from cfg and installs it as the
// kaggle source's downloader.
func setupETLAdapters(cfg *config.Config, logger *slog.Logger) (*kaggle.Client, error) {
	creds, err := secret.LoadCredentials(credentialStore(cfg))
	if err != nil {
		return nil, fmt.Errorf("load kaggle credentials: %w", err)
	}
	if !creds.Valid() {
		logger.Warn("No Kaggle credentials found, downloading anonymously.", "config_dir", cfg.Kaggle.ConfigDir)
	}

	client := kaggle.NewClient(cfg.Kaggle.Endpoint, cfg.Kaggle.CacheDir, creds)
	client.Force = cfg.Kaggle.Force
	sources.SetDownloader(client)
	return client, nil
}
