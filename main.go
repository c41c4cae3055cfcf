// Package main implements a terror zone notifier: it scrapes a tracker
// page, decides whether a watched zone deserves an alert, and posts to
// a Discord webhook. Runs once per invocation by default; -serve keeps
// an HTTP trigger endpoint up for Cloud Run style deployments.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"terrorzone-notifier/config"
	"terrorzone-notifier/discord"
	"terrorzone-notifier/schedule"
	"terrorzone-notifier/server"
	"terrorzone-notifier/source"
	"terrorzone-notifier/state"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

func main() {
	serve := flag.Bool("serve", false, "run an HTTP server instead of a single check cycle")
	flag.Parse()

	ctx := context.Background()
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Configuration problems fail fast, before any network call.
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	var storageClient *gcs.Client
	localPath := cfg.StateFile
	if cfg.Bucket != "" {
		var err error
		storageClient, err = initStorageClient(ctx, cfg.CredentialsJSON)
		if err != nil {
			logger.Error("Failed to initialize storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
		localPath = ""
		logger.Info("Using Cloud Storage for state", "bucket", cfg.Bucket)
	} else {
		logger.Info("Using local file for state", "path", localPath)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	scheduler := schedule.New(&schedule.Config{
		Source:     source.New(httpClient, cfg.WatchURL, logger),
		Messenger:  discord.New(httpClient, cfg.WebhookURL, cfg.RoleID, logger),
		Store:      state.New(storageClient, cfg.Bucket, localPath, logger),
		Logger:     logger,
		Watchlist:  cfg.Watchlist(),
		Mode:       cfg.Mode(),
		RoleID:     cfg.RoleID,
		TrackerURL: cfg.WatchURL,
	})

	if *serve {
		srv := server.New(&server.Config{Runner: scheduler, Logger: logger})
		if err := srv.ListenAndServe(cfg.Port); err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := scheduler.Run(ctx); err != nil {
		// An unreachable tracker is routine; the next periodic
		// invocation retries. Anything else is a real failure.
		if errors.Is(err, source.ErrUnavailable) {
			logger.Warn("Zone source unavailable, skipping this run", "error", err)
			return
		}
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

// initStorageClient builds a Cloud Storage client from explicit JSON
// credentials when provided, falling back to Application Default
// Credentials (the service account on Cloud Run).
func initStorageClient(ctx context.Context, credsJSON string) (*gcs.Client, error) {
	if credsJSON != "" {
		return gcs.NewClient(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	return gcs.NewClient(ctx)
}
