// Package main is the entry point for the EasGit leaderboard server.
//
// main stays minimal:
//  1. Read configuration (.env, optional YAML file, EASGIT_ env vars)
//  2. Create the logger
//  3. Build and start the server
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sakif/easgit/internal/auth"
	"github.com/sakif/easgit/internal/config"
	"github.com/sakif/easgit/internal/server"
)

func main() {
	hashKey := flag.String("hash-admin-key", "", "print the bcrypt hash of the given admin key for auth.admin_key_hash and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := auth.HashKey(*hashKey, auth.DefaultKeyCost)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hashing admin key:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	logger.Info("configuration loaded",
		slog.String("env", cfg.App.Env),
		slog.String("database", cfg.Database.Driver),
		slog.Duration("cacheTTL", cfg.Cache.TTL),
		slog.Duration("schedulerInterval", cfg.Scheduler.Interval),
	)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setupLogger picks human-readable text logs locally and JSON in prod.
func setupLogger(cfg *config.Config) *slog.Logger {
	// Validate has already rejected unknown levels.
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	if cfg.App.Env == config.EnvProd {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
