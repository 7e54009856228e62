package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/pokedex-seeder/internal/app"
	"github.com/samvad-hq/pokedex-seeder/internal/config"
	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

const usage = "usage: seeder [run]"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "seeder failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 1 || (len(args) == 1 && args[0] != "run") {
		return fmt.Errorf("%s", usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("seeder starting", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seeder, err := app.NewSeeder(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize seeder", "error", err)
		return err
	}

	if err := seeder.Run(ctx); err != nil {
		return fmt.Errorf("seeder run: %w", err)
	}

	logger.InfoObj("seeder finished", "summary", seeder.Ledger().Summary())
	return nil
}
