package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fundrouter/internal/cli"
	"fundrouter/internal/config"
	"fundrouter/internal/logging"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.Parse()

	// Credentials in config may reference environment variables; a local
	// .env is loaded first when present.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	log, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fatal(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := cli.BuildRegistry(&cfg, log)
	log.WithField("exchanges", registry.Names()).Info("fundrouter starting")

	dispatcher := cli.NewDispatcher(&cfg, registry, log)
	if err := dispatcher.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		fatal(err.Error())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
