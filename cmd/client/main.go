package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/buildinfo"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/cli"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/config"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.NewTextLogger(os.Stderr, cfg.LogLevel)
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
