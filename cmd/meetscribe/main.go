package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/podushkina/meetscribe/internal/cli"
	"github.com/podushkina/meetscribe/internal/config"
	"github.com/podushkina/meetscribe/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &cli.Dependencies{Config: cfg}
	defer func() {
		if err := deps.Close(context.Background()); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	return cli.NewRootCmd(deps).ExecuteContext(ctx)
}
