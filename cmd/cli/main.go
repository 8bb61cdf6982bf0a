package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/newsgraph/internal/app"
	"github.com/OFFIS-RIT/newsgraph/internal/cli"
	"github.com/OFFIS-RIT/newsgraph/internal/config"
	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	cfg, cfgErr := config.Load()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	logger.Init(consoleLogger)

	open := func(ctx context.Context) (*cli.Runtime, error) {
		if cfgErr != nil {
			return nil, cfgErr
		}
		a, err := app.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt := &cli.Runtime{Cache: a.Cache, Graphs: a.Graphs, Close: a.Close}
		if a.Archive != nil {
			rt.Failures = a.Archive
		}
		return rt, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(open).ExecuteContext(ctx); err != nil {
		logger.Error("Command failed", "err", err)
		stop()
		os.Exit(1)
	}
}
