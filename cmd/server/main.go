package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/newsgraph/internal/app"
	"github.com/OFFIS-RIT/newsgraph/internal/config"
	"github.com/OFFIS-RIT/newsgraph/internal/queue"
	"github.com/OFFIS-RIT/newsgraph/internal/server"
	mid "github.com/OFFIS-RIT/newsgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger/console"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"
)

func main() {
	util.LoadEnv()

	cfg, err := config.Load()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
	})
	logger.Init(consoleLogger)

	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize", "err", err)
	}
	defer a.Close()

	handlers := &mid.App{Graphs: a.Graphs}
	if lister, ok := a.Cache.(store.TopicLister); ok {
		handlers.Topics = lister
	}

	// The queue is optional for the API; prefetch answers 503 without it.
	if cfg.QueueEnabled {
		conn := queue.Init(cfg.RabbitMQURL())
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()

		if err := queue.SetupQueues(ch, []string{queue.ResolveQueue}); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		handlers.Jobs = queue.NewPublisher(ch, queue.ResolveQueue)
	}

	e := server.New(handlers, a.Metrics.Handler())
	if err := server.Run(ctx, e, cfg.Port); err != nil {
		logger.Fatal("Server stopped", "err", err)
	}
	logger.Info("Shutdown complete")
}
