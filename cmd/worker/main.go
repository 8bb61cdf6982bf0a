package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/newsgraph/internal/app"
	"github.com/OFFIS-RIT/newsgraph/internal/config"
	"github.com/OFFIS-RIT/newsgraph/internal/queue"
	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	cfg, err := config.Load()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
		Prefix: "worker",
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

	// Init rabbitmq
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

	if cfg.RefreshCron != "" && len(cfg.RefreshTopics) > 0 {
		// Publishing gets its own channel so it never interleaves with acks.
		pubCh, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open publish channel", "err", err)
		}
		defer pubCh.Close()

		refresher := queue.NewRefresher(queue.NewRefresherParams{
			Publisher: queue.NewPublisher(pubCh, queue.ResolveQueue),
			Topics:    cfg.RefreshTopics,
			Depth:     cfg.RefreshDepth,
			Language:  cfg.RefreshLang,
		})
		scheduler, err := refresher.Schedule(ctx, cfg.RefreshCron)
		if err != nil {
			logger.Fatal("Failed to schedule refresh", "err", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("Scheduled topic refresh", "cron", cfg.RefreshCron, "topics", len(cfg.RefreshTopics))
	}

	if port := cfg.MetricsPort; port != "" {
		go func() {
			logger.Info("Serving metrics", "port", port)
			if err := http.ListenAndServe(":"+port, a.Metrics.Handler()); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server stopped", "err", err)
			}
		}()
	}

	consumer := queue.NewConsumer(queue.NewConsumerParams{
		Resolver:   a.Graphs,
		APIKey:     cfg.AIKey,
		Queue:      queue.ResolveQueue,
		MaxRetries: cfg.QueueMaxRetries,
		Metrics:    a.Metrics,
	})
	if err := consumer.Run(ctx, ch); err != nil {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
