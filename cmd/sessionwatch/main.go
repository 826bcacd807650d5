package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/sessionwatch/internal/binance"
	"github.com/rewired-gh/sessionwatch/internal/config"
	"github.com/rewired-gh/sessionwatch/internal/logger"
	"github.com/rewired-gh/sessionwatch/internal/monitor"
	"github.com/rewired-gh/sessionwatch/internal/session"
	"github.com/rewired-gh/sessionwatch/internal/storage"
	"github.com/rewired-gh/sessionwatch/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	clock, err := session.NewClock(cfg.Sessions.UTCOffsetHours, cfg.Sessions.Windows())
	if err != nil {
		logger.Fatal("Invalid session windows: %v", err)
	}

	store, err := storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	binanceClient := binance.NewClient(
		cfg.Binance.APIURL,
		cfg.Binance.Timeout,
		cfg.Binance.MaxRetries,
		cfg.Binance.RetryDelayBase,
	)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	monitorConfig := monitor.Config{
		UniverseSize: cfg.Monitor.UniverseSize,
		KlineLimit:   cfg.Monitor.KlineLimit,
		Concurrency:  cfg.Monitor.Concurrency,
	}
	var notifier monitor.Notifier
	if telegramClient != nil {
		notifier = telegramClient
	}
	mon := monitor.New(clock, binanceClient, binanceClient, notifier, store, monitorConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting session breakout monitor (interval: %v, universe: %d, bars: %d, concurrency: %d)",
		cfg.Monitor.PollInterval,
		cfg.Monitor.UniverseSize,
		cfg.Monitor.KlineLimit,
		cfg.Monitor.Concurrency,
	)

	ticker := time.NewTicker(cfg.Monitor.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleTickResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Monitoring pass failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial monitoring pass")
	handleTickResult(mon.Tick(ctx))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring pass")
			handleTickResult(mon.Tick(ctx))
			if err := store.PruneRanges(clock.TradingDay(time.Now())); err != nil {
				logger.Warn("Failed to prune old ranges: %v", err)
			}
		}
	}
}
