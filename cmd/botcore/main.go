package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/cache"
	"github.com/mediafetch/botcore/internal/config"
	"github.com/mediafetch/botcore/internal/feed"
	"github.com/mediafetch/botcore/internal/ops"
	"github.com/mediafetch/botcore/internal/poller"
	"github.com/mediafetch/botcore/internal/provider/ytdlp"
	"github.com/mediafetch/botcore/internal/queue"
	"github.com/mediafetch/botcore/internal/service"
	"github.com/mediafetch/botcore/internal/store"
	"github.com/mediafetch/botcore/internal/token"
	"github.com/mediafetch/botcore/internal/transport"
	"github.com/mediafetch/botcore/pkg/logger"
)

func main() {
	// A missing .env is fine; config falls back to defaults and BOT_ vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Log

	users, err := store.NewUserStore(cfg.Storage.UsersFile, logger.Named("users"))
	if err != nil {
		log.Fatal("failed to load user registry", zap.Error(err))
	}
	subs, err := store.NewSubscriptionStore(cfg.Storage.SubscriptionsFile, logger.Named("subscriptions"))
	if err != nil {
		log.Fatal("failed to load subscription registry", zap.Error(err))
	}
	contentCache, err := cache.New(cfg.Storage.CacheIndexFile, cfg.Storage.CacheDir, logger.Named("cache"))
	if err != nil {
		log.Fatal("failed to load content cache", zap.Error(err))
	}

	tokens := token.NewStore(cfg.Poller.TokenTTL)
	fetcher := ytdlp.New(cfg.Fetcher.BinaryPath, cfg.Fetcher.CookiesFiles,
		cfg.Fetcher.SocketTimeout, logger.Named("ytdlp"))

	// No chat adapter is wired here; the log messenger stands in until one
	// is attached.
	messenger := transport.NewLogMessenger(logger.Named("transport"))
	operator := transport.NewOperator(messenger, cfg.Operator.ChatID, logger.Named("operator"))

	q := queue.New(queue.Config{
		MaxArtifactSize: cfg.Fetcher.MaxArtifactSize,
		PoolSize:        cfg.Fetcher.PoolSize,
		SendTimeout:     cfg.Queue.SendTimeout,
		StatusThrottle:  cfg.Queue.StatusThrottle,
		InterJobPause:   cfg.Queue.InterJobPause,
		DownloadDir:     cfg.Storage.DownloadDir,
	}, fetcher, contentCache, users, messenger, operator, logger.Named("queue"))

	pollers := poller.NewManager(poller.Config{
		CheckInterval: cfg.Poller.CheckInterval,
		ErrorBackoff:  cfg.Poller.ErrorBackoff,
		MaxItems:      cfg.Poller.FetchCount,
	}, subs, feed.NewClient(nil), fetcher, messenger, logger.Named("poller"))

	pollCtx, stopPolling := context.WithCancel(context.Background())
	for _, ownerID := range subs.Owners() {
		pollers.EnsureRunning(pollCtx, ownerID)
	}

	svc := service.New(q, contentCache, users, subs, tokens, fetcher, pollers,
		messenger, logger.Named("service"))

	opsServer := ops.New(ops.Config{Port: cfg.Ops.Port, APIKeys: cfg.Ops.APIKeys},
		svc, logger.Named("ops"))

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- opsServer.Start()
	}()

	log.Info("botcore started",
		zap.Int("known_users", users.Count()),
		zap.Int("active_pollers", pollers.Active()))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("ops server failed", zap.Error(err))
	case sig := <-shutdown:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	stopPolling()
	pollers.StopAll()

	// Let an in-flight download finish and deliver.
	q.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("ops server shutdown failed", zap.Error(err))
	}

	log.Info("botcore stopped gracefully")
}
