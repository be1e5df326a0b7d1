package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"

	"github.com/ytget/media-taskd/internal/config"
	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/fetch"
	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/notify"
	"github.com/ytget/media-taskd/internal/persistence"
	"github.com/ytget/media-taskd/internal/platform"
	transporthttp "github.com/ytget/media-taskd/internal/transport/http"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Infow("media-taskd starting", "version", version, "download_dir", cfg.Download.Directory)

	if err := platform.CreateDirectoryIfNotExists(cfg.Download.Directory); err != nil {
		log.Fatalw("failed to ensure download directory", "dir", cfg.Download.Directory, "error", err)
	}

	gateway, err := persistence.Open(cfg.Persistence, log)
	if err != nil {
		log.Fatalw("failed to open persistence", "driver", cfg.Persistence.Driver, "error", err)
	}

	fetcher := fetch.NewAuto(fetch.Options{
		UserAgent: cfg.Fetch.UserAgent,
		Headers:   cfg.Fetch.Headers,
		ChunkSize: cfg.Download.ChunkSize,
	})

	broadcaster := notify.NewBroadcaster(notify.DefaultClientBuffer, log)

	svc, err := download.NewService(download.Options{
		Fetcher:         fetcher,
		Notifier:        notify.Multi{notify.NewLogNotifier(log), broadcaster},
		Gateway:         gateway,
		Logger:          log,
		Directory:       cfg.Download.Directory,
		MaxParallel:     cfg.Download.MaxParallel,
		ChunkTimeout:    cfg.Download.ChunkTimeout,
		RetryAttempts:   cfg.Download.RetryAttempts,
		RetryBackoff:    cfg.Download.RetryBackoff,
		RetryMaxBackoff: cfg.Download.RetryMaxBackoff,
		PersistInterval: cfg.Persistence.Interval,
		DefaultQuality:  cfg.Download.DefaultQuality,
		EstimateSize:    cfg.Download.EstimatedSize,
	})
	if err != nil {
		log.Fatalw("failed to create download service", "error", err)
	}

	restored, err := svc.Restore(context.Background())
	if err != nil {
		log.Errorw("failed to restore tasks", "error", err)
	} else {
		log.Infow("tasks restored", "count", restored)
	}

	app := transporthttp.NewApp(cfg.Server, log)
	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Service:        svc,
		Playlists:      platform.NewPlaylistParser(),
		Broadcaster:    broadcaster,
		Logger:         log,
		DefaultQuality: cfg.Download.DefaultQuality,
		Qualities:      cfg.Download.QualityOptions(),
	})

	addr := cfg.Server.Address()
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalw("server failed to start", "addr", addr, "error", err)
		}
	}()
	log.Infow("server started", "addr", addr)

	gracefulShutdown(cfg, app, svc, broadcaster, log)
}

func gracefulShutdown(cfg *config.Config, app *fiber.App, svc *download.Service, broadcaster *notify.Broadcaster, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	// tasks interrupted here stay Downloading and are re-validated on the next start
	if err := svc.Close(ctx); err != nil {
		log.Errorw("failed to stop download service", "error", err)
	}
	broadcaster.Close()

	log.Info("server exited gracefully")
}
