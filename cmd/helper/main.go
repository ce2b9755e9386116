package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/threadhelper/threadhelper/internal/counter"
	"github.com/threadhelper/threadhelper/internal/messaging"
	"github.com/threadhelper/threadhelper/internal/metrics"
	"github.com/threadhelper/threadhelper/internal/moderation"
	"github.com/threadhelper/threadhelper/internal/platform"
	"github.com/threadhelper/threadhelper/internal/settings"
	"github.com/threadhelper/threadhelper/internal/trigger"
)

func main() {
	log.Println("Starting thread helper service...")

	// Redis setup.
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "thread-helper"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// Installation settings: Postgres when configured, a YAML file otherwise.
	var (
		source      settings.Source
		closeSource func() error
	)
	switch {
	case os.Getenv("DATABASE_URL") != "":
		dbURL := os.Getenv("DATABASE_URL")
		if err := settings.Migrate(dbURL); err != nil {
			log.Fatalf("failed to migrate settings database: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		db, err := settings.OpenPostgres(ctx, dbURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		source = settings.NewPostgresSource(db)
		closeSource = db.Close
	case os.Getenv("SETTINGS_FILE") != "":
		fs, err := settings.LoadFile(os.Getenv("SETTINGS_FILE"))
		if err != nil {
			log.Fatalf("failed to load settings file: %v", err)
		}
		source = fs
	default:
		log.Println("no DATABASE_URL or SETTINGS_FILE set, using defaults for every installation")
		source = settings.StaticSource{}
	}

	platformTimeout := 10 * time.Second
	if v := os.Getenv("PLATFORM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			platformTimeout = d
		}
	}
	appAccount := "thread-helper"
	if v := os.Getenv("APP_ACCOUNT"); v != "" {
		appAccount = v
	}

	client := platform.NewNATSClient(natsClient, messaging.SubjectPlatform, platformTimeout)
	engine := moderation.NewEngine(client, counter.NewRedisStore(rdb), moderation.EngineConfig{
		AppAccount: appAccount,
	})

	svc := trigger.NewService(natsClient, engine, source, trigger.DefaultConfig())
	if err := svc.Start(); err != nil {
		log.Fatalf("failed to start trigger service: %v", err)
	}

	// Metrics endpoint.
	metricsAddr := ":9102"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[helper] metrics server error: %v", err)
		}
	}()

	log.Printf("Thread helper service running")
	log.Printf("  redis_addr:       %s", redisAddr)
	log.Printf("  nats_url:         %s", natsConfig.URL)
	log.Printf("  app_account:      %s", appAccount)
	log.Printf("  platform_timeout: %s", platformTimeout)
	log.Printf("  metrics_addr:     %s", metricsAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	svc.Stop()
	natsClient.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if closeSource != nil {
		if err := closeSource(); err != nil {
			log.Printf("settings store close error: %v", err)
		}
	}
	rdb.Close()
}
