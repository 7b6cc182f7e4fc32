package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/livesync"
	"example.com/fittrack/internal/localstore"
	"example.com/fittrack/internal/media"
	"example.com/fittrack/internal/offline"
	persistence "example.com/fittrack/internal/persistence/postgres"
	"example.com/fittrack/internal/realtime"
	httptransport "example.com/fittrack/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to configure postgres pool: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := persistence.Migrate(ctx, pool); err != nil {
			// The gateway keeps serving the mirror and offline queue without a backend.
			log.Printf("migrations not applied: %v", err)
		}
	}

	store, err := localstore.New(cfg.LocalStorePath)
	if err != nil {
		log.Fatalf("failed to open local store %s: %v", cfg.LocalStorePath, err)
	}
	defer store.Close()

	resolver, err := media.NewS3Resolver(ctx, cfg.MediaRegion, cfg.MediaBucket, cfg.MediaPublicBaseURL, cfg.MediaURLTTL)
	if err != nil {
		log.Fatalf("failed to configure media resolver: %v", err)
	}

	repo := persistence.NewRepository(pool)
	hub := realtime.NewHub(cfg.KafkaBrokers)
	queue := offline.NewQueue(store)
	monitor := livesync.NewMonitor(repo, cfg.ConnectivityProbeInterval)
	feed := livesync.NewFeed(livesync.DefaultFeedSize)

	manager := livesync.NewManager(repo, hub, queue, monitor,
		livesync.WithManagerNotifier(livesync.Notifiers(feed, livesync.LogNotifier{})),
		livesync.WithIdleTimeout(cfg.SessionIdleTimeout),
	)

	go monitor.Run(ctx)
	go manager.RunSweeper(ctx, cfg.SessionSweepInterval)

	handler := api.NewHandler(api.Deps{
		Sessions: manager,
		Logs:     repo,
		Store:    store,
		Queue:    queue,
		Feed:     feed,
		Online:   monitor,
		Media:    resolver,
		Location: cfg.Location(),
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux,
			httptransport.RequestLog(nil),
			httptransport.CORS("http://localhost:5173"),
			authMiddleware.Wrap,
		),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("fittrack gateway listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		log.Printf("closing sessions: %v", err)
	}
}
