package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"passgate.org/internal/access"
	"passgate.org/internal/auth"
	"passgate.org/internal/config"
	"passgate.org/internal/httpapi"
	"passgate.org/internal/job"
	"passgate.org/internal/obs"
	"passgate.org/internal/store/pg"
	"passgate.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	config.LoadDotenv()
	cfg := config.Load()

	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo := openRepository(ctx, cfg)
	defer closeRepo()

	feed := stream.New(64)
	engine, err := access.New(repo, append(cfg.EngineOptions(), access.WithTransitSink(feed))...)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	created, err := engine.BootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	if err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}
	if created {
		obs.Info("bootstrap admin ready", map[string]any{"email": cfg.BootstrapAdminEmail})
	}

	signer, err := auth.NewSigner(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("auth: %v (set PASSGATE_AUTH_SECRET)", err)
	}

	// background reactivation
	scheduler := job.NewScheduler()
	if err := scheduler.Every(cfg.ReactivationInterval, "reactivation",
		job.NewReactivationJob(ctx, engine, cfg.ReactivationInterval)); err != nil {
		log.Fatalf("schedule: %v", err)
	}
	scheduler.Start()

	probe := httpapi.ReadyProbe{Store: repo}
	api := httpapi.New(httpapi.Options{
		Engine:     engine,
		Signer:     signer,
		Stream:     feed,
		Ready:      probe,
		Version:    version,
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting passgate-api", map[string]any{
		"version":                   version,
		"http_addr":                 cfg.HTTPAddr,
		"grpc_addr":                 cfg.GRPCAddr,
		"max_unauthorized_attempts": engine.MaxUnauthorizedAttempts(),
		"suspension_duration":       engine.SuspensionDuration().String(),
		"suspension_clock":          string(engine.SuspensionClock()),
		"reactivation_interval":     cfg.ReactivationInterval.String(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcServer = grpc.NewServer()
		httpapi.NewGRPCServer(probe).Register(grpcServer)
		go func() {
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		obs.Warn("scheduler stop", map[string]any{"error": err})
	}
	obs.Info("stopped", nil)
}

// openRepository picks PostgreSQL when a DSN is configured and the
// in-memory store otherwise.
func openRepository(ctx context.Context, cfg config.Config) (access.Repository, func()) {
	if cfg.PGDSN == "" {
		obs.Warn("PASSGATE_PG_DSN not set, using in-memory repository", nil)
		mem := access.NewInMemory()
		for _, p := range []access.Passage{
			{ID: 1, Level: 1},
			{ID: 2, Level: 2, NeedsDPI: true},
			{ID: 3, Level: 3, NeedsDPI: true},
		} {
			mem.PutPassage(p)
		}
		return mem, func() {}
	}

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		obs.Warn("database not reachable at startup", map[string]any{"error": err})
	}
	return store, func() { _ = store.Close() }
}
