package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/blooddrive/internal/api"
	"github.com/kkkkikiki/blooddrive/internal/config"
	"github.com/kkkkikiki/blooddrive/internal/database"
	"github.com/kkkkikiki/blooddrive/internal/events"
	"github.com/kkkkikiki/blooddrive/internal/logger"
	"github.com/kkkkikiki/blooddrive/internal/repository"
	"github.com/kkkkikiki/blooddrive/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "blooddrive: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat, "blooddrive")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting blood drive service", zap.String("environment", cfg.App.Environment))

	location, err := cfg.App.Location()
	if err != nil {
		return err
	}

	// Initialize database connections
	db, err := database.NewDB(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database connections", zap.Error(err))
		}
	}()

	if cfg.App.IsDevelopment() {
		if err := database.Migrate(ctx, db.Postgres, log); err != nil {
			return err
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if db.Redis != nil {
		publisher = events.NewStreamPublisher(db.Redis, cfg.Redis.Stream)
	}

	store := repository.NewPostgresStore(db.Postgres)
	opts := []service.Option{
		service.WithLogger(log),
		service.WithLocation(location),
		service.WithPublisher(publisher),
	}
	rpc := api.NewServer(api.Services{
		Campaigns:      service.NewCampaignService(store, opts...),
		Enrollments:    service.NewEnrollmentService(store, opts...),
		Donations:      service.NewDonationService(store, opts...),
		Questionnaires: service.NewQuestionnaireService(store, opts...),
		Rankings:       service.NewRankingService(store, opts...),
	}, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(log))
	r.Use(middleware.Recoverer)

	rpc.Mount(r)

	hostname, _ := os.Hostname()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"blooddrive","hostname":%q}`, hostname)
	})

	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","message":"postgres unavailable"}`))
			return
		}
		if db.Redis != nil {
			if err := db.Redis.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"error","message":"redis unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","postgres":"connected"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		// h2c serves HTTP/2 without TLS
		Handler: h2c.NewHandler(r, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited gracefully")
	return nil
}
