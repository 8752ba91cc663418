package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/oziev02/PostEngagement/internal/config"
	httphandler "github.com/oziev02/PostEngagement/internal/delivery/http"
	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/identity"
	"github.com/oziev02/PostEngagement/internal/infrastructure/backend"
	"github.com/oziev02/PostEngagement/internal/infrastructure/events"
	"github.com/oziev02/PostEngagement/internal/logger"
	"github.com/oziev02/PostEngagement/internal/metrics"
	"github.com/oziev02/PostEngagement/internal/session"
	"github.com/oziev02/PostEngagement/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		slog.Error("failed to create logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
	})
	defer client.Close()

	var publisher domain.EventPublisher = events.Noop{}
	if cfg.NATS.Enabled {
		conn, err := events.Connect(ctx, cfg.NATS.URL, cfg.NATS.SubjectPrefix, cfg.NATS.InitStream, log)
		if err != nil {
			log.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		publisher = events.NewPublisher(conn.JS, cfg.NATS.SubjectPrefix)
		log.Info("nats connection established", "url", cfg.NATS.URL)
	}

	coordinator := usecase.NewCoordinator(client,
		usecase.Config{
			MutationTimeout: cfg.Engagement.MutationTimeout,
			Coalesce:        cfg.Engagement.Coalesce,
		},
		usecase.WithPublisher(publisher),
		usecase.WithNotifier(events.NewLogNotifier(log)),
		usecase.WithMetrics(m),
		usecase.WithLogger(log),
	)

	registry := httphandler.NewRegistry(cfg.Engagement.SessionTTL, m, log,
		session.WithReplyPolicy(domain.ReplyPolicy(cfg.Engagement.ReplyPolicy)),
		session.WithLogger(log),
	)

	handler := httphandler.NewEngagementHandler(coordinator, registry, log)
	mux := httphandler.NewRouter(handler, identity.NewTokenVerifier(cfg.Auth.JWTSecret), reg)

	var h http.Handler = mux
	h = httphandler.CORSMiddleware(h)
	h = httphandler.LoggingMiddleware(log, h)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return registry.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
