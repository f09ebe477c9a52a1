// Package main is the entry point for the widget agent.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/api"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/config"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/delivery"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/fallback"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/handler"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/middleware"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/offline"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/push"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/retry"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/session"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/store"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/tracing"
)

func main() {
	// A .env next to the binary overrides nothing already in the environment.
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting widget agent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "widget-agent", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			// ctx is cancelled before the deferred calls run; the span
			// flush needs its own context to get its timeout.
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	st, err := store.NewSQLite(cfg.StatePath)
	if err != nil {
		log.Error("failed to open state store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	apiClient := api.NewClient(api.Options{
		BaseURL:        cfg.APIBaseURL,
		TenantID:       cfg.TenantID,
		WidgetConfigID: cfg.WidgetConfigID,
		WidgetSecret:   cfg.WidgetSecret,
		RequestTimeout: cfg.RequestTimeout,
		PollTimeout:    cfg.PollTimeout,
		UserAgent:      cfg.UserAgent,
	})

	sessions := session.NewManager(apiClient, st, retry.NewEngine(), session.Identity{
		TenantID:       cfg.TenantID,
		WidgetConfigID: cfg.WidgetConfigID,
		Channel:        cfg.Channel,
		UserAgent:      cfg.UserAgent,
		ReferrerURL:    cfg.ReferrerURL,
	}, log)

	fallbacks := fallback.NewController(log)
	sessions.SetReporter(fallbacks)

	queue := offline.NewQueue(st, sessions.Replay, cfg.FlushSpacing, log)
	sessions.SetBuffer(queue)

	monitor := offline.NewMonitor(apiClient, cfg.ProbeInterval, cfg.ProbeTimeout, log, queue, fallbacks)
	monitor.Start(ctx)

	// Push transport is optional; polling carries handoff traffic when
	// the broker is unreachable.
	var pushClient *push.Client
	if cfg.PushEnabled {
		pushClient, err = push.Connect(push.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("push transport unavailable, polling only", zap.Error(err))
			pushClient = nil
		} else {
			defer pushClient.Close()
		}
	}

	hub := handler.NewHub(log)
	fallbacks.OnChange(hub.DeliverPresentation)
	queue.OnProgress(hub.DeliverQueue)
	sessions.OnStatusChange(hub.DeliverStatus)

	coordinator := delivery.NewCoordinator(apiClient, sessions, hub, pushClient, st, delivery.Options{
		PollInterval:      cfg.PollInterval,
		SubscribeAttempts: cfg.PushSubscribeAttempts,
		SubscribeDelay:    cfg.PushSubscribeDelay,
	}, log)
	if err := coordinator.Start(ctx); err != nil {
		log.Error("failed to start delivery coordinator", zap.Error(err))
		os.Exit(1)
	}

	// Restore last so every subscriber above sees the restored session.
	if err := sessions.Restore(ctx); err != nil {
		log.Warn("failed to restore session state", zap.Error(err))
	}

	healthHandler := handler.NewHealthHandler(st, pushClient)
	messagesHandler := handler.NewMessagesHandler(sessions, log)
	statusHandler := handler.NewStatusHandler(sessions, fallbacks, queue, monitor, log)
	eventsHandler := handler.NewEventsHandler(hub, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/messages", messagesHandler.Send)
		r.Post("/handoff", messagesHandler.RequestHandoff)
		r.Get("/status", statusHandler.Status)
		r.Post("/offline-mode", statusHandler.OfflineMode)
		r.Post("/presentation/dismiss", statusHandler.Dismiss)
		r.Get("/events", eventsHandler.Events)
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("boundary listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down widget agent")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("widget agent stopped")
}
