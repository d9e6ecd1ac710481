package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pulsecare/platform/internal/adapters/his"
	"github.com/pulsecare/platform/internal/ai"
	"github.com/pulsecare/platform/internal/audit"
	"github.com/pulsecare/platform/internal/escalation"
	"github.com/pulsecare/platform/internal/monitor"
	"github.com/pulsecare/platform/internal/notify"
	"github.com/pulsecare/platform/internal/patient"
	"github.com/pulsecare/platform/internal/portal"
	"github.com/pulsecare/platform/internal/risk"
	"github.com/pulsecare/platform/internal/shared/auth"
	"github.com/pulsecare/platform/internal/shared/config"
	"github.com/pulsecare/platform/internal/shared/database"
	"github.com/pulsecare/platform/internal/shared/events"
	"github.com/pulsecare/platform/internal/shared/logger"
	"github.com/pulsecare/platform/internal/shared/metrics"
	secmiddleware "github.com/pulsecare/platform/internal/shared/middleware"
	"github.com/pulsecare/platform/internal/syncqueue"
	"github.com/pulsecare/platform/internal/vitals"
	"go.uber.org/zap"
)

// App holds the long-lived application dependencies
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *database.DB
	Bus    *events.Bus
	Queue  *syncqueue.Queue
	HIS    *his.Adapter
	Poller *monitor.Poller
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Server.Env, "pulsecare")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	app := &App{Config: cfg, Logger: log}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal("database not available", zap.Error(err))
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	// EventStoreDB audit trail is optional; a nil bus publishes no-ops.
	bus, err := events.NewBus(ctx, cfg.EventStore, log)
	if err != nil {
		log.Warn("event store not available, audit trail disabled", zap.Error(err))
		bus = nil
	} else {
		app.Bus = bus
		defer bus.Close()
	}

	// The audit trail tails the event bus for the admin surface.
	trail := audit.NewTrail(log)
	if bus != nil {
		if err := trail.Start(ctx, bus); err != nil {
			log.Warn("audit trail subscription failed", zap.Error(err))
		}
	}

	// Core pipeline wiring.
	patientRepo := patient.NewRepository(db.Pool)
	vitalsRepo := vitals.NewRepository(db.Pool)
	notifyRepo := notify.NewRepository(db.Pool)

	var aiClient *ai.Client
	if cfg.AI.Enabled {
		aiClient = ai.NewClient(cfg.AI)
		log.Info("remote analysis enabled", zap.String("url", cfg.AI.URL))
	}
	classifier := risk.NewClassifier(aiClient, log)

	var profiles portal.ProfileProvider
	if cfg.HIS.Enabled {
		hisAdapter, err := his.New(ctx, cfg.HIS, log)
		if err != nil {
			log.Warn("HIS not available, classification runs without profiles", zap.Error(err))
		} else {
			app.HIS = hisAdapter
			profiles = hisAdapter
			defer hisAdapter.Close()
			log.Info("HIS profile adapter connected", zap.String("host", cfg.HIS.Host))
		}
	}

	service := portal.NewService(
		vitals.NewNormalizer(), vitalsRepo, classifier, notifyRepo,
		profiles, nil, bus, log,
	)

	queue, err := syncqueue.Open(cfg.Queue.Dir, service.ReplayEntry, log)
	if err != nil {
		log.Fatal("failed to open sync queue", zap.Error(err))
	}
	app.Queue = queue
	defer queue.Close()
	service.AttachQueue(queue)

	if queue.Len() > 0 {
		log.Info("replaying writes queued before restart", zap.Int("pending", queue.Len()))
		if err := queue.Flush(ctx); err != nil {
			log.Warn("startup queue replay incomplete", zap.Error(err))
		}
	}

	// Monitoring board and poll loop.
	board := monitor.NewSnapshotStore(bus, log)
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	poller := monitor.NewPoller(patientRepo, vitalsRepo, board, cfg.Monitor.PollInterval, log)
	poller.Start(pollCtx)
	app.Poller = poller

	// Emergency escalation providers: real gateway in production,
	// log-only in development.
	var dialer escalation.Dialer
	var notifier escalation.ContactNotifier
	var locator escalation.Locator
	var sharer escalation.LocationSharer
	if gateway := escalation.NewGateway(cfg.Escalation); gateway != nil {
		dialer, notifier, locator, sharer = gateway, gateway, gateway, gateway
		log.Info("emergency gateway configured", zap.String("url", cfg.Escalation.GatewayURL))
	} else {
		devProviders := escalation.LogProviders{Logger: log}
		dialer, notifier, locator, sharer = devProviders, devProviders, devProviders, devProviders
		log.Warn("no emergency gateway configured, using log-only providers")
	}
	sos := escalation.NewService(dialer, notifier, locator, sharer,
		patientRepo, board, bus, cfg.Escalation, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.NewIPRateLimiter(50, 100).Middleware)
	r.Use(secmiddleware.MaxBody(1 << 20))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		r.Mount("/patients", patient.NewHandler(patientRepo).Routes())
		r.Mount("/vitals", portal.NewHandler(service).Routes())
		r.Mount("/notifications", notify.NewHandler(notifyRepo).Routes())
		r.Mount("/sos", escalation.NewHandler(sos).Routes())

		r.Route("/admin", func(r chi.Router) {
			if cfg.Server.Env == "production" {
				r.Use(auth.RequireAdmin)
			}
			r.Mount("/monitor", monitor.NewHandler(board).Routes())
			r.Mount("/audit", audit.NewHandler(trail).Routes())
		})

		if aiClient != nil {
			r.Mount("/ai", ai.NewHandler(aiClient).Routes())
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down")

		stopPolling()
		poller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	log.Info("pulsecare portal started",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("monitor_interval", cfg.Monitor.PollInterval))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}

	<-done
	log.Info("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "PulseCare Health Monitoring Portal",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"server": "ready"}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		} else {
			checks["eventstore"] = "not configured"
		}

		if app.HIS != nil {
			if err := app.HIS.Health(r.Context()); err != nil {
				checks["his"] = "not ready: " + err.Error()
			} else {
				checks["his"] = "ready"
			}
		} else {
			checks["his"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
