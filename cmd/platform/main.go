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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/clinicore/platform/internal/adapters/mail"
	"github.com/clinicore/platform/internal/adapters/whatsapp"
	"github.com/clinicore/platform/internal/appointment"
	"github.com/clinicore/platform/internal/clinic"
	"github.com/clinicore/platform/internal/form"
	"github.com/clinicore/platform/internal/notification"
	"github.com/clinicore/platform/internal/patient"
	"github.com/clinicore/platform/internal/shared/auth"
	"github.com/clinicore/platform/internal/shared/config"
	"github.com/clinicore/platform/internal/shared/database"
	"github.com/clinicore/platform/internal/shared/events"
	"github.com/clinicore/platform/internal/shared/logger"
	"github.com/clinicore/platform/internal/shared/metrics"
	secmiddleware "github.com/clinicore/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *database.DB
	Redis  *redis.Client
	Bus    *events.Bus
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	app := &App{Config: cfg, Log: log}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal("database not available", zap.Error(err))
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis not available, provider status will be probed directly", zap.Error(err))
		} else {
			app.Redis = client
			defer client.Close()
		}
	}

	if cfg.EventStore.Enabled {
		bus, err := events.NewBus(ctx, cfg.EventStore, log)
		if err != nil {
			log.Warn("event store not available, running without event streaming", zap.Error(err))
		} else {
			app.Bus = bus
			defer bus.Close()
		}
	}

	// Domain repositories
	clinicRepo := clinic.NewRepository(db.Pool)
	patientRepo := patient.NewRepository(db.Pool)
	appointmentRepo := appointment.NewRepository(db.Pool)
	formRepo := form.NewRepository(db.Pool)

	// Notification repositories
	settingsRepo := notification.NewSettingsRepository(db.Pool)
	templateRepo := notification.NewTemplateRepository(db.Pool)
	eventRepo := notification.NewEventRepository(db.Pool)
	pendingRepo := notification.NewPendingRepository(db.Pool)
	msgLogRepo := notification.NewMessageLogRepository(db.Pool)

	// Dispatch pipeline
	engine := notification.NewEngine()
	resolver := notification.NewResolver(templateRepo, clinicRepo, log)
	builder := notification.NewContextBuilder(
		patientRepo, appointmentRepo, clinicRepo, formRepo, cfg.Providers.FormBaseURL, log)
	mapper := notification.NewMetaTemplateMapper(notification.DefaultMetaTemplateTable())
	senders := buildSenders(cfg, mapper, log)

	var statusCache *notification.StatusCache
	if app.Redis != nil {
		statusCache = notification.NewStatusCache(app.Redis, log)
	}

	dispatcher := notification.NewDispatcher(
		settingsRepo, eventRepo, pendingRepo, msgLogRepo,
		resolver, builder, engine, senders, statusCache, log)

	notificationHandler := notification.NewHandler(
		dispatcher, engine, settingsRepo, eventRepo, pendingRepo, msgLogRepo, senders)

	if app.Bus != nil {
		subscriber := notification.NewSubscriber(app.Bus, dispatcher, eventRepo, settingsRepo, log)
		if err := subscriber.Start(ctx); err != nil {
			log.Warn("event subscriber failed to start", zap.Error(err))
		} else {
			log.Info("event subscriber started")
		}

		if cfg.Reminder.Enabled {
			scheduler := notification.NewReminderScheduler(appointmentRepo, app.Bus, cfg.Reminder, log)
			if err := scheduler.Start(ctx); err != nil {
				log.Warn("reminder scheduler failed to start", zap.Error(err))
			} else {
				defer scheduler.Stop()
			}
		}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.MaxBodySize(1 << 20))
	r.Use(secmiddleware.NewIPRateLimiter(50, 100).Middleware)
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		r.Mount("/notifications", notificationHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	log.Info("server starting",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("redis", app.Redis != nil),
		zap.Bool("event_bus", app.Bus != nil))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}

	<-done
	log.Info("server stopped")
}

// buildSenders wires one sender per channel. Development runs against
// in-memory mock providers so the pipeline works without external
// accounts.
func buildSenders(cfg *config.Config, mapper *notification.MetaTemplateMapper, log *zap.Logger) map[notification.Channel]notification.Sender {
	var mailProvider notification.MailProvider
	var chatProvider notification.ChatProvider

	if cfg.Server.Env == "development" && cfg.Providers.MailAPIKey == "" {
		log.Info("using mock providers")
		mailProvider = notification.NewMockMailProvider()
		chatProvider = notification.NewMockChatProvider()
	} else {
		mailProvider = mail.New(mail.Config{
			BaseURL: cfg.Providers.MailBaseURL,
			APIKey:  cfg.Providers.MailAPIKey,
		})
		chatProvider = whatsapp.New(whatsapp.Config{
			BaseURL:       cfg.Providers.WhatsAppBaseURL,
			APIKey:        cfg.Providers.WhatsAppAPIKey,
			RatePerSecond: cfg.Providers.WhatsAppRate,
			Burst:         cfg.Providers.WhatsAppBurst,
		})
	}

	return map[notification.Channel]notification.Sender{
		notification.ChannelEmail:    notification.NewEmailSender(mailProvider, log),
		notification.ChannelWhatsApp: notification.NewWhatsAppSender(chatProvider, mapper, log),
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Clinicore Notification Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if app.Redis != nil {
			if err := app.Redis.Ping(r.Context()).Err(); err != nil {
				checks["redis"] = "not ready: " + err.Error()
			} else {
				checks["redis"] = "ready"
			}
		} else {
			checks["redis"] = "not configured"
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
			"status": checks,
		})
	}
}
