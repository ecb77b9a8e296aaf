package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/vtc-exchange/auth"
	"github.com/diewo77/vtc-exchange/internal/config"
	"github.com/diewo77/vtc-exchange/internal/db"
	"github.com/diewo77/vtc-exchange/internal/events"
	"github.com/diewo77/vtc-exchange/internal/logger"
	"github.com/diewo77/vtc-exchange/internal/notify"
	"github.com/diewo77/vtc-exchange/internal/policy"
	"github.com/diewo77/vtc-exchange/internal/services"
	"github.com/diewo77/vtc-exchange/internal/storage"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	// Load configuration from .env and environment
	cfg := config.Load()
	log := logger.New(cfg.App.LogLevel)
	slog.SetDefault(log)

	dbConn, err := db.Open(cfg.Database, log)
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}

	if *migrateOnlyFlag {
		if err := db.Migrate(dbConn, cfg); err != nil {
			fatal(log, "migration failed", err)
		}
		log.Info("migrations completed successfully")
		return
	}

	if *seedOnlyFlag {
		if err := db.Seed(dbConn); err != nil {
			fatal(log, "seeding failed", err)
		}
		log.Info("seeding completed successfully")
		return
	}

	if err := db.Migrate(dbConn, cfg); err != nil {
		fatal(log, "migration failed", err)
	}

	// Seed system roles and the permission catalog
	if err := db.Seed(dbConn); err != nil {
		fatal(log, "seeding failed", err)
	}

	auth.SetSecret(cfg.Auth.Secret)

	var publisher events.Publisher = events.LogPublisher{Log: log}
	if cfg.Broker.URL != "" {
		rmq, err := events.NewRabbitMQ(cfg.Broker.URL, cfg.Broker.Exchange, log)
		if err != nil {
			fatal(log, "failed to connect to broker", err)
		}
		defer rmq.Close()
		publisher = rmq
	}

	var mailer notify.Mailer = notify.Console{Log: log}
	if cfg.Mail.SendGridAPIKey != "" {
		mailer = notify.NewSendGrid(cfg.Mail.SendGridAPIKey, cfg.Mail.FromEmail, cfg.Mail.FromName)
	}

	store, err := storage.NewFS(cfg.Storage.UploadDir)
	if err != nil {
		fatal(log, "failed to prepare upload directory", err)
	}

	routerCfg := policy.NewRouterConfig(dbConn, policy.Options{
		CacheTTL: cfg.Auth.ProfileCacheTTL,
		Log:      log,
		Services: services.Options{
			Bus:             events.NewBus(publisher, log),
			Mailer:          mailer,
			Store:           store,
			Log:             log,
			BaseURL:         cfg.App.BaseURL,
			InvitationTTL:   cfg.Auth.InvitationTTL,
			ShareDefaultTTL: cfg.Auth.ShareDefaultTTL,
			ShareMaximumTTL: cfg.Auth.ShareMaximumTTL,
			MaxUploadSize:   cfg.Storage.MaxUploadSize,
		},
	})

	// Blocked or deleted drivers lose their sessions and tokens
	auth.SetUserVerifier(routerCfg.Services.Drivers.Verify)

	appHandler := NewApp(dbConn, routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      withLogging(log, appHandler),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "dev", cfg.App.Dev)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(log, "server error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	log.Info("server stopped gracefully")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection over for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging middleware.
func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
