// Command server runs the circles HTTP API.
//
// Boot sequence: load .env (dev convenience), load and validate config,
// configure zerolog, open SQLite and run migrations, wire the SMS sender,
// set up OpenTelemetry, mount routes, and serve with graceful shutdown.
//
// @title        Circles API
// @version      1.0
// @description  Backend for weekly Rose/Bud/Thorn reflections in private circles.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	_ "github.com/rosebudthorn/circles-backend/docs"
	"github.com/rosebudthorn/circles-backend/internal/config"
	httpapi "github.com/rosebudthorn/circles-backend/internal/http"
	"github.com/rosebudthorn/circles-backend/internal/observability"
	"github.com/rosebudthorn/circles-backend/internal/repo"
	"github.com/rosebudthorn/circles-backend/internal/sms"
	"github.com/rosebudthorn/circles-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("attach gorm tracing plugin")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("set up OpenTelemetry")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(flushCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces on shutdown")
		}
	}()

	sender := buildSender(cfg)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, sender, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildSender wires the configured SMS provider, falling back to a
// log-only sender when no credentials are set (development mode).
// SMS_DRY_RUN=true forces the log-only sender even with credentials.
func buildSender(cfg config.Config) sms.Sender {
	if cfg.Twilio.AccountSID != "" && !sysutil.IsTruthy(os.Getenv("SMS_DRY_RUN")) {
		return sms.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	}
	log.Warn().Msg("no SMS credentials configured; outbound texts will only be logged")
	return sms.Func(func(_ context.Context, toPhone, body string) (string, error) {
		log.Info().Str("to", toPhone).Str("body", body).Msg("sms (dry run)")
		return "dry-run", nil
	})
}
