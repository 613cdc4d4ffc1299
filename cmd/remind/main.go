// Command remind runs one reminder batch and exits. It is meant to be
// invoked by cron or a scheduler twice a week:
//
//	remind -variant first    # early week: one SMS per lagging user
//	remind -variant second   # late week: one SMS per lagging (user, circle)
//
// Both batches consult the notification log, so rerunning after a crash
// never double-texts anyone.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rosebudthorn/circles-backend/internal/config"
	"github.com/rosebudthorn/circles-backend/internal/repo"
	"github.com/rosebudthorn/circles-backend/internal/services"
	"github.com/rosebudthorn/circles-backend/internal/sms"
	"github.com/rosebudthorn/circles-backend/internal/sysutil"
)

func main() {
	variant := flag.String("variant", "first", `reminder batch to run: "first" or "second"`)
	timeout := flag.Duration("timeout", 10*time.Minute, "overall batch deadline")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	var sender sms.Sender
	if cfg.Twilio.AccountSID != "" && !sysutil.IsTruthy(os.Getenv("SMS_DRY_RUN")) {
		sender = sms.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	} else {
		log.Warn().Msg("no SMS credentials configured; reminders will only be logged")
		sender = sms.Func(func(_ context.Context, toPhone, body string) (string, error) {
			log.Info().Str("to", toPhone).Str("body", body).Msg("sms (dry run)")
			return "dry-run", nil
		})
	}

	weekSvc := services.NewWeekService(db)
	weekSvc.StartDay = cfg.Week.StartDay
	weekSvc.StartHour = cfg.Week.StartHour
	weekSvc.Location = cfg.Week.Location

	svc := &services.ReminderService{
		DB:     db,
		Sender: sender,
		Weeks:  weekSvc,
		Unlock: &services.UnlockService{DB: db},
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var res services.DispatchResult
	switch *variant {
	case "first":
		res, err = svc.SendFirstReminders(ctx)
	case "second":
		res, err = svc.SendSecondReminders(ctx)
	default:
		log.Fatal().Str("variant", *variant).Msg(`variant must be "first" or "second"`)
	}
	if err != nil {
		log.Fatal().Err(err).Str("variant", *variant).Msg("reminder batch failed")
	}

	log.Info().
		Str("variant", *variant).
		Int("sent", res.Sent).
		Int("errors", res.Errors).
		Msg("reminder batch finished")
}
