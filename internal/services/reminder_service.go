// Package services – ReminderService
//
// This file implements the two scheduled reminder dispatchers. Both resolve
// the current week, walk every circle, and text pre-week members who have
// not submitted yet; they differ in scope:
//
//   - SendFirstReminders (early week): eligibility is computed per circle
//     but users belonging to several circles are de-duplicated so each
//     physical person receives at most one SMS per run. Logged as
//     "first_reminder".
//   - SendSecondReminders (late week): computed strictly per circle with no
//     cross-circle de-duplication; each circle's non-submitters are
//     reminded about that circle. Logged as "second_reminder".
//
// Shared rules: opted-out profiles are never texted; a provider-reported
// opt-out persists the opt-out timestamp retroactively; the notification
// log suppresses re-sends within a run and across reruns in the same week;
// per-user failures are counted and never abort the batch.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"
	"github.com/rosebudthorn/circles-backend/internal/sms"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ReminderService runs the scheduled early- and late-week reminder batches.
type ReminderService struct {
	DB     *gorm.DB
	Sender sms.Sender
	Weeks  *WeekService
	Unlock *UnlockService
}

// SendFirstReminders texts every pre-week member who has not submitted in
// at least one of their circles, once per user for the current week.
func (s *ReminderService) SendFirstReminders(ctx context.Context) (DispatchResult, error) {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "SendFirstReminders")
	defer span.End()

	week, err := s.Weeks.Current(ctx)
	if err != nil {
		return DispatchResult{}, err
	}

	circles, err := repo.ListAllCircles(ctx, s.DB)
	if err != nil {
		return DispatchResult{}, err
	}

	// Reminder eligibility is per-circle, delivery is per-user: collect the
	// union of non-submitters across circles, keyed by user, remembering one
	// (circle, user) pair for the audit log.
	type pending struct{ circleID string }
	eligible := make(map[string]pending)
	for _, c := range circles {
		missing, merr := s.missingForCircle(ctx, c.ID, week)
		if merr != nil {
			log.Warn().Err(merr).Str("circle_id", c.ID).
				Msg("skipping circle in first-reminder run")
			continue
		}
		for _, uid := range missing {
			if _, seen := eligible[uid]; !seen {
				eligible[uid] = pending{circleID: c.ID}
			}
		}
	}

	// Suppress users already texted this week (rerun safety).
	already, err := repo.NotifiedUserIDs(ctx, s.DB, "", week.ID, domain.NotificationFirstReminder)
	if err != nil {
		return DispatchResult{}, err
	}
	for _, uid := range already {
		delete(eligible, uid)
	}

	res := DispatchResult{Success: true}
	for uid, p := range eligible {
		if err := s.remindUser(ctx, uid, p.circleID, week.ID, domain.NotificationFirstReminder,
			func(name string) string {
				return fmt.Sprintf("Hey %s! A new week of Rose, Bud, Thorn has started. Share yours so your circle can unlock.", name)
			}); err != nil {
			if !errors.Is(err, errSkipOptedOut) {
				res.Errors++
			}
			continue
		}
		res.Sent++
	}

	span.SetAttributes(
		attribute.Int("reminder.sent", res.Sent),
		attribute.Int("reminder.errors", res.Errors),
	)
	return res, nil
}

// SendSecondReminders texts each circle's pre-week non-submitters late in
// the week, once per (user, circle). Users in several lagging circles get
// one text per circle.
func (s *ReminderService) SendSecondReminders(ctx context.Context) (DispatchResult, error) {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "SendSecondReminders")
	defer span.End()

	week, err := s.Weeks.Current(ctx)
	if err != nil {
		return DispatchResult{}, err
	}

	circles, err := repo.ListAllCircles(ctx, s.DB)
	if err != nil {
		return DispatchResult{}, err
	}

	res := DispatchResult{Success: true}
	for _, c := range circles {
		missing, merr := s.missingForCircle(ctx, c.ID, week)
		if merr != nil {
			log.Warn().Err(merr).Str("circle_id", c.ID).
				Msg("skipping circle in second-reminder run")
			continue
		}
		if len(missing) == 0 {
			continue
		}

		already, aerr := repo.NotifiedUserIDs(ctx, s.DB, c.ID, week.ID, domain.NotificationSecondReminder)
		if aerr != nil {
			log.Warn().Err(aerr).Str("circle_id", c.ID).
				Msg("skipping circle in second-reminder run")
			continue
		}
		notified := make(map[string]struct{}, len(already))
		for _, uid := range already {
			notified[uid] = struct{}{}
		}

		circleName := c.Name
		for _, uid := range missing {
			if _, done := notified[uid]; done {
				continue
			}
			if err := s.remindUser(ctx, uid, c.ID, week.ID, domain.NotificationSecondReminder,
				func(name string) string {
					return fmt.Sprintf("%s, your circle %q is waiting on you! The week wraps up soon. Share your Rose, Bud & Thorn.", name, circleName)
				}); err != nil {
				if !errors.Is(err, errSkipOptedOut) {
					res.Errors++
				}
				continue
			}
			res.Sent++
		}
	}

	span.SetAttributes(
		attribute.Int("reminder.sent", res.Sent),
		attribute.Int("reminder.errors", res.Errors),
	)
	return res, nil
}

// missingForCircle returns the circle's pre-week members without a finalized
// reflection for the week, using the same cutoff rule as the unlock
// evaluator.
func (s *ReminderService) missingForCircle(ctx context.Context, circleID string, week *domain.Week) ([]string, error) {
	members, err := repo.ListMemberships(ctx, s.DB, circleID)
	if err != nil {
		return nil, err
	}
	submitters, err := repo.SubmitterIDs(ctx, s.DB, circleID, week.ID)
	if err != nil {
		return nil, err
	}
	submitted := make(map[string]struct{}, len(submitters))
	for _, id := range submitters {
		submitted[id] = struct{}{}
	}

	var missing []string
	for _, m := range members {
		if m.CreatedAt.After(week.StartsAt) {
			// Mid-week joiner: excluded from accounting and reminders.
			continue
		}
		if _, ok := submitted[m.UserID]; ok {
			continue
		}
		missing = append(missing, m.UserID)
	}
	return missing, nil
}

// remindUser loads the profile, applies the opt-out gate, sends one SMS and
// appends the audit row. A provider-reported opt-out persists the opt-out
// timestamp retroactively and does not count as a send error.
func (s *ReminderService) remindUser(ctx context.Context, userID, circleID, weekID, typ string, body func(name string) string) error {
	p, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("reminder skipped: profile fetch failed")
		return err
	}
	if p.SmsOptedOutAt != nil {
		return errSkipOptedOut
	}

	msgID, serr := s.Sender.Send(ctx, p.Phone, body(p.DisplayName))
	if serr != nil {
		if errors.Is(serr, sms.ErrRecipientOptedOut) {
			// The provider knows something we don't; record it so future
			// runs skip this user up front.
			if uerr := repo.SetSmsOptOut(ctx, s.DB, userID, true, time.Now().UTC()); uerr != nil {
				log.Warn().Err(uerr).Str("user_id", userID).Msg("failed to persist provider opt-out")
			}
			return errSkipOptedOut
		}
		log.Warn().Err(serr).Str("user_id", userID).Msg("reminder SMS send failed")
		return serr
	}

	if _, lerr := repo.AppendNotificationLog(ctx, s.DB, userID, circleID, weekID, typ, msgID); lerr != nil {
		log.Warn().Err(lerr).Str("user_id", userID).Msg("reminder log append failed")
	}
	return nil
}

// errSkipOptedOut marks a user skipped by the opt-out gate. Skips are
// neither sends nor errors in the aggregate counts.
var errSkipOptedOut = errors.New("skipped: recipient opted out")
