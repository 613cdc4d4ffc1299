// Package services – NotifyService
//
// This file implements the unlock-notification dispatcher: re-evaluate a
// circle's unlock state and, when newly unlocked, broadcast one SMS to every
// member exactly once per (circle, week).
//
// At-most-once is enforced by claiming the broadcast before any send: the
// unique (circle_id, week_id) constraint on unlock_claims means that of two
// dispatchers racing after the final submission, exactly one wins the insert
// and sends; the other observes the duplicate and returns sent=0.
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
	"go.opentelemetry.io/otel/trace"
)

// DispatchResult aggregates the outcome of one dispatcher run.
type DispatchResult struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Errors  int  `json:"errors"`
}

// NotifyService sends the one-time unlock broadcast for a circle's week.
type NotifyService struct {
	DB     *gorm.DB
	Sender sms.Sender
	Unlock *UnlockService
}

// SendUnlockSMS re-evaluates unlock state for (circle, week) and, if
// unlocked and not yet broadcast, texts every current member and appends
// one "unlock" NotificationLog row per member.
//
// Semantics:
//   - locked circle: no-op, Success=true, Sent=0 (cheap and idempotent,
//     unlock state is recomputed rather than stored);
//   - already-claimed broadcast: no-op, Sent=0;
//   - per-member SMS failures are counted and do not block other members;
//   - a log-append failure after a successful send is swallowed (the send
//     still counts).
func (s *NotifyService) SendUnlockSMS(ctx context.Context, circleID, weekID string) (DispatchResult, error) {
	tr := otel.Tracer("services/NotifyService")
	ctx, span := tr.Start(ctx, "SendUnlockSMS",
		trace.WithAttributes(
			attribute.String("circle.id", circleID),
			attribute.String("week.id", weekID),
		),
	)
	defer span.End()

	res := DispatchResult{Success: true}

	if !s.Unlock.IsUnlocked(ctx, circleID, weekID) {
		return res, nil
	}

	// Claim before sending. Losing the claim race means another dispatcher
	// already owns (or owned) this broadcast.
	if err := repo.ClaimUnlock(ctx, s.DB, circleID, weekID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			span.SetAttributes(attribute.Bool("unlock.already_claimed", true))
			return res, nil
		}
		return DispatchResult{}, err
	}

	circle, err := repo.GetCircle(ctx, s.DB, circleID)
	if err != nil {
		return DispatchResult{}, err
	}
	members, err := repo.ListMemberships(ctx, s.DB, circleID)
	if err != nil {
		return DispatchResult{}, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	profiles, err := repo.ListProfiles(ctx, s.DB, ids)
	if err != nil {
		return DispatchResult{}, err
	}

	body := fmt.Sprintf("%s is unlocked! Everyone has shared their Rose, Bud & Thorn this week. Go see what your circle wrote.", circle.Name)

	for _, p := range profiles {
		msgID, serr := s.Sender.Send(ctx, p.Phone, body)
		if serr != nil {
			res.Errors++
			log.Warn().Err(serr).
				Str("circle_id", circleID).
				Str("user_id", p.ID).
				Msg("unlock SMS send failed")
			continue
		}
		res.Sent++
		if _, lerr := repo.AppendNotificationLog(ctx, s.DB, p.ID, circleID, weekID, domain.NotificationUnlock, msgID); lerr != nil {
			// The member got the text; losing the audit row is tolerable.
			log.Warn().Err(lerr).
				Str("circle_id", circleID).
				Str("user_id", p.ID).
				Msg("unlock notification log append failed")
		}
	}

	span.SetAttributes(
		attribute.Int("unlock.sent", res.Sent),
		attribute.Int("unlock.errors", res.Errors),
	)
	return res, nil
}

// DispatchAsync runs SendUnlockSMS on a detached context with a timeout,
// logging the outcome. Used after reflection submissions so the request
// path does not wait on SMS round trips.
func (s *NotifyService) DispatchAsync(circleID, weekID string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := s.SendUnlockSMS(ctx, circleID, weekID)
		if err != nil {
			log.Error().Err(err).
				Str("circle_id", circleID).
				Str("week_id", weekID).
				Msg("async unlock dispatch failed")
			return
		}
		if res.Sent > 0 || res.Errors > 0 {
			log.Info().
				Str("circle_id", circleID).
				Str("week_id", weekID).
				Int("sent", res.Sent).
				Int("errors", res.Errors).
				Msg("unlock broadcast dispatched")
		}
	}()
}
