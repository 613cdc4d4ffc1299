// Package services – UnlockService
//
// This file implements the unlock evaluator and the mid-week-join
// classifier, the two primitives behind the weekly-cycle state machine.
// Both are pure reads: unlock state is recomputed on every call and never
// cached, so the predicate is idempotent and safe to call concurrently.
//
// Failure semantics differ deliberately between the two:
//   - the evaluator fails CLOSED (unreadable data → locked), because a
//     spurious unlock leaks unshared reflections and can fire SMS;
//   - the classifier fails OPEN (unreadable data → pre-week/eligible),
//     preferring availability: the worst case is one extra reminder.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UnlockService evaluates circle unlock state and membership eligibility
// for a given week.
type UnlockService struct {
	DB *gorm.DB
}

// UnlockStatus is the evaluator's full answer, used by the diagnostic
// endpoint. Unlocked is the authoritative predicate value.
type UnlockStatus struct {
	Unlocked       bool     `json:"unlocked"`
	PreWeekMembers []string `json:"pre_week_members"`
	Submitters     []string `json:"submitters"`
	Missing        []string `json:"missing"`
}

// IsUnlocked reports whether every pre-week member of the circle has a
// finalized reflection for the week.
//
// Semantics:
//   - any fetch error fails closed (returns false);
//   - the pre-week cutoff is membership.CreatedAt <= week.StartsAt
//     (non-strict: joining exactly at the boundary counts as pre-week);
//   - an empty pre-week member set is vacuously unlocked: such a circle
//     imposes no submission requirement.
func (s *UnlockService) IsUnlocked(ctx context.Context, circleID, weekID string) bool {
	st, err := s.Status(ctx, circleID, weekID)
	if err != nil {
		log.Warn().Err(err).
			Str("circle_id", circleID).
			Str("week_id", weekID).
			Msg("unlock evaluation failed; treating circle as locked")
		return false
	}
	return st.Unlocked
}

// Status computes the full unlock picture for (circle, week). Unlike
// IsUnlocked it propagates fetch errors so diagnostic callers can
// distinguish "locked" from "unknown".
func (s *UnlockService) Status(ctx context.Context, circleID, weekID string) (*UnlockStatus, error) {
	tr := otel.Tracer("services/UnlockService")
	ctx, span := tr.Start(ctx, "Status",
		trace.WithAttributes(
			attribute.String("circle.id", circleID),
			attribute.String("week.id", weekID),
		),
	)
	defer span.End()

	week, err := repo.GetWeek(ctx, s.DB, weekID)
	if err != nil {
		return nil, err
	}

	members, err := repo.ListMemberships(ctx, s.DB, circleID)
	if err != nil {
		return nil, err
	}

	// Pre-week cutoff: non-strict <=, the complement of the classifier's
	// strict >. The two must never disagree on a boundary instant.
	preWeek := make([]string, 0, len(members))
	for _, m := range members {
		if !m.CreatedAt.After(week.StartsAt) {
			preWeek = append(preWeek, m.UserID)
		}
	}

	st := &UnlockStatus{PreWeekMembers: preWeek}
	if len(preWeek) == 0 {
		st.Unlocked = true
		st.Submitters = []string{}
		st.Missing = []string{}
		span.SetAttributes(attribute.Bool("unlock.vacuous", true))
		return st, nil
	}

	submitters, err := repo.SubmitterIDs(ctx, s.DB, circleID, weekID)
	if err != nil {
		return nil, err
	}
	st.Submitters = submitters

	submitted := make(map[string]struct{}, len(submitters))
	for _, id := range submitters {
		submitted[id] = struct{}{}
	}
	st.Missing = []string{}
	for _, id := range preWeek {
		if _, ok := submitted[id]; !ok {
			st.Missing = append(st.Missing, id)
		}
	}
	st.Unlocked = len(st.Missing) == 0

	span.SetAttributes(
		attribute.Bool("unlock.unlocked", st.Unlocked),
		attribute.Int("unlock.pre_week_members", len(preWeek)),
		attribute.Int("unlock.submitters", len(submitters)),
	)
	return st, nil
}

// JoinedMidWeek reports whether the user's membership began strictly after
// the week's start instant. Joining exactly at the week start counts as
// pre-week.
//
// When circleID is set, the (user, circle) membership is consulted; when
// empty, the user's earliest membership across circles is used as a
// fallback. Any fetch error fails OPEN: the user is treated as pre-week.
func (s *UnlockService) JoinedMidWeek(ctx context.Context, userID, weekID, circleID string) bool {
	tr := otel.Tracer("services/UnlockService")
	ctx, span := tr.Start(ctx, "JoinedMidWeek",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("week.id", weekID),
		),
	)
	defer span.End()

	week, err := repo.GetWeek(ctx, s.DB, weekID)
	if err != nil {
		log.Warn().Err(err).Str("week_id", weekID).
			Msg("mid-week classification failed on week fetch; treating as pre-week")
		return false
	}

	var m *domain.Membership
	if circleID != "" {
		m, err = repo.GetMembership(ctx, s.DB, circleID, userID)
	} else {
		m, err = repo.GetEarliestMembership(ctx, s.DB, userID)
	}
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).
			Msg("mid-week classification failed on membership fetch; treating as pre-week")
		return false
	}

	return m.CreatedAt.After(week.StartsAt)
}
