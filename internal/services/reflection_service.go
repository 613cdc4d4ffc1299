// Package services – ReflectionService
//
// This file implements the submission path: validate content, gate on the
// mid-week-join rule, insert one reflection row per target circle (sharing
// into several circles duplicates the content per circle on purpose), and
// fire the unlock dispatcher for each affected circle. It also serves the
// weekly feed, transcript backfill, and comments.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReflectionInput carries the user-provided content of one weekly
// reflection.
type ReflectionInput struct {
	RoseText  string
	BudText   string
	ThornText string

	RoseAudioURL  string
	BudAudioURL   string
	ThornAudioURL string

	PhotoURL     string
	PhotoCaption string
}

// empty reports whether no prompt carries content (text or audio).
func (in ReflectionInput) empty() bool {
	return strings.TrimSpace(in.RoseText) == "" &&
		strings.TrimSpace(in.BudText) == "" &&
		strings.TrimSpace(in.ThornText) == "" &&
		in.RoseAudioURL == "" && in.BudAudioURL == "" && in.ThornAudioURL == ""
}

// SubmitResult reports the per-circle outcome of a (possibly multi-circle)
// submission.
type SubmitResult struct {
	Reflections []domain.Reflection `json:"reflections"`
	// SkippedCircles maps circle ID to the reason a copy was not created
	// (mid-week join, duplicate submission, membership missing).
	SkippedCircles map[string]string `json:"skipped_circles,omitempty"`
}

// ReflectionService owns submission, feed, transcript, and comment
// use-cases.
type ReflectionService struct {
	DB     *gorm.DB
	Weeks  *WeekService
	Unlock *UnlockService
	Notify *NotifyService

	// DispatchTimeout bounds the async unlock broadcast after a submission.
	DispatchTimeout time.Duration
}

// Submit finalizes the user's reflection for the current week in each of
// the target circles. One row is inserted per circle (duplicate content by
// design). After each successful insert the unlock dispatcher is triggered
// asynchronously for that circle.
//
// Gate order per circle: membership, then the mid-week-join rule, then the
// per-(user, circle, week) uniqueness. A failure in one circle never
// blocks the others; per-circle skips are reported in the result. The call
// errors only when the week cannot be resolved, the content is empty, no
// target circles are given, or every target was skipped.
func (s *ReflectionService) Submit(ctx context.Context, userID string, circleIDs []string, in ReflectionInput) (*SubmitResult, error) {
	tr := otel.Tracer("services/ReflectionService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("circles", len(circleIDs)),
		),
	)
	defer span.End()

	if in.empty() {
		return nil, ErrEmptyReflection
	}
	if len(circleIDs) == 0 {
		return nil, ErrCircleNotFound
	}

	week, err := s.Weeks.Current(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res := &SubmitResult{SkippedCircles: map[string]string{}}

	for _, circleID := range circleIDs {
		if _, merr := repo.GetMembership(ctx, s.DB, circleID, userID); merr != nil {
			res.SkippedCircles[circleID] = ErrNotMember.Error()
			continue
		}
		if s.Unlock.JoinedMidWeek(ctx, userID, week.ID, circleID) {
			res.SkippedCircles[circleID] = ErrMidWeekJoiner.Error()
			continue
		}

		submittedAt := now
		r := &domain.Reflection{
			UserID:   userID,
			CircleID: circleID,
			WeekID:   week.ID,

			RoseText:  strings.TrimSpace(in.RoseText),
			BudText:   strings.TrimSpace(in.BudText),
			ThornText: strings.TrimSpace(in.ThornText),

			RoseAudioURL:  in.RoseAudioURL,
			BudAudioURL:   in.BudAudioURL,
			ThornAudioURL: in.ThornAudioURL,

			PhotoURL:     in.PhotoURL,
			PhotoCaption: in.PhotoCaption,

			SubmittedAt: &submittedAt,
		}
		created, cerr := repo.CreateReflection(ctx, s.DB, r)
		if cerr != nil {
			if errors.Is(cerr, repo.ErrDuplicate) {
				res.SkippedCircles[circleID] = ErrAlreadySubmitted.Error()
			} else {
				res.SkippedCircles[circleID] = cerr.Error()
			}
			continue
		}
		res.Reflections = append(res.Reflections, *created)

		// This submission may have been the last missing one.
		s.Notify.DispatchAsync(circleID, week.ID, s.DispatchTimeout)
	}

	if len(res.Reflections) == 0 {
		// Every target was skipped; surface the dominant reason.
		for _, reason := range res.SkippedCircles {
			switch reason {
			case ErrMidWeekJoiner.Error():
				return nil, ErrMidWeekJoiner
			case ErrAlreadySubmitted.Error():
				return nil, ErrAlreadySubmitted
			}
		}
		return nil, ErrNotMember
	}
	return res, nil
}

// FeedEntry is one reflection in a circle's weekly feed. Until the circle
// unlocks, other members' entries appear with Hidden=true and no content.
type FeedEntry struct {
	Reflection *domain.Reflection `json:"reflection,omitempty"`
	UserID     string             `json:"user_id"`
	Hidden     bool               `json:"hidden"`
}

// Feed returns the circle's entries for the week. The caller's own
// reflection is always visible; everyone else's content is withheld until
// the unlock evaluator says the week is open.
func (s *ReflectionService) Feed(ctx context.Context, userID, circleID, weekID string) ([]FeedEntry, bool, error) {
	tr := otel.Tracer("services/ReflectionService")
	ctx, span := tr.Start(ctx, "Feed",
		trace.WithAttributes(
			attribute.String("circle.id", circleID),
			attribute.String("week.id", weekID),
		),
	)
	defer span.End()

	if _, err := repo.GetMembership(ctx, s.DB, circleID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrNotMember
		}
		return nil, false, err
	}

	unlocked := s.Unlock.IsUnlocked(ctx, circleID, weekID)
	rows, err := repo.ListSubmittedReflections(ctx, s.DB, circleID, weekID)
	if err != nil {
		return nil, unlocked, err
	}

	out := make([]FeedEntry, 0, len(rows))
	for i := range rows {
		r := rows[i]
		if unlocked || r.UserID == userID {
			out = append(out, FeedEntry{Reflection: &r, UserID: r.UserID})
			continue
		}
		out = append(out, FeedEntry{UserID: r.UserID, Hidden: true})
	}
	span.SetAttributes(attribute.Bool("feed.unlocked", unlocked))
	return out, unlocked, nil
}

// AttachTranscript backfills audio transcripts on the caller's own
// reflection.
func (s *ReflectionService) AttachTranscript(ctx context.Context, userID, reflectionID string, rose, bud, thorn string) error {
	r, err := repo.GetReflection(ctx, s.DB, reflectionID)
	if err != nil || r.UserID != userID {
		return ErrReflectionNotFound
	}
	if err := repo.AttachTranscripts(ctx, s.DB, reflectionID, rose, bud, thorn); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReflectionNotFound
		}
		return err
	}
	return nil
}

// Comment appends a comment to a reflection the caller can see: their own,
// or any member's once the circle's week is unlocked.
func (s *ReflectionService) Comment(ctx context.Context, userID, reflectionID, body string) (*domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyReflection
	}

	r, err := s.visibleReflection(ctx, userID, reflectionID)
	if err != nil {
		return nil, err
	}
	return repo.CreateComment(ctx, s.DB, r.ID, userID, body)
}

// Comments lists a visible reflection's comments, oldest first.
func (s *ReflectionService) Comments(ctx context.Context, userID, reflectionID string) ([]domain.Comment, error) {
	r, err := s.visibleReflection(ctx, userID, reflectionID)
	if err != nil {
		return nil, err
	}
	return repo.ListComments(ctx, s.DB, r.ID)
}

// CommentsPage returns one page of a visible reflection's comments plus the
// total count for pagination metadata. Visibility rules match Comments.
func (s *ReflectionService) CommentsPage(ctx context.Context, userID, reflectionID string, page, pageSize int) ([]domain.Comment, int64, error) {
	r, err := s.visibleReflection(ctx, userID, reflectionID)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.CountComments(ctx, s.DB, r.ID)
	if err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * pageSize
	out, err := repo.ListCommentsPage(ctx, s.DB, r.ID, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// visibleReflection enforces the unlock-based visibility rule shared by the
// comment operations.
func (s *ReflectionService) visibleReflection(ctx context.Context, userID, reflectionID string) (*domain.Reflection, error) {
	r, err := repo.GetReflection(ctx, s.DB, reflectionID)
	if err != nil {
		return nil, ErrReflectionNotFound
	}
	if _, err := repo.GetMembership(ctx, s.DB, r.CircleID, userID); err != nil {
		return nil, ErrReflectionNotFound
	}
	if r.UserID != userID && !s.Unlock.IsUnlocked(ctx, r.CircleID, r.WeekID) {
		return nil, ErrReflectionLocked
	}
	return r, nil
}
