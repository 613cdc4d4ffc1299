// Package services – WeekService
//
// This file implements the week resolver: the component that maps "now" to
// the active reflection cycle. Weeks are contiguous [start, end) ranges
// anchored on a configurable weekday and hour (nominally Sunday 19:00).
// Rows are created lazily; the unique index on the start instant keeps
// concurrent resolvers from minting duplicate weeks.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WeekService resolves and lazily creates reflection cycles.
type WeekService struct {
	DB *gorm.DB

	// Anchor configuration: weeks run [anchor, anchor+7d) where anchor is
	// the most recent StartDay at StartHour in Location.
	StartDay  time.Weekday
	StartHour int
	Location  *time.Location

	// Now is a clock seam for tests; time.Now is used when nil.
	Now func() time.Time
}

// NewWeekService constructs a WeekService with the nominal Sunday-19:00-UTC
// anchor.
func NewWeekService(db *gorm.DB) *WeekService {
	return &WeekService{
		DB:        db,
		StartDay:  time.Sunday,
		StartHour: 19,
		Location:  time.UTC,
	}
}

// Current returns the week covering "now", creating it when absent.
//
// Failure semantics: any persistence error is wrapped as ErrNoCurrentWeek;
// callers must treat that as a hard stop (surface a retry) rather than
// guessing a week.
func (s *WeekService) Current(ctx context.Context) (*domain.Week, error) {
	tr := otel.Tracer("services/WeekService")
	ctx, span := tr.Start(ctx, "Current")
	defer span.End()

	now := s.now()
	if w, err := repo.GetWeekCovering(ctx, s.DB, now); err == nil {
		return w, nil
	}
	// Missing or unreadable; compute the anchored boundaries and upsert.
	start := s.weekStartFor(now)
	end := start.AddDate(0, 0, 7)
	span.SetAttributes(attribute.String("week.starts_at", start.Format(time.RFC3339)))

	w, err := repo.GetOrCreateWeek(ctx, s.DB, start, end)
	if err != nil {
		span.SetAttributes(attribute.Bool("week.resolve_failed", true))
		return nil, ErrNoCurrentWeek
	}
	return w, nil
}

// Get fetches a week by ID.
func (s *WeekService) Get(ctx context.Context, id string) (*domain.Week, error) {
	tr := otel.Tracer("services/WeekService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("week.id", id)),
	)
	defer span.End()

	w, err := repo.GetWeek(ctx, s.DB, id)
	if err != nil {
		return nil, ErrWeekNotFound
	}
	return w, nil
}

// weekStartFor computes the anchored start instant of the week containing t:
// the most recent StartDay at StartHour (in Location) at or before t.
func (s *WeekService) weekStartFor(t time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)

	daysBack := int(t.Weekday() - s.StartDay)
	if daysBack < 0 {
		daysBack += 7
	}
	candidate := time.Date(t.Year(), t.Month(), t.Day(), s.StartHour, 0, 0, 0, loc).
		AddDate(0, 0, -daysBack)
	// Same weekday but before the anchor hour: the containing week started
	// seven days earlier.
	if candidate.After(t) {
		candidate = candidate.AddDate(0, 0, -7)
	}
	return candidate.UTC()
}

func (s *WeekService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
