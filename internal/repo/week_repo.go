// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Week
// model, including the race-safe get-or-create routine the week resolver
// relies on.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
)

// GetWeek fetches a week by ID, or ErrNotFound.
func GetWeek(ctx context.Context, db *gorm.DB, id string) (*domain.Week, error) {
	var w domain.Week
	if err := db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWeekCovering returns the week whose [starts_at, ends_at) interval
// contains the given instant, or ErrNotFound when no such row exists.
func GetWeekCovering(ctx context.Context, db *gorm.DB, at time.Time) (*domain.Week, error) {
	at = at.UTC()
	var w domain.Week
	err := db.WithContext(ctx).
		Where("starts_at <= ? AND ends_at > ?", at, at).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetOrCreateWeek returns the week starting at startsAt, inserting it when
// absent. The unique index on starts_at makes concurrent callers converge
// on a single row: the loser of an insert race re-reads the winner's row.
func GetOrCreateWeek(ctx context.Context, db *gorm.DB, startsAt, endsAt time.Time) (*domain.Week, error) {
	startsAt, endsAt = startsAt.UTC(), endsAt.UTC()

	var existing domain.Week
	err := db.WithContext(ctx).Where("starts_at = ?", startsAt).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	w := &domain.Week{
		ID:        uuid.NewString(),
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		CreatedAt: time.Now().UTC(),
	}
	if cerr := db.WithContext(ctx).Create(w).Error; cerr != nil {
		if isUniqueViolation(cerr) {
			// Concurrent creator won; return its row.
			var won domain.Week
			if rerr := db.WithContext(ctx).Where("starts_at = ?", startsAt).First(&won).Error; rerr != nil {
				return nil, rerr
			}
			return &won, nil
		}
		return nil, cerr
	}
	return w, nil
}
