// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
)

// FeedStats returns aggregate metadata for a circle's weekly feed: the total
// number of reflection rows for (circle, week) and the maximum UpdatedAt
// timestamp among them.
//
// When the circle has no reflections for the week, the returned count is 0
// and maxUpdatedAt is nil.
//
// Return values:
//   - count:        total reflections for (circleID, weekID)
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func FeedStats(ctx context.Context, db *gorm.DB, circleID, weekID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).
		Model(&domain.Reflection{}).
		Where("circle_id = ? AND week_id = ?", circleID, weekID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MembershipStats returns the member count and greatest join timestamp for a
// circle. Used for ETag generation on the member-list endpoint.
func MembershipStats(ctx context.Context, db *gorm.DB, circleID string) (count int64, maxJoinedAt *time.Time, err error) {
	q := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("circle_id = ?", circleID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
