// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// NotificationLog audit trail and the UnlockClaim at-most-once guard.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
)

// AppendNotificationLog records one outbound SMS for (user, circle, week,
// type). The log is append-only; it is never updated or deleted.
func AppendNotificationLog(ctx context.Context, db *gorm.DB, userID, circleID, weekID, typ, messageID string) (*domain.NotificationLog, error) {
	n := &domain.NotificationLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		CircleID:  circleID,
		WeekID:    weekID,
		Type:      typ,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// NotifiedUserIDs returns the distinct users who already received a
// notification of the given type for the week. circleID may be empty to
// query across circles (used by the cross-circle first-reminder dedup).
func NotifiedUserIDs(ctx context.Context, db *gorm.DB, circleID, weekID, typ string) ([]string, error) {
	q := db.WithContext(ctx).
		Model(&domain.NotificationLog{}).
		Distinct("user_id").
		Where("week_id = ? AND type = ?", weekID, typ)
	if circleID != "" {
		q = q.Where("circle_id = ?", circleID)
	}
	var ids []string
	err := q.Pluck("user_id", &ids).Error
	return ids, err
}

// CountNotifications returns the number of log rows for (circle, week, type).
func CountNotifications(ctx context.Context, db *gorm.DB, circleID, weekID, typ string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.NotificationLog{}).
		Where("circle_id = ? AND week_id = ? AND type = ?", circleID, weekID, typ).
		Count(&n).Error
	return n, err
}

// ClaimUnlock attempts to claim the one-time unlock broadcast for
// (circle, week). Exactly one caller per tuple ever succeeds; later or
// concurrent callers get ErrDuplicate and must not broadcast.
func ClaimUnlock(ctx context.Context, db *gorm.DB, circleID, weekID string) error {
	c := &domain.UnlockClaim{
		ID:       uuid.NewString(),
		CircleID: circleID,
		WeekID:   weekID,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UnlockClaimed reports whether the unlock broadcast for (circle, week)
// has already been claimed.
func UnlockClaimed(ctx context.Context, db *gorm.DB, circleID, weekID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.UnlockClaim{}).
		Where("circle_id = ? AND week_id = ?", circleID, weekID).
		Count(&n).Error
	return n > 0, err
}
