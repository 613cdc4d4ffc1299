// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Reflection and Comment models.
//
// Reflections are unique per (user, circle, week); inserting a second row
// for the same tuple yields ErrDuplicate. Submitted rows are mutated only
// to attach transcripts. Comments are append-only.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
)

// CreateReflection inserts one reflection row. SubmittedAt is set by the
// caller (nil = draft). A duplicate (user, circle, week) yields ErrDuplicate.
func CreateReflection(ctx context.Context, db *gorm.DB, r *domain.Reflection) (*domain.Reflection, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// GetReflection fetches a reflection by ID, or ErrNotFound.
func GetReflection(ctx context.Context, db *gorm.DB, id string) (*domain.Reflection, error) {
	var r domain.Reflection
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReflectionFor fetches the row for (user, circle, week), or ErrNotFound.
func GetReflectionFor(ctx context.Context, db *gorm.DB, userID, circleID, weekID string) (*domain.Reflection, error) {
	var r domain.Reflection
	err := db.WithContext(ctx).
		Where("user_id = ? AND circle_id = ? AND week_id = ?", userID, circleID, weekID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListSubmittedReflections returns all finalized reflections for a
// (circle, week), oldest submission first. This is the unlock evaluator's
// source for the submitter set.
func ListSubmittedReflections(ctx context.Context, db *gorm.DB, circleID, weekID string) ([]domain.Reflection, error) {
	var out []domain.Reflection
	err := db.WithContext(ctx).
		Where("circle_id = ? AND week_id = ? AND submitted_at IS NOT NULL", circleID, weekID).
		Order("submitted_at asc").
		Find(&out).Error
	return out, err
}

// SubmitterIDs returns the distinct user IDs with a finalized reflection
// for (circle, week).
func SubmitterIDs(ctx context.Context, db *gorm.DB, circleID, weekID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Reflection{}).
		Distinct("user_id").
		Where("circle_id = ? AND week_id = ? AND submitted_at IS NOT NULL", circleID, weekID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// AttachTranscripts backfills transcripts for the three audio fields.
// Empty strings leave the corresponding column untouched. Returns
// ErrNotFound when the reflection does not exist.
func AttachTranscripts(ctx context.Context, db *gorm.DB, id string, rose, bud, thorn string) error {
	updates := map[string]any{}
	if rose != "" {
		updates["rose_transcript"] = rose
	}
	if bud != "" {
		updates["bud_transcript"] = bud
	}
	if thorn != "" {
		updates["thorn_transcript"] = thorn
	}
	if len(updates) == 0 {
		return nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Reflection{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateComment appends a comment to a reflection.
func CreateComment(ctx context.Context, db *gorm.DB, reflectionID, userID, body string) (*domain.Comment, error) {
	c := &domain.Comment{
		ID:           uuid.NewString(),
		ReflectionID: reflectionID,
		UserID:       userID,
		Body:         body,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns a reflection's comments, oldest first.
func ListComments(ctx context.Context, db *gorm.DB, reflectionID string) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("reflection_id = ?", reflectionID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CountComments returns the total number of comments on a reflection.
// On DB error, it returns the error.
func CountComments(ctx context.Context, db *gorm.DB, reflectionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("reflection_id = ?", reflectionID).
		Count(&total).Error
	return total, err
}

// ListCommentsPage returns a paginated slice of a reflection's comments,
// oldest first. Use CountComments to obtain the total for pagination
// metadata. On DB error, it returns the error.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListCommentsPage(ctx context.Context, db *gorm.DB, reflectionID string, offset, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("reflection_id = ?", reflectionID).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
