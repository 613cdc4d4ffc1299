// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Profile
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a profile is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - A phone-uniqueness violation surfaces as ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique-constraint violation (duplicate phone,
// membership, reflection, idempotency key, or unlock claim).
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation detects unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "duplicate key") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateProfile inserts a new Profile with a generated UUID and UTC
// timestamp. A duplicate phone number yields ErrDuplicate.
func CreateProfile(ctx context.Context, db *gorm.DB, displayName, phone string) (*domain.Profile, error) {
	p := &domain.Profile{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Phone:       phone,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// GetProfile fetches a profile by ID, or ErrNotFound if missing.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByPhone fetches a profile by its unique phone number.
func GetProfileByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("phone = ?", phone).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns the profiles for the given user IDs. Missing IDs are
// silently absent from the result; callers needing strictness should compare
// lengths.
func ListProfiles(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return []domain.Profile{}, nil
	}
	var out []domain.Profile
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// SetSmsOptOut sets or clears the profile's opt-out timestamp. When optedOut
// is true the timestamp is set to "at"; otherwise it is cleared. Returns
// ErrNotFound when no row matched.
func SetSmsOptOut(ctx context.Context, db *gorm.DB, userID string, optedOut bool, at time.Time) error {
	var val any
	if optedOut {
		val = at.UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", userID).
		Update("sms_opted_out_at", val)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetSmsOptOutByPhone is the webhook variant of SetSmsOptOut: the SMS
// provider identifies the sender only by phone number.
func SetSmsOptOutByPhone(ctx context.Context, db *gorm.DB, phone string, optedOut bool, at time.Time) error {
	var val any
	if optedOut {
		val = at.UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("phone = ?", phone).
		Update("sms_opted_out_at", val)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
