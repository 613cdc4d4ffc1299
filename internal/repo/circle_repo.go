// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Circle
// and Membership models.
//
// Circles are immutable after creation except for invite-link backfill.
// Memberships are the join rows whose CreatedAt drives the pre-week /
// mid-week classification, so their timestamps are never mutated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
)

// CreateCircle inserts a new Circle with a generated UUID.
func CreateCircle(ctx context.Context, db *gorm.DB, name, inviteToken, ownerName, inviteLink string) (*domain.Circle, error) {
	c := &domain.Circle{
		ID:          uuid.NewString(),
		Name:        name,
		InviteToken: inviteToken,
		OwnerName:   ownerName,
		InviteLink:  inviteLink,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetCircle fetches a circle by ID, or ErrNotFound if missing.
func GetCircle(ctx context.Context, db *gorm.DB, id string) (*domain.Circle, error) {
	var c domain.Circle
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCircleByInviteToken fetches a circle by its unique invite token.
func GetCircleByInviteToken(ctx context.Context, db *gorm.DB, token string) (*domain.Circle, error) {
	var c domain.Circle
	if err := db.WithContext(ctx).Where("invite_token = ?", token).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCircleInviteLink backfills the shareable invite link. This is the
// only mutation circles support after creation.
func UpdateCircleInviteLink(ctx context.Context, db *gorm.DB, id, link string) error {
	res := db.WithContext(ctx).
		Model(&domain.Circle{}).
		Where("id = ?", id).
		Update("invite_link", link)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListAllCircles returns every circle, ordered by creation time. Used by the
// scheduled reminder dispatchers, which iterate the full population.
func ListAllCircles(ctx context.Context, db *gorm.DB) ([]domain.Circle, error) {
	var out []domain.Circle
	err := db.WithContext(ctx).Order("created_at asc").Find(&out).Error
	return out, err
}

// ListCirclesForUser returns the circles the user belongs to, most recently
// joined first.
func ListCirclesForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Circle, error) {
	var out []domain.Circle
	err := db.WithContext(ctx).
		Joins("JOIN circle_members ON circle_members.circle_id = circles.id").
		Where("circle_members.user_id = ?", userID).
		Order("circle_members.created_at desc").
		Find(&out).Error
	return out, err
}

// CreateMembership inserts the (circle, user) join row. A second join of the
// same user to the same circle yields ErrDuplicate.
func CreateMembership(ctx context.Context, db *gorm.DB, circleID, userID string) (*domain.Membership, error) {
	m := &domain.Membership{
		ID:        uuid.NewString(),
		CircleID:  circleID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return m, nil
}

// DeleteMembership removes the (circle, user) join row when a user leaves.
// Returns ErrNotFound when the user was not a member.
func DeleteMembership(ctx context.Context, db *gorm.DB, circleID, userID string) error {
	res := db.WithContext(ctx).
		Where("circle_id = ? AND user_id = ?", circleID, userID).
		Delete(&domain.Membership{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetMembership fetches the join row for (circle, user), or ErrNotFound.
func GetMembership(ctx context.Context, db *gorm.DB, circleID, userID string) (*domain.Membership, error) {
	var m domain.Membership
	err := db.WithContext(ctx).
		Where("circle_id = ? AND user_id = ?", circleID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetEarliestMembership returns the user's oldest membership across all
// circles, or ErrNotFound when the user belongs to none. Used as a fallback
// by the mid-week classifier when no circle is specified.
func GetEarliestMembership(ctx context.Context, db *gorm.DB, userID string) (*domain.Membership, error) {
	var m domain.Membership
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemberships returns all join rows for a circle, oldest first.
func ListMemberships(ctx context.Context, db *gorm.DB, circleID string) ([]domain.Membership, error) {
	var out []domain.Membership
	err := db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
