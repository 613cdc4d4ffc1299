// Package services – CircleService
//
// This file implements the lifecycle of circles: creation with a generated
// invite token and shareable link, joining via token, leaving, and member
// listing. Membership timestamps are written once at join time and never
// touched afterwards; the weekly-cycle logic depends on them.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CircleService provides circle lifecycle and membership operations.
type CircleService struct {
	DB *gorm.DB

	// InviteBaseURL is the public prefix for invite links, e.g.
	// "https://app.example.com/join". Empty leaves links blank for
	// later backfill.
	InviteBaseURL string
}

// Member pairs a membership row with its profile for the member-list
// endpoint.
type Member struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	JoinedAt    string `json:"joined_at"`
}

// Create creates a circle owned (nominally) by the given profile, minting a
// unique invite token and link, and joins the creator as its first member.
func (s *CircleService) Create(ctx context.Context, userID, name string) (*domain.Circle, error) {
	tr := otel.Tracer("services/CircleService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Our circle"
	}

	owner, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	token := newInviteToken()
	link := ""
	if s.InviteBaseURL != "" {
		link = fmt.Sprintf("%s/%s", strings.TrimRight(s.InviteBaseURL, "/"), token)
	}

	var circle *domain.Circle
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, cerr := repo.CreateCircle(ctx, tx, name, token, owner.DisplayName, link)
		if cerr != nil {
			return cerr
		}
		if _, merr := repo.CreateMembership(ctx, tx, c.ID, userID); merr != nil {
			return merr
		}
		circle = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return circle, nil
}

// Join adds the user to the circle behind the invite token. Joining a
// circle twice yields ErrAlreadyMember; an unknown token yields
// ErrInvalidInviteToken.
func (s *CircleService) Join(ctx context.Context, userID, inviteToken string) (*domain.Circle, error) {
	tr := otel.Tracer("services/CircleService")
	ctx, span := tr.Start(ctx, "Join",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	circle, err := repo.GetCircleByInviteToken(ctx, s.DB, strings.TrimSpace(inviteToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidInviteToken
		}
		return nil, err
	}
	if _, err := repo.CreateMembership(ctx, s.DB, circle.ID, userID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrAlreadyMember
		}
		return nil, err
	}
	return circle, nil
}

// Leave removes the user's membership. ErrNotMember when there is none.
func (s *CircleService) Leave(ctx context.Context, userID, circleID string) error {
	err := repo.DeleteMembership(ctx, s.DB, circleID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotMember
	}
	return err
}

// List returns the circles the user belongs to.
func (s *CircleService) List(ctx context.Context, userID string) ([]domain.Circle, error) {
	return repo.ListCirclesForUser(ctx, s.DB, userID)
}

// Members returns the circle's member list with display names, oldest
// joiner first. The caller must be a member.
func (s *CircleService) Members(ctx context.Context, userID, circleID string) ([]Member, error) {
	if _, err := repo.GetMembership(ctx, s.DB, circleID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}

	memberships, err := repo.ListMemberships(ctx, s.DB, circleID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.UserID)
	}
	profiles, err := repo.ListProfiles(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.DisplayName
	}

	out := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, Member{
			UserID:      m.UserID,
			DisplayName: names[m.UserID],
			JoinedAt:    m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out, nil
}

// newInviteToken mints a 16-byte hex token for invite links.
func newInviteToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
