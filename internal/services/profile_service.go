// Package services – ProfileService
//
// This file implements signup and SMS-consent management for profiles.
// Display names are normalized (whitespace collapsed, title-cased, clipped
// by rune length); phone numbers are stored as given after a light E.164
// shape check performed at the handler layer.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ProfileService provides signup and consent operations on profiles.
type ProfileService struct {
	DB *gorm.DB

	// NameMaxLen caps stored display names by rune length.
	NameMaxLen int
	// NameLocale selects the casing rules for display-name normalization.
	NameLocale language.Tag
}

// NewProfileService constructs a ProfileService with sane defaults.
func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{
		DB:         db,
		NameMaxLen: 60,
		NameLocale: language.Und,
	}
}

// Signup creates a profile. A duplicate phone number yields
// ErrDuplicatePhone.
func (s *ProfileService) Signup(ctx context.Context, displayName, phone string) (*domain.Profile, error) {
	displayName = s.normalizeName(displayName)
	if displayName == "" {
		displayName = "Anonymous"
	}
	p, err := repo.CreateProfile(ctx, s.DB, s.clip(displayName), strings.TrimSpace(phone))
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicatePhone
		}
		return nil, err
	}
	return p, nil
}

// Get fetches a profile by ID.
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

// SetOptOutByPhone toggles SMS consent for the profile owning the phone
// number. Used by the inbound provider webhook (STOP sets, START clears).
func (s *ProfileService) SetOptOutByPhone(ctx context.Context, phone string, optedOut bool) error {
	err := repo.SetSmsOptOutByPhone(ctx, s.DB, strings.TrimSpace(phone), optedOut, time.Now().UTC())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrProfileNotFound
	}
	return err
}

// clip truncates a display name to the configured maximum rune length.
func (s *ProfileService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// normalizeName trims, collapses whitespace, and title-cases the name using
// the configured locale.
func (s *ProfileService) normalizeName(name string) string {
	name = nameWhitespaceRE.ReplaceAllString(strings.TrimSpace(name), " ")
	if name == "" {
		return ""
	}
	loc := s.NameLocale
	if loc == language.Und {
		loc = language.English
	}
	return cases.Title(loc).String(name)
}

// nameWhitespaceRE collapses consecutive whitespace to a single space.
var nameWhitespaceRE = regexp.MustCompile(`\s+`)
