// Package domain defines the persistence models for profiles, circles,
// weekly reflection cycles, and notification bookkeeping. These types are
// mapped with GORM and form the core data layer of the application.
package domain

import (
	"time"
)

// Notification log types. A NotificationLog row records one outbound SMS
// per (user, circle, week, type).
const (
	NotificationFirstReminder  = "first_reminder"
	NotificationSecondReminder = "second_reminder"
	NotificationUnlock         = "unlock"
)

// Profile is the identity record for a user. Profiles are created at signup
// and never hard-deleted; SMS consent changes only toggle SmsOptedOutAt.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - DisplayName: human-readable name shown to circle members.
//   - Phone: E.164 phone number; unique across all profiles.
//   - SmsOptedOutAt: set when the user replies STOP (or opts out in-app);
//     nil means the user is reachable by SMS.
type Profile struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	DisplayName   string     `json:"display_name"    gorm:"type:varchar(120);not null"`
	Phone         string     `json:"phone"           gorm:"type:varchar(32);not null;uniqueIndex:ux_profile_phone"`
	SmsOptedOutAt *time.Time `json:"sms_opted_out_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Circle is a named group of users who share weekly reflections with each
// other. Circles are immutable after creation except for invite-link
// backfill.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Name: circle display name.
//   - InviteToken: unique opaque token embedded in the invite link.
//   - OwnerName: display name of the creator, denormalized for invites.
//   - InviteLink: full shareable URL; backfilled when the public base URL
//     becomes known.
type Circle struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"         gorm:"type:varchar(120);not null"`
	InviteToken string    `json:"invite_token" gorm:"type:varchar(64);not null;uniqueIndex:ux_circle_invite_token"`
	OwnerName   string    `json:"owner_name"   gorm:"type:varchar(120)"`
	InviteLink  string    `json:"invite_link"  gorm:"type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Circle.
func (Circle) TableName() string { return "circles" }

// Membership links a user to a circle. CreatedAt is the sole signal used to
// classify the member as pre-week (eligible for that week's unlock
// accounting) or a mid-week joiner (excluded). At most one membership row
// exists per (circle, user) pair; rows are deleted when a user leaves.
type Membership struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	CircleID  string    `json:"circle_id"  gorm:"type:char(36);not null;uniqueIndex:ux_member_circle_user,priority:1;index:idx_member_circle"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;uniqueIndex:ux_member_circle_user,priority:2;index:idx_member_user"`
	CreatedAt time.Time `json:"created_at"`

	// Circle is the parent group. Memberships are cascade-deleted if the
	// circle is removed.
	Circle Circle `json:"-" gorm:"foreignKey:CircleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Membership.
func (Membership) TableName() string { return "circle_members" }

// Week is one reflection cycle: a contiguous, non-overlapping [StartsAt,
// EndsAt) range, nominally Sunday 19:00 to the next Sunday 19:00. Exactly
// one week covers any instant; rows are created lazily by the week
// resolver and are immutable once created. The unique index on StartsAt is
// what makes lazy creation race-safe.
type Week struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	StartsAt  time.Time `json:"starts_at" gorm:"not null;uniqueIndex:ux_week_start"`
	EndsAt    time.Time `json:"ends_at"   gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Week.
func (Week) TableName() string { return "weeks" }

// Reflection is one user's content for one (circle, week). Sharing into
// multiple circles inserts an independent duplicate-content row per circle
// rather than a shared row referenced by many circles; this keeps
// per-circle queries trivial at the cost of duplicated text.
//
// SubmittedAt is nil for drafts; a non-nil value finalizes the reflection
// and makes it count toward the circle's weekly unlock. Rows are mutated
// afterwards only to attach transcripts.
type Reflection struct {
	ID       string `json:"id"        gorm:"type:char(36);primaryKey"`
	UserID   string `json:"user_id"   gorm:"type:char(36);not null;uniqueIndex:ux_reflection_user_circle_week,priority:1"`
	CircleID string `json:"circle_id" gorm:"type:char(36);not null;uniqueIndex:ux_reflection_user_circle_week,priority:2;index:idx_reflection_circle_week,priority:1"`
	WeekID   string `json:"week_id"   gorm:"type:char(36);not null;uniqueIndex:ux_reflection_user_circle_week,priority:3;index:idx_reflection_circle_week,priority:2"`

	RoseText  string `json:"rose_text"  gorm:"type:text"`
	BudText   string `json:"bud_text"   gorm:"type:text"`
	ThornText string `json:"thorn_text" gorm:"type:text"`

	RoseAudioURL  string `json:"rose_audio_url,omitempty"  gorm:"type:varchar(255)"`
	BudAudioURL   string `json:"bud_audio_url,omitempty"   gorm:"type:varchar(255)"`
	ThornAudioURL string `json:"thorn_audio_url,omitempty" gorm:"type:varchar(255)"`

	RoseTranscript  string `json:"rose_transcript,omitempty"  gorm:"type:text"`
	BudTranscript   string `json:"bud_transcript,omitempty"   gorm:"type:text"`
	ThornTranscript string `json:"thorn_transcript,omitempty" gorm:"type:text"`

	PhotoURL     string `json:"photo_url,omitempty"     gorm:"type:varchar(255)"`
	PhotoCaption string `json:"photo_caption,omitempty" gorm:"type:varchar(255)"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Circle and Week associations cascade so that removing a circle or a
	// week cleans up its reflections.
	Circle Circle `json:"-" gorm:"foreignKey:CircleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Week   Week   `json:"-" gorm:"foreignKey:WeekID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Reflection.
func (Reflection) TableName() string { return "reflections" }

// Submitted reports whether the reflection has been finalized.
func (r Reflection) Submitted() bool { return r.SubmittedAt != nil }

// Comment is an append-only remark on a reflection.
type Comment struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	ReflectionID string    `json:"reflection_id" gorm:"type:char(36);not null;index:idx_comment_reflection"`
	UserID       string    `json:"user_id"       gorm:"type:char(36);not null"`
	Body         string    `json:"body"          gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at"`

	// Reflection is the commented entry; comments are cascade-deleted with it.
	Reflection Reflection `json:"-" gorm:"foreignKey:ReflectionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// NotificationLog is the append-only audit trail of outbound SMS: one row
// per (user, circle, week, type). Reminder dispatchers read it to avoid
// texting the same user twice for the same cycle.
type NotificationLog struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_notif_user_week,priority:1"`
	CircleID  string    `json:"circle_id"  gorm:"type:char(36);not null;index:idx_notif_circle_week,priority:1"`
	WeekID    string    `json:"week_id"    gorm:"type:char(36);not null;index:idx_notif_user_week,priority:2;index:idx_notif_circle_week,priority:2"`
	Type      string    `json:"type"       gorm:"type:varchar(32);not null;check:type IN ('first_reminder','second_reminder','unlock')"`
	MessageID string    `json:"message_id" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for NotificationLog.
func (NotificationLog) TableName() string { return "notification_logs" }

// UnlockClaim is the at-most-once guard for the unlock broadcast. The
// unique index on (circle_id, week_id) means that of any number of
// concurrent dispatchers racing after the last submission, exactly one
// wins the insert and proceeds to send SMS; the rest see a duplicate-key
// error and no-op. Without the claim, two submissions completing at the
// same instant could each broadcast to the whole circle.
type UnlockClaim struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	CircleID  string    `gorm:"type:char(36);not null;uniqueIndex:ux_unlock_circle_week,priority:1"`
	WeekID    string    `gorm:"type:char(36);not null;uniqueIndex:ux_unlock_circle_week,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for UnlockClaim.
func (UnlockClaim) TableName() string { return "unlock_claims" }
