// Package services defines the business logic for profiles, circles, weekly
// reflection cycles, and notification dispatch. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrCircleNotFound indicates that the requested circle does not exist
	// or is not accessible to the current user.
	ErrCircleNotFound = errors.New("circle not found")

	// ErrProfileNotFound indicates that the requested profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrWeekNotFound indicates that the requested week does not exist.
	ErrWeekNotFound = errors.New("week not found")

	// ErrNoCurrentWeek is returned when the week resolver cannot produce the
	// active week. Callers must treat this as a hard stop rather than guess.
	ErrNoCurrentWeek = errors.New("no current week available")

	// ErrNotMember is returned when an operation requires circle membership
	// the user does not have.
	ErrNotMember = errors.New("not a member of this circle")

	// ErrAlreadyMember is returned when a user attempts to join a circle
	// they already belong to.
	ErrAlreadyMember = errors.New("already a member of this circle")

	// ErrInvalidInviteToken is returned when a join request carries an
	// unknown invite token.
	ErrInvalidInviteToken = errors.New("invalid invite token")

	// ErrMidWeekJoiner is returned when a member who joined after the week
	// started attempts to submit for that week.
	ErrMidWeekJoiner = errors.New("joined mid-week; submissions open next week")

	// ErrAlreadySubmitted is returned when a user attempts a second
	// reflection for the same (circle, week).
	ErrAlreadySubmitted = errors.New("reflection already submitted for this week")

	// ErrReflectionNotFound indicates that the requested reflection does not
	// exist or is not accessible to the current user.
	ErrReflectionNotFound = errors.New("reflection not found")

	// ErrReflectionLocked is returned when a user tries to read or comment on
	// another member's reflection before the circle's week has unlocked.
	ErrReflectionLocked = errors.New("reflections are locked until everyone has shared")

	// ErrEmptyReflection is returned when a submission carries no content in
	// any of the three prompts.
	ErrEmptyReflection = errors.New("reflection has no content")

	// ErrDuplicatePhone is returned when signup uses an already-registered
	// phone number.
	ErrDuplicatePhone = errors.New("phone number already registered")
)
