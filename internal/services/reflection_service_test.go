package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newReflectionService(t *testing.T) (*ReflectionService, *recordingSender) {
	t.Helper()
	db := newServicesDB(t)
	seedWeek(t, db)

	sender := &recordingSender{}
	unlock := &UnlockService{DB: db}
	weeks := NewWeekService(db)
	weeks.Now = func() time.Time { return weekStart.Add(24 * time.Hour) }
	return &ReflectionService{
		DB:     db,
		Weeks:  weeks,
		Unlock: unlock,
		Notify: &NotifyService{DB: db, Sender: sender, Unlock: unlock},
	}, sender
}

func TestSubmit_CreatesOneRowPerCircle(t *testing.T) {
	svc, _ := newReflectionService(t)
	db := svc.DB
	seedCircle(t, db, "c1")
	seedCircle(t, db, "c2")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedMember(t, db, "c2", "A", weekStart.Add(-time.Hour))
	seedProfile(t, db, "A", "User A", "+15550000001")

	res, err := svc.Submit(context.Background(), "A", []string{"c1", "c2"}, ReflectionInput{
		RoseText: "shipped", BudText: "vacation", ThornText: "flat tire",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.Reflections) != 2 {
		t.Fatalf("expected a reflection per circle, got %d", len(res.Reflections))
	}
	for _, r := range res.Reflections {
		if !r.Submitted() {
			t.Fatalf("submitted reflection must carry a SubmittedAt")
		}
		if r.RoseText != "shipped" {
			t.Fatalf("content not carried into circle copy: %+v", r)
		}
	}
}

func TestSubmit_EmptyContentRejected(t *testing.T) {
	svc, _ := newReflectionService(t)
	if _, err := svc.Submit(context.Background(), "A", []string{"c1"}, ReflectionInput{RoseText: "   "}); !errors.Is(err, ErrEmptyReflection) {
		t.Fatalf("expected ErrEmptyReflection, got %v", err)
	}
}

func TestSubmit_AudioOnlyIsAccepted(t *testing.T) {
	svc, _ := newReflectionService(t)
	db := svc.DB
	seedCircle(t, db, "c1")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedProfile(t, db, "A", "User A", "+15550000001")

	res, err := svc.Submit(context.Background(), "A", []string{"c1"}, ReflectionInput{
		RoseAudioURL: "https://cdn.example.com/a.m4a",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.Reflections) != 1 {
		t.Fatalf("audio-only submission must be accepted")
	}
}

func TestSubmit_MidWeekJoinerBlocked(t *testing.T) {
	svc, _ := newReflectionService(t)
	db := svc.DB
	seedCircle(t, db, "c1")
	seedMember(t, db, "c1", "L", weekStart.Add(time.Hour))
	seedProfile(t, db, "L", "Late", "+15550000009")

	_, err := svc.Submit(context.Background(), "L", []string{"c1"}, ReflectionInput{RoseText: "hi"})
	if !errors.Is(err, ErrMidWeekJoiner) {
		t.Fatalf("expected ErrMidWeekJoiner, got %v", err)
	}
}

func TestSubmit_DuplicateBlockedButOtherCircleProceeds(t *testing.T) {
	svc, _ := newReflectionService(t)
	db := svc.DB
	seedCircle(t, db, "c1")
	seedCircle(t, db, "c2")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedMember(t, db, "c2", "A", weekStart.Add(-time.Hour))
	seedProfile(t, db, "A", "User A", "+15550000001")

	if _, err := svc.Submit(context.Background(), "A", []string{"c1"}, ReflectionInput{RoseText: "first"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	res, err := svc.Submit(context.Background(), "A", []string{"c1", "c2"}, ReflectionInput{RoseText: "second"})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if len(res.Reflections) != 1 || res.Reflections[0].CircleID != "c2" {
		t.Fatalf("expected only the c2 copy, got %+v", res.Reflections)
	}
	if res.SkippedCircles["c1"] != ErrAlreadySubmitted.Error() {
		t.Fatalf("c1 skip reason = %q", res.SkippedCircles["c1"])
	}

	// All targets duplicated: the call errors.
	if _, err := svc.Submit(context.Background(), "A", []string{"c1"}, ReflectionInput{RoseText: "third"}); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmit_NonMemberBlocked(t *testing.T) {
	svc, _ := newReflectionService(t)
	seedCircle(t, svc.DB, "c1")

	if _, err := svc.Submit(context.Background(), "stranger", []string{"c1"}, ReflectionInput{RoseText: "hi"}); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestFeed_HiddenUntilUnlocked(t *testing.T) {
	svc, _ := newReflectionService(t)
	db := svc.DB
	seedCircle(t, db, "c1")
	for _, u := range []string{"A", "B"} {
		seedMember(t, db, "c1", u, weekStart.Add(-time.Hour))
	}
	seedProfile(t, db, "A", "User A", "+15550000001")
	seedProfile(t, db, "B", "User B", "+15550000002")

	week, err := svc.Weeks.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	seedSubmission(t, db, "c1", week.ID, "A", weekStart.Add(time.Hour))

	entries, unlocked, err := svc.Feed(context.Background(), "B", "c1", week.ID)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if unlocked {
		t.Fatalf("B has not submitted; week must be locked")
	}
	if len(entries) != 1 || !entries[0].Hidden || entries[0].Reflection != nil {
		t.Fatalf("locked feed must hide others' content: %+v", entries)
	}

	// A sees their own entry in full even while locked.
	entries, _, err = svc.Feed(context.Background(), "A", "c1", week.ID)
	if err != nil {
		t.Fatalf("Feed (own): %v", err)
	}
	if len(entries) != 1 || entries[0].Hidden || entries[0].Reflection == nil {
		t.Fatalf("own entry must be visible while locked: %+v", entries)
	}

	// B submits; the feed opens for everyone.
	seedSubmission(t, db, "c1", week.ID, "B", weekStart.Add(2*time.Hour))
	entries, unlocked, err = svc.Feed(context.Background(), "B", "c1", week.ID)
	if err != nil {
		t.Fatalf("Feed (unlocked): %v", err)
	}
	if !unlocked || len(entries) != 2 {
		t.Fatalf("expected unlocked feed with 2 entries, got unlocked=%v n=%d", unlocked, len(entries))
	}
	for _, e := range entries {
		if e.Hidden || e.Reflection == nil {
			t.Fatalf("unlocked feed must show all content: %+v", e)
		}
	}
}

func TestFeed_NonMemberRejected(t *testing.T) {
	svc, _ := newReflectionService(t)
	seedCircle(t, svc.DB, "c1")
	if _, _, err := svc.Feed(context.Background(), "stranger", "c1", "w1"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestComments_GatedByUnlock(t *testing.T) {
	svc, _ := newReflectionService(t)
	db := svc.DB
	seedCircle(t, db, "c1")
	for _, u := range []string{"A", "B"} {
		seedMember(t, db, "c1", u, weekStart.Add(-time.Hour))
	}
	seedSubmission(t, db, "c1", "w1", "A", weekStart.Add(time.Hour))

	// B cannot comment on A's reflection while the week is locked.
	if _, err := svc.Comment(context.Background(), "B", "r-c1-A", "nice!"); !errors.Is(err, ErrReflectionLocked) {
		t.Fatalf("expected ErrReflectionLocked, got %v", err)
	}

	// A can comment on their own.
	if _, err := svc.Comment(context.Background(), "A", "r-c1-A", "note to self"); err != nil {
		t.Fatalf("own comment: %v", err)
	}

	seedSubmission(t, db, "c1", "w1", "B", weekStart.Add(2*time.Hour))
	c, err := svc.Comment(context.Background(), "B", "r-c1-A", "congrats!")
	if err != nil {
		t.Fatalf("comment after unlock: %v", err)
	}
	if c.Body != "congrats!" {
		t.Fatalf("unexpected comment: %+v", c)
	}

	all, err := svc.Comments(context.Background(), "B", "r-c1-A")
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(all))
	}
}

func TestAttachTranscript_OwnerOnly(t *testing.T) {
	svc, _ := newReflectionService(t)
	db := svc.DB
	seedCircle(t, db, "c1")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedSubmission(t, db, "c1", "w1", "A", weekStart.Add(time.Hour))

	if err := svc.AttachTranscript(context.Background(), "B", "r-c1-A", "t", "", ""); !errors.Is(err, ErrReflectionNotFound) {
		t.Fatalf("non-owner must get ErrReflectionNotFound, got %v", err)
	}
	if err := svc.AttachTranscript(context.Background(), "A", "r-c1-A", "rose words", "bud words", ""); err != nil {
		t.Fatalf("AttachTranscript: %v", err)
	}
}
