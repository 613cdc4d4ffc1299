package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rosebudthorn/circles-backend/internal/domain"
)

func TestClaimUnlock_ExactlyOnce(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if err := ClaimUnlock(ctx, db, "c1", "w1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := ClaimUnlock(ctx, db, "c1", "w1"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second claim must fail with ErrDuplicate, got %v", err)
	}

	// Different week, same circle: independent claim.
	if err := ClaimUnlock(ctx, db, "c1", "w2"); err != nil {
		t.Fatalf("claim for next week: %v", err)
	}

	claimed, err := UnlockClaimed(ctx, db, "c1", "w1")
	if err != nil || !claimed {
		t.Fatalf("UnlockClaimed = %v, %v", claimed, err)
	}
	claimed, err = UnlockClaimed(ctx, db, "c2", "w1")
	if err != nil || claimed {
		t.Fatalf("unclaimed tuple reported claimed")
	}
}

func TestNotifiedUserIDs_CircleScopedAndGlobal(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	for _, row := range []struct{ user, circle, typ string }{
		{"u1", "c1", domain.NotificationFirstReminder},
		{"u1", "c2", domain.NotificationFirstReminder},
		{"u2", "c1", domain.NotificationSecondReminder},
	} {
		if _, err := AppendNotificationLog(ctx, db, row.user, row.circle, "w1", row.typ, "SM-1"); err != nil {
			t.Fatalf("AppendNotificationLog: %v", err)
		}
	}

	// Global query de-duplicates across circles.
	ids, err := NotifiedUserIDs(ctx, db, "", "w1", domain.NotificationFirstReminder)
	if err != nil {
		t.Fatalf("NotifiedUserIDs global: %v", err)
	}
	if len(ids) != 1 || ids[0] != "u1" {
		t.Fatalf("expected [u1], got %v", ids)
	}

	// Circle-scoped query sees only that circle's rows.
	ids, err = NotifiedUserIDs(ctx, db, "c1", "w1", domain.NotificationSecondReminder)
	if err != nil {
		t.Fatalf("NotifiedUserIDs scoped: %v", err)
	}
	if len(ids) != 1 || ids[0] != "u2" {
		t.Fatalf("expected [u2], got %v", ids)
	}

	n, err := CountNotifications(ctx, db, "c1", "w1", domain.NotificationFirstReminder)
	if err != nil || n != 1 {
		t.Fatalf("CountNotifications = %d, %v", n, err)
	}
}

func TestIdempotency_RoundTripAndExpiry(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "u1", "c1", "k1", "r1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "c1", "k1", "r2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := GetIdempotency(ctx, db, "u1", "c1", "k1", now)
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.ID != rec.ID || got.ReflectionID != "r1" || got.Status != 201 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Expired records are invisible.
	if _, err := GetIdempotency(ctx, db, "u1", "c1", "k1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
	// Blank circle never matches.
	if _, err := GetIdempotency(ctx, db, "u1", "", "k1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank circle, got %v", err)
	}
}

func TestFeedStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	n, maxAt, err := FeedStats(ctx, db, "c1", "w1")
	if err != nil || n != 0 || maxAt != nil {
		t.Fatalf("empty feed stats: n=%d max=%v err=%v", n, maxAt, err)
	}

	at := time.Now().UTC()
	if _, err := CreateReflection(ctx, db, &domain.Reflection{UserID: "u1", CircleID: "c1", WeekID: "w1", RoseText: "x", SubmittedAt: &at}); err != nil {
		t.Fatalf("CreateReflection: %v", err)
	}

	n, maxAt, err = FeedStats(ctx, db, "c1", "w1")
	if err != nil {
		t.Fatalf("FeedStats: %v", err)
	}
	if n != 1 || maxAt == nil {
		t.Fatalf("feed stats after insert: n=%d max=%v", n, maxAt)
	}
}
