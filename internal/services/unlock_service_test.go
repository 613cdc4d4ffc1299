package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"
)

// newServicesDB opens a temp-file SQLite database with the full schema.
func newServicesDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("services_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

var weekStart = time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC) // a Sunday

func seedWeek(t *testing.T, db *gorm.DB) *domain.Week {
	t.Helper()
	w := &domain.Week{ID: "w1", StartsAt: weekStart, EndsAt: weekStart.AddDate(0, 0, 7)}
	if err := db.Create(w).Error; err != nil {
		t.Fatalf("seed week: %v", err)
	}
	return w
}

func seedCircle(t *testing.T, db *gorm.DB, id string) *domain.Circle {
	t.Helper()
	c := &domain.Circle{ID: id, Name: "Circle " + id, InviteToken: "tok-" + id}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed circle: %v", err)
	}
	return c
}

func seedMember(t *testing.T, db *gorm.DB, circleID, userID string, joinedAt time.Time) {
	t.Helper()
	m := &domain.Membership{
		ID:        "m-" + circleID + "-" + userID,
		CircleID:  circleID,
		UserID:    userID,
		CreatedAt: joinedAt,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed membership %s/%s: %v", circleID, userID, err)
	}
}

func seedProfile(t *testing.T, db *gorm.DB, userID, name, phone string) {
	t.Helper()
	p := &domain.Profile{ID: userID, DisplayName: name, Phone: phone}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed profile %s: %v", userID, err)
	}
}

func seedSubmission(t *testing.T, db *gorm.DB, circleID, weekID, userID string, at time.Time) {
	t.Helper()
	r := &domain.Reflection{
		ID:          "r-" + circleID + "-" + userID,
		UserID:      userID,
		CircleID:    circleID,
		WeekID:      weekID,
		RoseText:    "rose",
		SubmittedAt: &at,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed reflection %s/%s: %v", circleID, userID, err)
	}
}

func TestIsUnlocked_VacuousWithNoPreWeekMembers(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")

	svc := &UnlockService{DB: db}

	// No members at all.
	if !svc.IsUnlocked(context.Background(), "c1", w.ID) {
		t.Fatalf("circle with no members must be vacuously unlocked")
	}

	// Only mid-week joiners.
	seedMember(t, db, "c1", "late1", weekStart.Add(time.Hour))
	if !svc.IsUnlocked(context.Background(), "c1", w.ID) {
		t.Fatalf("circle with only mid-week joiners must be vacuously unlocked")
	}
}

func TestIsUnlocked_AllSubmittedAndMissingOne(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")

	// Three pre-week members: A, B, D.
	for _, u := range []string{"A", "B", "D"} {
		seedMember(t, db, "c1", u, weekStart.Add(-24*time.Hour))
	}

	svc := &UnlockService{DB: db}

	seedSubmission(t, db, "c1", w.ID, "A", weekStart.Add(time.Hour))
	seedSubmission(t, db, "c1", w.ID, "B", weekStart.Add(2*time.Hour))

	if svc.IsUnlocked(context.Background(), "c1", w.ID) {
		t.Fatalf("D has not submitted; circle must be locked")
	}

	seedSubmission(t, db, "c1", w.ID, "D", weekStart.Add(3*time.Hour))
	if !svc.IsUnlocked(context.Background(), "c1", w.ID) {
		t.Fatalf("all pre-week members submitted; circle must be unlocked")
	}
}

func TestIsUnlocked_DraftsDoNotCount(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))

	// Draft: SubmittedAt nil.
	r := &domain.Reflection{ID: "r-draft", UserID: "A", CircleID: "c1", WeekID: w.ID, RoseText: "wip"}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed draft: %v", err)
	}

	svc := &UnlockService{DB: db}
	if svc.IsUnlocked(context.Background(), "c1", w.ID) {
		t.Fatalf("a draft must not satisfy the submission requirement")
	}
}

func TestBoundaryInstant_EvaluatorAndClassifierAgree(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")

	// Joined exactly at week start: pre-week on both sides of the rule.
	seedMember(t, db, "c1", "edge", weekStart)

	svc := &UnlockService{DB: db}

	if svc.JoinedMidWeek(context.Background(), "edge", w.ID, "c1") {
		t.Fatalf("joining exactly at week start must classify as pre-week")
	}
	// Pre-week and no submission → locked, proving the evaluator counted them.
	if svc.IsUnlocked(context.Background(), "c1", w.ID) {
		t.Fatalf("boundary member must be counted toward unlock accounting")
	}

	// One minute later: mid-week on both sides.
	seedCircle(t, db, "c2")
	seedMember(t, db, "c2", "late", weekStart.Add(time.Minute))
	if !svc.JoinedMidWeek(context.Background(), "late", w.ID, "c2") {
		t.Fatalf("joining after week start must classify as mid-week")
	}
	if !svc.IsUnlocked(context.Background(), "c2", w.ID) {
		t.Fatalf("mid-week joiner must be excluded from unlock accounting")
	}
}

func TestIsUnlocked_Idempotent(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedSubmission(t, db, "c1", w.ID, "A", weekStart.Add(time.Hour))

	svc := &UnlockService{DB: db}
	first := svc.IsUnlocked(context.Background(), "c1", w.ID)
	second := svc.IsUnlocked(context.Background(), "c1", w.ID)
	if first != second {
		t.Fatalf("evaluator must be idempotent with no state change: %v then %v", first, second)
	}
	if !first {
		t.Fatalf("single submitted member must unlock the circle")
	}
}

func TestIsUnlocked_FailsClosedOnMissingWeek(t *testing.T) {
	db := newServicesDB(t)
	seedCircle(t, db, "c1")

	svc := &UnlockService{DB: db}
	if svc.IsUnlocked(context.Background(), "c1", "no-such-week") {
		t.Fatalf("evaluator must fail closed when the week cannot be fetched")
	}
}

func TestJoinedMidWeek_FailsOpen(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)

	svc := &UnlockService{DB: db}

	// Unknown membership → fail open (treated as pre-week).
	if svc.JoinedMidWeek(context.Background(), "ghost", w.ID, "c1") {
		t.Fatalf("classifier must fail open on membership fetch errors")
	}
	// Unknown week → fail open too.
	if svc.JoinedMidWeek(context.Background(), "ghost", "no-such-week", "c1") {
		t.Fatalf("classifier must fail open on week fetch errors")
	}
}

func TestJoinedMidWeek_FallbackUsesEarliestMembership(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")
	seedCircle(t, db, "c2")

	// Pre-week in c1, mid-week in c2.
	seedMember(t, db, "c1", "E", weekStart.Add(-48*time.Hour))
	seedMember(t, db, "c2", "E", weekStart.Add(time.Minute))

	svc := &UnlockService{DB: db}

	if svc.JoinedMidWeek(context.Background(), "E", w.ID, "c1") {
		t.Fatalf("E is pre-week in c1")
	}
	if !svc.JoinedMidWeek(context.Background(), "E", w.ID, "c2") {
		t.Fatalf("E is mid-week in c2")
	}
	// No circle: earliest membership wins → pre-week.
	if svc.JoinedMidWeek(context.Background(), "E", w.ID, "") {
		t.Fatalf("fallback must use the earliest membership")
	}
}

func TestStatus_ReportsMissingMembers(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedMember(t, db, "c1", "B", weekStart.Add(-time.Hour))
	seedSubmission(t, db, "c1", w.ID, "A", weekStart.Add(time.Hour))

	svc := &UnlockService{DB: db}
	st, err := svc.Status(context.Background(), "c1", w.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Unlocked {
		t.Fatalf("B is missing; must be locked")
	}
	if len(st.PreWeekMembers) != 2 || len(st.Submitters) != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if len(st.Missing) != 1 || st.Missing[0] != "B" {
		t.Fatalf("expected missing=[B], got %v", st.Missing)
	}
}
