package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rosebudthorn/circles-backend/internal/domain"
)

// recordingSender captures every SMS handed to it and can be told to fail
// for specific phone numbers.
type recordingSender struct {
	mu      sync.Mutex
	sent    []sentSMS
	failFor map[string]error
}

type sentSMS struct {
	To   string
	Body string
}

func (f *recordingSender) Send(_ context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[to]; ok {
		return "", err
	}
	f.sent = append(f.sent, sentSMS{To: to, Body: body})
	return "SM-fake", nil
}

func (f *recordingSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestSendUnlockSMS_BroadcastsOncePerMember(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")
	for i, u := range []string{"A", "B", "C"} {
		seedMember(t, db, "c1", u, weekStart.Add(-time.Hour))
		seedProfile(t, db, u, "User "+u, "+1555000000"+string(rune('1'+i)))
		seedSubmission(t, db, "c1", w.ID, u, weekStart.Add(time.Duration(i+1)*time.Hour))
	}

	sender := &recordingSender{}
	svc := &NotifyService{DB: db, Sender: sender, Unlock: &UnlockService{DB: db}}

	res, err := svc.SendUnlockSMS(context.Background(), "c1", w.ID)
	if err != nil {
		t.Fatalf("SendUnlockSMS: %v", err)
	}
	if res.Sent != 3 || res.Errors != 0 {
		t.Fatalf("expected 3 sends, got %+v", res)
	}
	if sender.count() != 3 {
		t.Fatalf("expected 3 SMS, sender saw %d", sender.count())
	}

	var logs int64
	if err := db.Model(&domain.NotificationLog{}).
		Where("circle_id = ? AND week_id = ? AND type = ?", "c1", w.ID, domain.NotificationUnlock).
		Count(&logs).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if logs != 3 {
		t.Fatalf("expected 3 unlock log rows, got %d", logs)
	}
}

func TestSendUnlockSMS_SecondDispatchIsNoOp(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedProfile(t, db, "A", "User A", "+15550000001")
	seedSubmission(t, db, "c1", w.ID, "A", weekStart.Add(time.Hour))

	sender := &recordingSender{}
	svc := &NotifyService{DB: db, Sender: sender, Unlock: &UnlockService{DB: db}}

	first, err := svc.SendUnlockSMS(context.Background(), "c1", w.ID)
	if err != nil || first.Sent != 1 {
		t.Fatalf("first dispatch: res=%+v err=%v", first, err)
	}
	second, err := svc.SendUnlockSMS(context.Background(), "c1", w.ID)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if second.Sent != 0 || second.Errors != 0 {
		t.Fatalf("re-dispatch must be a no-op, got %+v", second)
	}
	if sender.count() != 1 {
		t.Fatalf("expected exactly 1 SMS across both dispatches, got %d", sender.count())
	}
}

func TestSendUnlockSMS_LockedCircleSendsNothing(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")
	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedProfile(t, db, "A", "User A", "+15550000001")

	sender := &recordingSender{}
	svc := &NotifyService{DB: db, Sender: sender, Unlock: &UnlockService{DB: db}}

	res, err := svc.SendUnlockSMS(context.Background(), "c1", w.ID)
	if err != nil {
		t.Fatalf("SendUnlockSMS: %v", err)
	}
	if !res.Success || res.Sent != 0 || sender.count() != 0 {
		t.Fatalf("locked circle must send nothing, got %+v (%d SMS)", res, sender.count())
	}

	// The claim must not have been consumed; unlocking later still sends.
	seedSubmission(t, db, "c1", w.ID, "A", weekStart.Add(time.Hour))
	res, err = svc.SendUnlockSMS(context.Background(), "c1", w.ID)
	if err != nil || res.Sent != 1 {
		t.Fatalf("dispatch after unlock: res=%+v err=%v", res, err)
	}
}

func TestSendUnlockSMS_PerMemberFailureIsIsolated(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")
	for i, u := range []string{"A", "B"} {
		seedMember(t, db, "c1", u, weekStart.Add(-time.Hour))
		seedProfile(t, db, u, "User "+u, "+1555000000"+string(rune('1'+i)))
		seedSubmission(t, db, "c1", w.ID, u, weekStart.Add(time.Duration(i+1)*time.Hour))
	}

	sender := &recordingSender{failFor: map[string]error{
		"+15550000001": errors.New("carrier rejected"),
	}}
	svc := &NotifyService{DB: db, Sender: sender, Unlock: &UnlockService{DB: db}}

	res, err := svc.SendUnlockSMS(context.Background(), "c1", w.ID)
	if err != nil {
		t.Fatalf("SendUnlockSMS: %v", err)
	}
	if res.Sent != 1 || res.Errors != 1 {
		t.Fatalf("expected sent=1 errors=1, got %+v", res)
	}
}

func TestSendUnlockSMS_MidWeekJoinerReceivesBroadcast(t *testing.T) {
	db := newServicesDB(t)
	w := seedWeek(t, db)
	seedCircle(t, db, "c1")

	seedMember(t, db, "c1", "A", weekStart.Add(-time.Hour))
	seedProfile(t, db, "A", "User A", "+15550000001")
	seedSubmission(t, db, "c1", w.ID, "A", weekStart.Add(time.Hour))

	// Joined mid-week: exempt from unlock accounting but still a member.
	seedMember(t, db, "c1", "L", weekStart.Add(2*time.Hour))
	seedProfile(t, db, "L", "User L", "+15550000009")

	sender := &recordingSender{}
	svc := &NotifyService{DB: db, Sender: sender, Unlock: &UnlockService{DB: db}}

	res, err := svc.SendUnlockSMS(context.Background(), "c1", w.ID)
	if err != nil {
		t.Fatalf("SendUnlockSMS: %v", err)
	}
	if res.Sent != 2 {
		t.Fatalf("broadcast goes to all current members, got %+v", res)
	}
}
