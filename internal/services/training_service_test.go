package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"phishguard/internal/models"
)

func newTestTrainingService(t *testing.T, delay time.Duration) (*TrainingService, *fakePublisher) {
	t.Helper()
	svc, err := NewTrainingService(newTestDB(t), delay, "0 8 * * 1")
	if err != nil {
		t.Fatalf("NewTrainingService failed: %v", err)
	}
	publisher := &fakePublisher{}
	svc.SetPublisher(publisher)
	t.Cleanup(func() { svc.Stop() })
	return svc, publisher
}

func TestParseDigestCron(t *testing.T) {
	if _, err := ParseDigestCron("0 8 * * 1"); err != nil {
		t.Errorf("Expected valid cron, got %v", err)
	}
	for _, expr := range []string{"", "every monday", "0 8 * *", "61 8 * * 1"} {
		if _, err := ParseDigestCron(expr); !errors.Is(err, ErrInvalidCron) {
			t.Errorf("%q: expected ErrInvalidCron, got %v", expr, err)
		}
	}
}

func TestNewTrainingService_RejectsBadCron(t *testing.T) {
	if _, err := NewTrainingService(newTestDB(t), time.Hour, "not a cron"); !errors.Is(err, ErrInvalidCron) {
		t.Errorf("Expected ErrInvalidCron, got %v", err)
	}
}

func TestTrainingService_ScheduleIsIdempotent(t *testing.T) {
	svc, publisher := newTestTrainingService(t, 24*time.Hour)
	ctx := context.Background()

	created, err := svc.ScheduleReinforcement(ctx, "trk-1", models.ReasonReadingTooFast)
	if err != nil || !created {
		t.Fatalf("Expected first schedule to create an assignment, got %v, %v", created, err)
	}
	created, err = svc.ScheduleReinforcement(ctx, "trk-1", models.ReasonInsufficientEngagement)
	if err != nil || created {
		t.Fatalf("Expected second schedule to be a no-op, got %v, %v", created, err)
	}

	pending, err := svc.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending assignment, got %d", len(pending))
	}
	a := pending[0]
	if a.Reason != models.ReasonReadingTooFast || a.Status != models.TrainingStatusPending {
		t.Errorf("Unexpected assignment: %+v", a)
	}
	if d := a.DueAt.Sub(a.CreatedAt); d != 24*time.Hour {
		t.Errorf("Expected due 24h after creation, got %v", d)
	}
	if n := publisher.count(MessageTrainingScheduled); n != 1 {
		t.Errorf("Expected 1 scheduled message, got %d", n)
	}
}

func TestTrainingService_AssignAndCancel(t *testing.T) {
	svc, publisher := newTestTrainingService(t, time.Hour)
	ctx := context.Background()

	svc.ScheduleReinforcement(ctx, "trk-assign", models.ReasonReadingTooFast)
	svc.ScheduleReinforcement(ctx, "trk-cancel", models.ReasonReadingTooFast)

	assigned, err := svc.Assign(ctx, "trk-assign")
	if err != nil || !assigned {
		t.Fatalf("Expected assignment, got %v, %v", assigned, err)
	}
	if again, _ := svc.Assign(ctx, "trk-assign"); again {
		t.Error("Assigning twice should be a no-op")
	}

	a, err := svc.Assignment(ctx, "trk-assign")
	if err != nil {
		t.Fatalf("Assignment failed: %v", err)
	}
	if a.Status != models.TrainingStatusAssigned || a.AssignedAt == nil {
		t.Errorf("Expected assigned status with timestamp, got %+v", a)
	}
	if n := publisher.count(MessageTrainingAssigned); n != 1 {
		t.Errorf("Expected 1 assigned message, got %d", n)
	}

	cancelled, err := svc.Cancel(ctx, "trk-cancel")
	if err != nil || !cancelled {
		t.Fatalf("Expected cancel, got %v, %v", cancelled, err)
	}
	if assigned, _ := svc.Assign(ctx, "trk-cancel"); assigned {
		t.Error("A cancelled assignment must not be assigned")
	}

	pending, _ := svc.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("Expected no pending assignments, got %d", len(pending))
	}
}

func TestTrainingService_AssignmentNotFound(t *testing.T) {
	svc, _ := newTestTrainingService(t, time.Hour)

	if _, err := svc.Assignment(context.Background(), "nobody"); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("Expected ErrAssignmentNotFound, got %v", err)
	}
}

func TestTrainingService_SchedulerAssignsWhenDue(t *testing.T) {
	svc, _ := newTestTrainingService(t, 0)
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := svc.ScheduleReinforcement(ctx, "trk-due", models.ReasonReadingTooFast); err != nil {
		t.Fatalf("ScheduleReinforcement failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		a, err := svc.Assignment(ctx, "trk-due")
		if err == nil && a.Status == models.TrainingStatusAssigned {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Expected the scheduler to assign the due training")
}

func TestTrainingService_StartRearmsPending(t *testing.T) {
	svc, _ := newTestTrainingService(t, time.Hour)
	ctx := context.Background()

	// Created before a restart and already overdue
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	svc.ScheduleReinforcement(ctx, "trk-overdue", models.ReasonReadingTooFast)
	svc.now = time.Now

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		a, err := svc.Assignment(ctx, "trk-overdue")
		if err == nil && a.Status == models.TrainingStatusAssigned {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Expected overdue assignment to be assigned after start")
}

func TestTrainingService_RunDigest(t *testing.T) {
	svc, publisher := newTestTrainingService(t, time.Hour)
	ctx := context.Background()

	svc.ScheduleReinforcement(ctx, "trk-1", models.ReasonReadingTooFast)
	svc.ScheduleReinforcement(ctx, "trk-2", models.ReasonReadingTooFast)
	svc.Assign(ctx, "trk-2")

	if err := svc.RunDigest(ctx); err != nil {
		t.Fatalf("RunDigest failed: %v", err)
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	var digest *published
	for i := range publisher.messages {
		if publisher.messages[i].msgType == MessageTrainingDigestDone {
			digest = &publisher.messages[i]
		}
	}
	if digest == nil {
		t.Fatal("Expected a digest message")
	}
	counts := digest.payload["assignments"].(map[string]int64)
	if counts[models.TrainingStatusPending] != 1 || counts[models.TrainingStatusAssigned] != 1 {
		t.Errorf("Unexpected digest counts: %v", counts)
	}
}
