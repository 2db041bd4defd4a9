package models

import (
	"testing"
	"time"
)

func TestNewBalanceRemainingIsTotalIncome(t *testing.T) {
	b := NewBalance(30, 70)
	if b.Remaining != 100 {
		t.Errorf("Remaining should be quota + used, got %v", b.Remaining)
	}

	b = NewBalance(0, 0)
	if b.Remaining != 0 {
		t.Errorf("empty balance should have zero income, got %v", b.Remaining)
	}
}

func TestCheckInJobHappyPath(t *testing.T) {
	job := NewCheckInJob("acct-1", "prov-1", time.Now())

	if job.Status != CheckInPending {
		t.Fatalf("new job should be pending, got %s", job.Status)
	}
	if err := job.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Status != CheckInRunning || job.StartedAt == nil {
		t.Fatal("started job should be running with a start time")
	}
	if err := job.Complete(CheckInResult{Success: true, Message: "ok"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if job.Status != CheckInCompleted || job.CompletedAt == nil || job.Result == nil {
		t.Fatal("completed job should carry result and completion time")
	}
}

func TestCheckInJobFailFromPendingAndRunning(t *testing.T) {
	pending := NewCheckInJob("a", "p", time.Now())
	if err := pending.Fail("boom"); err != nil {
		t.Fatalf("fail from pending: %v", err)
	}
	if pending.Error != "boom" {
		t.Errorf("want error message recorded, got %q", pending.Error)
	}

	running := NewCheckInJob("a", "p", time.Now())
	running.Start()
	if err := running.Fail("boom"); err != nil {
		t.Fatalf("fail from running: %v", err)
	}
}

func TestCheckInJobTerminalStatesReject(t *testing.T) {
	completed := NewCheckInJob("a", "p", time.Now())
	completed.Start()
	completed.Complete(CheckInResult{Success: true})

	if err := completed.Start(); err == nil {
		t.Error("restarting a completed job should fail")
	}
	if err := completed.Fail("x"); err == nil {
		t.Error("failing a completed job should fail")
	}
	if err := completed.Cancel(); err == nil {
		t.Error("cancelling a completed job should fail")
	}

	failed := NewCheckInJob("a", "p", time.Now())
	failed.Start()
	failed.Fail("x")
	if err := failed.Complete(CheckInResult{}); err == nil {
		t.Error("completing a failed job should fail")
	}
	if err := failed.Cancel(); err == nil {
		t.Error("cancelling a failed job should fail")
	}
}

func TestCheckInJobCancel(t *testing.T) {
	pending := NewCheckInJob("a", "p", time.Now())
	if err := pending.Cancel(); err != nil {
		t.Fatalf("cancel from pending: %v", err)
	}
	if pending.Status != CheckInCancelled {
		t.Errorf("want cancelled, got %s", pending.Status)
	}
	if err := pending.Cancel(); err == nil {
		t.Error("cancelling twice should fail")
	}

	running := NewCheckInJob("a", "p", time.Now())
	running.Start()
	if err := running.Cancel(); err != nil {
		t.Fatalf("cancel from running: %v", err)
	}

	// Completing a cancelled job is rejected.
	if err := running.Complete(CheckInResult{}); err == nil {
		t.Error("completing a cancelled job should fail")
	}
}
