package models

import (
	"testing"
	"time"
)

func TestComputeHashIsDeterministic(t *testing.T) {
	event := AuditEvent{
		Timestamp:  time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		UserID:     "admin",
		Action:     "EXECUTE",
		Resource:   "checkin",
		ResourceID: "acct-1",
		Success:    true,
	}

	first := event.ComputeHash()
	second := event.ComputeHash()
	if first != second {
		t.Fatal("hash must be stable for identical events")
	}
	if len(first) != 64 {
		t.Errorf("want hex sha256, got %d chars", len(first))
	}
}

func TestComputeHashChainsAndDetectsTampering(t *testing.T) {
	base := AuditEvent{
		Timestamp:  time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		UserID:     "admin",
		Action:     "CREATE",
		Resource:   "account",
		ResourceID: "acct-1",
		Success:    true,
	}
	original := base.ComputeHash()

	// Linking to a different previous entry changes the hash.
	chained := base
	chained.PreviousHash = original
	if chained.ComputeHash() == original {
		t.Error("previous hash must be part of the digest")
	}

	// Any mutation of the covered fields changes the hash.
	tampered := base
	tampered.Success = false
	if tampered.ComputeHash() == original {
		t.Error("flipping success must change the hash")
	}

	tampered = base
	tampered.ResourceID = "acct-2"
	if tampered.ComputeHash() == original {
		t.Error("changing the resource id must change the hash")
	}
}
