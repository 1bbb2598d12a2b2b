package permission

import (
	"testing"

	"github.com/quillworks/quill/internal/ledger"
	"github.com/quillworks/quill/pkg/models"
)

func TestAccountant_PerInvocationCaps(t *testing.T) {
	a := NewAccountant(ledger.NewMemory())
	g := neverGrant(models.Quota{MaxUnitsPerInvocation: 1000, MaxCostPerInvocation: 1.00})

	if err := a.Reserve(g, "apr-1", "alice", 900, 0.90); err != nil {
		t.Fatalf("expected reservation within caps: %v", err)
	}
	if err := a.Reserve(g, "apr-2", "alice", 1100, 0.10); models.CodeOf(err) != models.CodeQuotaExceeded {
		t.Errorf("expected unit cap violation, got %v", err)
	}
	if err := a.Reserve(g, "apr-3", "alice", 100, 1.20); models.CodeOf(err) != models.CodeQuotaExceeded {
		t.Errorf("expected cost cap violation, got %v", err)
	}
}

func TestAccountant_DailyCapCountsCommittedAndReserved(t *testing.T) {
	journal := ledger.NewMemory()
	// 400 units already committed today.
	journal.Append(models.LedgerEntry{
		Kind: models.LedgerQuotaCharged, SubjectID: "alice", GrantID: "g1", Units: 400,
	})

	a := NewAccountant(journal)
	g := neverGrant(models.Quota{MaxUnitsPerDay: 1000})

	if err := a.Reserve(g, "apr-1", "alice", 300, 0); err != nil {
		t.Fatalf("expected 400+300 to fit under 1000: %v", err)
	}
	// 400 committed + 300 reserved + 400 requested > 1000.
	if err := a.Reserve(g, "apr-2", "alice", 400, 0); models.CodeOf(err) != models.CodeQuotaExceeded {
		t.Errorf("expected daily cap violation, got %v", err)
	}

	// Releasing frees headroom.
	a.Release("apr-1")
	if err := a.Reserve(g, "apr-3", "alice", 400, 0); err != nil {
		t.Errorf("expected reservation after release: %v", err)
	}
}

func TestAccountant_SettleReturnsReservation(t *testing.T) {
	a := NewAccountant(ledger.NewMemory())
	g := neverGrant(models.Quota{})

	if err := a.Reserve(g, "apr-1", "alice", 500, 0.25); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	r, ok := a.Settle("apr-1")
	if !ok {
		t.Fatal("expected reservation to exist")
	}
	if r.Units != 500 || r.Cost != 0.25 || r.GrantID != "g1" {
		t.Errorf("unexpected reservation: %+v", r)
	}
	if _, ok := a.Settle("apr-1"); ok {
		t.Error("expected second settle to find nothing")
	}
	if got := a.Reserved("alice", "g1"); got != 0 {
		t.Errorf("expected no outstanding units, got %d", got)
	}
}

func TestAccountant_ReserveIsIdempotentPerApproval(t *testing.T) {
	a := NewAccountant(ledger.NewMemory())
	g := neverGrant(models.Quota{MaxUnitsPerDay: 1000})

	if err := a.Reserve(g, "apr-1", "alice", 800, 0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// The same approval re-reserving must not double-count.
	if err := a.Reserve(g, "apr-1", "alice", 800, 0); err != nil {
		t.Fatalf("expected idempotent re-reserve: %v", err)
	}
	if got := a.Reserved("alice", "g1"); got != 800 {
		t.Errorf("expected 800 reserved, got %d", got)
	}
}
