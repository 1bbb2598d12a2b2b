package permission

import (
	"testing"

	"github.com/quillworks/quill/pkg/models"
)

func grant(id string, version int, subject, worker string, caps ...string) models.PermissionGrant {
	return models.PermissionGrant{
		ID: id, Version: version, SubjectID: subject, WorkerID: worker,
		Capabilities: caps,
		Policy:       models.ApprovalPolicy{Kind: models.PolicyNever},
	}
}

func TestGrantStore_FindMostSpecific(t *testing.T) {
	s := NewGrantStore()
	for _, g := range []models.PermissionGrant{
		grant("wildcard", 1, "*", "*", "*"),
		grant("per-subject", 1, "alice", "*", "legal"),
		grant("per-pair", 1, "alice", "legal-writer", "legal"),
	} {
		if err := s.Put(g); err != nil {
			t.Fatalf("put %s: %v", g.ID, err)
		}
	}

	tests := []struct {
		name       string
		subject    string
		worker     string
		capability string
		wantID     string
		wantFound  bool
	}{
		{"exact pair wins", "alice", "legal-writer", "legal", "per-pair", true},
		{"subject match beats wildcard", "alice", "editor", "legal", "per-subject", true},
		{"wildcard covers strangers", "bob", "editor", "anything", "wildcard", true},
		{"capability must be allowed", "alice", "legal-writer", "marketing", "wildcard", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Find(tt.subject, tt.worker, tt.capability)
			if ok != tt.wantFound {
				t.Fatalf("found=%v, want %v", ok, tt.wantFound)
			}
			if got.ID != tt.wantID {
				t.Errorf("expected grant %s, got %s", tt.wantID, got.ID)
			}
		})
	}
}

func TestGrantStore_FindNothing(t *testing.T) {
	s := NewGrantStore()
	if err := s.Put(grant("g", 1, "alice", "*", "legal")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := s.Find("bob", "w", "legal"); ok {
		t.Error("expected no grant for uncovered subject")
	}
}

func TestGrantStore_VersionsNeverRollBack(t *testing.T) {
	s := NewGrantStore()
	if err := s.Put(grant("g", 3, "*", "*", "*")); err != nil {
		t.Fatalf("put v3: %v", err)
	}
	if err := s.Put(grant("g", 2, "*", "*", "*")); err == nil {
		t.Error("expected stale version to be rejected")
	}
	if err := s.Put(grant("g", 4, "*", "*", "*")); err != nil {
		t.Errorf("expected newer version to supersede: %v", err)
	}
	got, _ := s.Get("g")
	if got.Version != 4 {
		t.Errorf("expected version 4, got %d", got.Version)
	}
}

func TestGrantStore_RejectsInvalid(t *testing.T) {
	s := NewGrantStore()
	if err := s.Put(models.PermissionGrant{Policy: models.ApprovalPolicy{Kind: models.PolicyNever}}); err == nil {
		t.Error("expected missing ID to be rejected")
	}
	if err := s.Put(models.PermissionGrant{ID: "g", Policy: models.ApprovalPolicy{Kind: "sometimes"}}); err == nil {
		t.Error("expected unknown policy kind to be rejected")
	}
}
