package models

import "testing"

func TestPermissionGrant_Allows(t *testing.T) {
	tests := []struct {
		name       string
		caps       []string
		capability string
		want       bool
	}{
		{"exact match", []string{"legal", "draft"}, "legal", true},
		{"no match", []string{"legal"}, "creative", false},
		{"wildcard", []string{"*"}, "anything", true},
		{"empty set", nil, "legal", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := PermissionGrant{Capabilities: tt.caps}
			if got := g.Allows(tt.capability); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.capability, got, tt.want)
			}
		})
	}
}

func TestPermissionGrant_Covers(t *testing.T) {
	g := PermissionGrant{SubjectID: "user-1", WorkerID: "legal-writer"}

	if !g.Covers("user-1", "legal-writer") {
		t.Error("expected grant to cover its own subject and worker")
	}
	if g.Covers("user-2", "legal-writer") {
		t.Error("expected grant not to cover a different subject")
	}
	if g.Covers("user-1", "copy-editor") {
		t.Error("expected grant not to cover a different worker")
	}

	wild := PermissionGrant{SubjectID: "*", WorkerID: "*"}
	if !wild.Covers("anyone", "any-worker") {
		t.Error("expected wildcard grant to cover any subject/worker")
	}
}

func TestApprovalState_Terminal(t *testing.T) {
	terminal := []ApprovalState{ApprovalDenied, ApprovalExpired, ApprovalConsumed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	nonTerminal := []ApprovalState{ApprovalCreated, ApprovalPending, ApprovalApproved}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

func TestApprovalPolicyKind_Valid(t *testing.T) {
	valid := []ApprovalPolicyKind{PolicyAlways, PolicyThreshold, PolicyMilestone, PolicyNever}
	for _, k := range valid {
		if !k.Valid() {
			t.Errorf("expected %s to be valid", k)
		}
	}
	if ApprovalPolicyKind("sometimes").Valid() {
		t.Error("expected unknown policy kind to be invalid")
	}
}
