// Package permission holds permission grants, quota accounting, and the
// approval-request state machine gating every invocation.
package permission

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quillworks/quill/pkg/models"
)

// GrantStore holds the active permission grants, keyed by grant ID. Grants
// are versioned: putting a grant with a version lower than the stored one is
// rejected, so stale catalog reloads cannot roll a grant back.
type GrantStore struct {
	grants map[string]models.PermissionGrant
	mu     sync.RWMutex
}

// NewGrantStore creates an empty grant store.
func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[string]models.PermissionGrant)}
}

// Put adds or supersedes a grant.
func (s *GrantStore) Put(g models.PermissionGrant) error {
	if g.ID == "" {
		return fmt.Errorf("grant ID is required")
	}
	if !g.Policy.Kind.Valid() {
		return fmt.Errorf("grant %s: unknown policy kind %q", g.ID, g.Policy.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.grants[g.ID]; ok && g.Version < existing.Version {
		return fmt.Errorf("grant %s: version %d is older than stored version %d",
			g.ID, g.Version, existing.Version)
	}
	s.grants[g.ID] = g
	return nil
}

// Get returns a grant by ID.
func (s *GrantStore) Get(grantID string) (models.PermissionGrant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID]
	return g, ok
}

// Remove deletes a grant. Approvals already issued under it are unaffected.
func (s *GrantStore) Remove(grantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, grantID)
}

// All returns every stored grant, sorted by ID.
func (s *GrantStore) All() []models.PermissionGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PermissionGrant, 0, len(s.grants))
	for _, g := range s.grants {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Find returns the grant authorizing a subject to exercise a capability on a
// worker. When several grants match, the most specific one wins: an exact
// subject match beats a wildcard, then an exact worker match, then the
// highest version.
func (s *GrantStore) Find(subjectID, workerID, capability string) (models.PermissionGrant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best models.PermissionGrant
	bestRank := -1
	for _, g := range s.grants {
		if !g.Covers(subjectID, workerID) || !g.Allows(capability) {
			continue
		}
		rank := 0
		if g.SubjectID != "*" {
			rank += 2
		}
		if g.WorkerID != "*" {
			rank++
		}
		if rank > bestRank || (rank == bestRank && g.Version > best.Version) {
			best = g
			bestRank = rank
		}
	}
	return best, bestRank >= 0
}
