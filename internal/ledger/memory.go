package ledger

import (
	"sync"
	"time"

	"github.com/quillworks/quill/pkg/models"
)

// Memory is an in-memory ledger used in tests and ephemeral runs. It honors
// the same append-only contract as the SQLite implementation.
type Memory struct {
	mu        sync.RWMutex
	entries   []models.LedgerEntry
	nextSeq   int64
	workflows []WorkflowRecord
	byExtID   map[string]string
	statuses  map[string]string
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		nextSeq:  1,
		byExtID:  make(map[string]string),
		statuses: make(map[string]string),
	}
}

// Append records an entry and returns it with Seq assigned.
func (m *Memory) Append(entry models.LedgerEntry) (models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Seq = m.nextSeq
	m.nextSeq++
	m.entries = append(m.entries, entry)
	return entry, nil
}

// BySubject returns entries for a subject within [from, to), oldest first.
func (m *Memory) BySubject(subjectID string, from, to time.Time) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.LedgerEntry
	for _, e := range m.entries {
		if e.SubjectID != subjectID {
			continue
		}
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ByInvocation returns all entries for an invocation, oldest first.
func (m *Memory) ByInvocation(invocationID string) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.LedgerEntry
	for _, e := range m.entries {
		if e.InvocationID == invocationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// SumCharges sums quota_charged entries for a subject/grant pair in [from, to).
func (m *Memory) SumCharges(subjectID, grantID string, from, to time.Time) (int64, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var units int64
	var cost float64
	for _, e := range m.entries {
		if e.Kind != models.LedgerQuotaCharged || e.SubjectID != subjectID || e.GrantID != grantID {
			continue
		}
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		units += e.Units
		cost += e.Cost
	}
	return units, cost, nil
}

// BindWorkflow records the external-ID-to-workflow binding.
func (m *Memory) BindWorkflow(externalID, workflowID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if externalID != "" {
		if existing, ok := m.byExtID[externalID]; ok {
			return existing, false, nil
		}
		m.byExtID[externalID] = workflowID
	}
	m.workflows = append(m.workflows, WorkflowRecord{
		WorkflowID: workflowID,
		ExternalID: externalID,
		Status:     "pending",
		CreatedAt:  time.Now(),
	})
	m.statuses[workflowID] = "pending"
	return workflowID, true, nil
}

// LookupWorkflow returns the workflow bound to an external ID, or "".
func (m *Memory) LookupWorkflow(externalID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byExtID[externalID], nil
}

// UpdateWorkflowStatus records the terminal status on the index row.
func (m *Memory) UpdateWorkflowStatus(workflowID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statuses[workflowID] = status
	for i := range m.workflows {
		if m.workflows[i].WorkflowID == workflowID {
			m.workflows[i].Status = status
		}
	}
	return nil
}

// RecentWorkflows returns the most recent workflow bindings, newest first.
func (m *Memory) RecentWorkflows(limit int) ([]WorkflowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.workflows) {
		limit = len(m.workflows)
	}
	out := make([]WorkflowRecord, 0, limit)
	for i := len(m.workflows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.workflows[i])
	}
	return out, nil
}

// Entries returns a snapshot of all recorded entries, oldest first.
func (m *Memory) Entries() []models.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Close is a no-op for the in-memory ledger.
func (m *Memory) Close() error {
	return nil
}
