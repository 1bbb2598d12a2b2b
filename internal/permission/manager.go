package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/quill/internal/ledger"
	"github.com/quillworks/quill/pkg/models"
)

// AuthorizeRequest describes the invocation seeking authorization.
type AuthorizeRequest struct {
	// InvocationID is the invocation being gated.
	InvocationID string
	// WorkflowID is the workflow the invocation belongs to.
	WorkflowID string
	// SubjectID is the user on whose behalf the invocation runs.
	SubjectID string
	// WorkerID is the selected worker.
	WorkerID string
	// Capability is the capability tag being exercised.
	Capability string
	// Units and Cost are the estimates being authorized.
	Units int64
	Cost  float64
	// Milestone marks the workflow's primary invocation, which per_milestone
	// policies gate on.
	Milestone bool
	// Detail is a human-readable summary shown to the approver.
	Detail string
}

// Manager runs the approval-request state machine. Every state transition is
// recorded to the ledger before it becomes observable, so the audit trail
// never lags the in-memory state.
type Manager struct {
	grants  *GrantStore
	quota   *Accountant
	journal ledger.Ledger

	defaultTimeout time.Duration

	// requests holds every request this process created, by ID.
	requests map[string]*models.ApprovalRequest
	// waiters holds resolution channels for blocked invocations.
	waiters map[string][]chan models.ApprovalRequest
	// timers holds expiry timers for pending requests.
	timers map[string]*time.Timer
	// inFlight marks requests whose transition is being recorded. The new
	// state stays unpublished until its ledger entry is written, and a
	// request transitions exactly once.
	inFlight map[string]bool
	// requestCh surfaces pending requests to an approver frontend.
	requestCh chan models.ApprovalRequest
	mu        sync.Mutex
}

// NewManager creates a Manager. defaultTimeout applies to pending requests
// whose grant policy does not set its own timeout.
func NewManager(grants *GrantStore, quota *Accountant, journal ledger.Ledger, defaultTimeout time.Duration) *Manager {
	return &Manager{
		grants:         grants,
		quota:          quota,
		journal:        journal,
		defaultTimeout: defaultTimeout,
		requests:       make(map[string]*models.ApprovalRequest),
		waiters:        make(map[string][]chan models.ApprovalRequest),
		timers:         make(map[string]*time.Timer),
		inFlight:       make(map[string]bool),
		requestCh:      make(chan models.ApprovalRequest, 16),
	}
}

// RequestCh returns a read-only channel carrying newly pending requests.
// An approver frontend (TUI, notifier) listens on it. The channel is
// buffered and sends never block the approval clock.
func (m *Manager) RequestCh() <-chan models.ApprovalRequest {
	return m.requestCh
}

// Precheck verifies that a grant exists and the estimate fits its
// per-invocation caps, without reserving anything. Submission uses it to
// reject oversized work before a workflow is created.
func (m *Manager) Precheck(subjectID, workerID, capability string, units int64, cost float64) error {
	grant, ok := m.grants.Find(subjectID, workerID, capability)
	if !ok {
		return models.ErrApprovalDenied(fmt.Sprintf(
			"no grant authorizes subject %s to use %s on worker %s",
			subjectID, capability, workerID))
	}
	q := grant.Quotas
	if q.MaxUnitsPerInvocation > 0 && units > q.MaxUnitsPerInvocation {
		return models.QuotaExceeded(fmt.Sprintf(
			"estimated %d units exceeds the %d-unit per-invocation cap of grant %s",
			units, q.MaxUnitsPerInvocation, grant.ID))
	}
	if q.MaxCostPerInvocation > 0 && cost > q.MaxCostPerInvocation {
		return models.QuotaExceeded(fmt.Sprintf(
			"estimated cost $%.2f exceeds the $%.2f per-invocation cap of grant %s",
			cost, q.MaxCostPerInvocation, grant.ID))
	}
	return nil
}

// Authorize runs the full admission check for an invocation: grant lookup,
// quota reservation, then policy evaluation. The returned request is either
// Approved (auto-approved by policy) or Pending (waiting on a human). Quota
// failures are returned before any provider work happens.
func (m *Manager) Authorize(ctx context.Context, ar AuthorizeRequest) (models.ApprovalRequest, error) {
	grant, ok := m.grants.Find(ar.SubjectID, ar.WorkerID, ar.Capability)
	if !ok {
		return models.ApprovalRequest{}, models.ErrApprovalDenied(fmt.Sprintf(
			"no grant authorizes subject %s to use %s on worker %s",
			ar.SubjectID, ar.Capability, ar.WorkerID))
	}

	req := models.ApprovalRequest{
		ID:           "apr-" + uuid.New().String()[:8],
		InvocationID: ar.InvocationID,
		WorkflowID:   ar.WorkflowID,
		SubjectID:    ar.SubjectID,
		GrantID:      grant.ID,
		Capability:   ar.Capability,
		Units:        ar.Units,
		Cost:         ar.Cost,
		State:        models.ApprovalCreated,
		CreatedAt:    time.Now(),
	}

	if err := m.quota.Reserve(grant, req.ID, ar.SubjectID, ar.Units, ar.Cost); err != nil {
		return models.ApprovalRequest{}, err
	}

	if err := m.append(models.LedgerApprovalCreated, req, ar.Detail); err != nil {
		m.quota.Release(req.ID)
		return models.ApprovalRequest{}, err
	}

	if autoApprove(grant.Policy, ar) {
		req.State = models.ApprovalApproved
		req.ResolvedBy = "auto"
		if err := m.append(models.LedgerApprovalApproved, req, "auto-approved by policy"); err != nil {
			m.quota.Release(req.ID)
			return models.ApprovalRequest{}, err
		}
		m.track(req)
		return req, nil
	}

	timeout := grant.Policy.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	req.State = models.ApprovalPending
	req.ExpiresAt = req.CreatedAt.Add(timeout)
	if err := m.append(models.LedgerApprovalPending, req, ar.Detail); err != nil {
		m.quota.Release(req.ID)
		return models.ApprovalRequest{}, err
	}
	m.track(req)

	m.mu.Lock()
	m.timers[req.ID] = time.AfterFunc(timeout, func() { m.expire(req.ID) })
	m.mu.Unlock()

	// Best-effort surface to the approver frontend.
	select {
	case m.requestCh <- req:
	default:
	}

	return req, nil
}

// autoApprove evaluates whether the policy admits the request without a
// human decision.
func autoApprove(p models.ApprovalPolicy, ar AuthorizeRequest) bool {
	switch p.Kind {
	case models.PolicyNever:
		return true
	case models.PolicyThreshold:
		return ar.Units <= p.UnitThreshold
	case models.PolicyMilestone:
		return !ar.Milestone
	default:
		return false
	}
}

// Wait blocks until the request leaves the pending state or the context is
// cancelled. Approved requests return immediately.
func (m *Manager) Wait(ctx context.Context, approvalID string) (models.ApprovalRequest, error) {
	m.mu.Lock()
	req, ok := m.requests[approvalID]
	if !ok {
		m.mu.Unlock()
		return models.ApprovalRequest{}, models.NotFound(fmt.Sprintf("approval request %s", approvalID))
	}
	if req.State != models.ApprovalPending {
		resolved := *req
		m.mu.Unlock()
		return resolved, nil
	}
	ch := make(chan models.ApprovalRequest, 1)
	m.waiters[approvalID] = append(m.waiters[approvalID], ch)
	m.mu.Unlock()

	select {
	case resolved := <-ch:
		return resolved, nil
	case <-ctx.Done():
		return models.ApprovalRequest{}, ctx.Err()
	}
}

// Resolve applies a human decision to a pending request. Requests in any
// other state are rejected with wrong_state; a request resolves exactly once.
func (m *Manager) Resolve(approvalID string, approved bool, resolvedBy, reason string) (models.ApprovalRequest, error) {
	m.mu.Lock()
	req, ok := m.requests[approvalID]
	if !ok {
		m.mu.Unlock()
		return models.ApprovalRequest{}, models.NotFound(fmt.Sprintf("approval request %s", approvalID))
	}
	if req.State != models.ApprovalPending || m.inFlight[approvalID] {
		state := req.State
		m.mu.Unlock()
		return models.ApprovalRequest{}, models.WrongState(fmt.Sprintf(
			"approval request %s is %s, not pending", approvalID, state))
	}
	m.inFlight[approvalID] = true

	if t, ok := m.timers[approvalID]; ok {
		t.Stop()
		delete(m.timers, approvalID)
	}

	resolved := *req
	resolved.ResolvedBy = resolvedBy
	kind := models.LedgerApprovalApproved
	if approved {
		resolved.State = models.ApprovalApproved
	} else {
		resolved.State = models.ApprovalDenied
		resolved.Reason = reason
		kind = models.LedgerApprovalDenied
	}
	m.mu.Unlock()

	// Record the transition before it becomes observable.
	if err := m.append(kind, resolved, reason); err != nil {
		m.clearInFlight(approvalID)
		return models.ApprovalRequest{}, err
	}

	m.publish(approvalID, resolved)
	if !approved {
		m.quota.Release(approvalID)
	}
	m.notify(resolved)
	return resolved, nil
}

// publish makes a recorded transition observable and clears the in-flight
// marker.
func (m *Manager) publish(approvalID string, next models.ApprovalRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req, ok := m.requests[approvalID]; ok {
		*req = next
	}
	delete(m.inFlight, approvalID)
}

func (m *Manager) clearInFlight(approvalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, approvalID)
}

// expire transitions an unresolved pending request to Expired and releases
// its reservation. Expiry is equivalent to denial for execution but recorded
// distinctly.
func (m *Manager) expire(approvalID string) {
	m.mu.Lock()
	req, ok := m.requests[approvalID]
	if !ok || req.State != models.ApprovalPending || m.inFlight[approvalID] {
		m.mu.Unlock()
		return
	}
	m.inFlight[approvalID] = true
	delete(m.timers, approvalID)
	expired := *req
	expired.State = models.ApprovalExpired
	expired.Reason = "approval timed out"
	m.mu.Unlock()

	if err := m.append(models.LedgerApprovalExpired, expired, expired.Reason); err != nil {
		m.clearInFlight(approvalID)
		return
	}

	m.publish(approvalID, expired)
	m.quota.Release(approvalID)
	m.notify(expired)
}

// Cancel expires a pending request because its workflow was cancelled.
// Non-pending requests are left alone.
func (m *Manager) Cancel(approvalID, reason string) {
	m.mu.Lock()
	req, ok := m.requests[approvalID]
	if !ok || req.State != models.ApprovalPending || m.inFlight[approvalID] {
		m.mu.Unlock()
		return
	}
	m.inFlight[approvalID] = true
	if t, ok := m.timers[approvalID]; ok {
		t.Stop()
		delete(m.timers, approvalID)
	}
	cancelled := *req
	cancelled.State = models.ApprovalExpired
	cancelled.Reason = reason
	m.mu.Unlock()

	if err := m.append(models.LedgerApprovalExpired, cancelled, reason); err != nil {
		m.clearInFlight(approvalID)
		return
	}

	m.publish(approvalID, cancelled)
	m.quota.Release(approvalID)
	m.notify(cancelled)
}

// Consume finalizes an approved request after its invocation finished,
// writing the actual charge and releasing the reservation.
func (m *Manager) Consume(approvalID string, actualUnits int64, actualCost float64) error {
	m.mu.Lock()
	req, ok := m.requests[approvalID]
	if !ok {
		m.mu.Unlock()
		return models.NotFound(fmt.Sprintf("approval request %s", approvalID))
	}
	if req.State != models.ApprovalApproved || m.inFlight[approvalID] {
		state := req.State
		m.mu.Unlock()
		return models.WrongState(fmt.Sprintf(
			"approval request %s is %s, not approved", approvalID, state))
	}
	m.inFlight[approvalID] = true
	consumed := *req
	consumed.State = models.ApprovalConsumed
	m.mu.Unlock()

	charge := models.LedgerEntry{
		Kind:         models.LedgerQuotaCharged,
		SubjectID:    consumed.SubjectID,
		WorkflowID:   consumed.WorkflowID,
		InvocationID: consumed.InvocationID,
		ApprovalID:   consumed.ID,
		GrantID:      consumed.GrantID,
		Units:        actualUnits,
		Cost:         actualCost,
	}
	if _, err := m.journal.Append(charge); err != nil {
		m.clearInFlight(approvalID)
		return models.Internal("recording quota charge", err)
	}
	if err := m.append(models.LedgerApprovalConsumed, consumed, ""); err != nil {
		m.clearInFlight(approvalID)
		return err
	}

	m.publish(approvalID, consumed)
	m.quota.Settle(approvalID)
	return nil
}

// CanReuse reports whether an approved request still covers a retry of the
// given size. Retries exceeding the approved scope need a new approval cycle.
func (m *Manager) CanReuse(approvalID string, units int64, cost float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[approvalID]
	if !ok || req.State != models.ApprovalApproved || m.inFlight[approvalID] {
		return false
	}
	return units <= req.Units && cost <= req.Cost
}

// Get returns a request by ID.
func (m *Manager) Get(approvalID string) (models.ApprovalRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[approvalID]
	if !ok {
		return models.ApprovalRequest{}, false
	}
	return *req, true
}

// Pending returns all currently pending requests, for the approvals inbox.
func (m *Manager) Pending() []models.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ApprovalRequest
	for _, req := range m.requests {
		if req.State == models.ApprovalPending {
			out = append(out, *req)
		}
	}
	return out
}

func (m *Manager) track(req models.ApprovalRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := req
	m.requests[req.ID] = &copied
}

// notify wakes every waiter blocked on the request.
func (m *Manager) notify(req models.ApprovalRequest) {
	m.mu.Lock()
	waiters := m.waiters[req.ID]
	delete(m.waiters, req.ID)
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- req
	}
}

func (m *Manager) append(kind models.LedgerEventKind, req models.ApprovalRequest, detail string) error {
	_, err := m.journal.Append(models.LedgerEntry{
		Kind:         kind,
		SubjectID:    req.SubjectID,
		WorkflowID:   req.WorkflowID,
		InvocationID: req.InvocationID,
		ApprovalID:   req.ID,
		GrantID:      req.GrantID,
		Detail:       detail,
		Units:        req.Units,
		Cost:         req.Cost,
	})
	if err != nil {
		return models.Internal("recording approval event", err)
	}
	return nil
}
