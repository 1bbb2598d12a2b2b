package permission

import (
	"fmt"
	"sync"
	"time"

	"github.com/quillworks/quill/internal/ledger"
	"github.com/quillworks/quill/pkg/models"
)

// dayWindow is the rolling window for per-day quota limits.
const dayWindow = 24 * time.Hour

// Reservation is quota optimistically held by a pending or approved request.
type Reservation struct {
	SubjectID string
	GrantID   string
	Units     int64
	Cost      float64
}

// Accountant enforces grant quotas. It holds in-memory reservations for
// requests that are pending or approved but not yet consumed, and sums
// committed charges from the ledger for the rolling-day limit. Reserve,
// Release, and Settle serialize on one mutex, so two concurrent requests can
// never both be admitted against a nearly exhausted quota.
type Accountant struct {
	charges ledger.Querier

	// reservations is keyed by approval request ID.
	reservations map[string]Reservation
	mu           sync.Mutex
}

// NewAccountant creates an Accountant reading committed charges from the
// given ledger.
func NewAccountant(charges ledger.Querier) *Accountant {
	return &Accountant{
		charges:      charges,
		reservations: make(map[string]Reservation),
	}
}

// Reserve holds quota for an approval request. It fails with quota_exceeded
// when the estimate breaks a per-invocation cap, or when committed charges
// plus outstanding reservations would break the rolling-day cap.
func (a *Accountant) Reserve(g models.PermissionGrant, approvalID, subjectID string, units int64, cost float64) error {
	q := g.Quotas
	if q.MaxUnitsPerInvocation > 0 && units > q.MaxUnitsPerInvocation {
		return models.QuotaExceeded(fmt.Sprintf(
			"estimated %d units exceeds the %d-unit per-invocation cap of grant %s",
			units, q.MaxUnitsPerInvocation, g.ID))
	}
	if q.MaxCostPerInvocation > 0 && cost > q.MaxCostPerInvocation {
		return models.QuotaExceeded(fmt.Sprintf(
			"estimated cost $%.2f exceeds the $%.2f per-invocation cap of grant %s",
			cost, q.MaxCostPerInvocation, g.ID))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.reservations[approvalID]; exists {
		return nil
	}

	if q.MaxUnitsPerDay > 0 {
		now := time.Now()
		committed, _, err := a.charges.SumCharges(subjectID, g.ID, now.Add(-dayWindow), now)
		if err != nil {
			return models.Internal("summing committed charges", err)
		}
		outstanding := a.reservedLocked(subjectID, g.ID)
		if committed+outstanding+units > q.MaxUnitsPerDay {
			return models.QuotaExceeded(fmt.Sprintf(
				"grant %s daily cap %d units: %d committed, %d reserved, %d requested",
				g.ID, q.MaxUnitsPerDay, committed, outstanding, units))
		}
	}

	a.reservations[approvalID] = Reservation{
		SubjectID: subjectID,
		GrantID:   g.ID,
		Units:     units,
		Cost:      cost,
	}
	return nil
}

// Release drops the reservation for a denied, expired, or cancelled request.
// Releasing an unknown ID is a no-op.
func (a *Accountant) Release(approvalID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reservations, approvalID)
}

// Settle removes the reservation when its invocation finishes and returns
// it, so the caller can write the final quota charge.
func (a *Accountant) Settle(approvalID string) (Reservation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.reservations[approvalID]
	if ok {
		delete(a.reservations, approvalID)
	}
	return r, ok
}

// Reserved returns the outstanding reserved units for a subject and grant.
func (a *Accountant) Reserved(subjectID, grantID string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reservedLocked(subjectID, grantID)
}

func (a *Accountant) reservedLocked(subjectID, grantID string) int64 {
	var total int64
	for _, r := range a.reservations {
		if r.SubjectID == subjectID && r.GrantID == grantID {
			total += r.Units
		}
	}
	return total
}
