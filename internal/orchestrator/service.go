package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/quill/internal/classifier"
	"github.com/quillworks/quill/internal/ledger"
	"github.com/quillworks/quill/internal/permission"
	"github.com/quillworks/quill/internal/router"
	"github.com/quillworks/quill/internal/selector"
	"github.com/quillworks/quill/pkg/models"
)

// Service is the exposed surface of the execution core: task submission,
// workflow status, approval resolution, and cancellation. Errors carry
// models.ErrorCode values that map one-to-one onto response codes.
type Service struct {
	classifier *classifier.Classifier
	selector   *selector.Selector
	router     *router.Router
	approvals  *permission.Manager
	engine     *Engine
	journal    ledger.Ledger
	emitter    *Emitter

	// runs holds the live and finished workflows of this process.
	runs map[string]*runState
	mu   sync.Mutex
}

// NewService wires the execution core together.
func NewService(cls *classifier.Classifier, sel *selector.Selector, rt *router.Router,
	approvals *permission.Manager, engine *Engine, journal ledger.Ledger, emitter *Emitter) *Service {
	return &Service{
		classifier: cls,
		selector:   sel,
		router:     rt,
		approvals:  approvals,
		engine:     engine,
		journal:    journal,
		emitter:    emitter,
		runs:       make(map[string]*runState),
	}
}

// SubmitTask accepts a task for execution and returns its workflow ID.
// Submission is idempotent per external task ID: resubmitting returns the
// original workflow ID without creating a duplicate. Classification, worker
// selection, and the per-invocation quota caps are all checked before the
// workflow is created, so oversized or unservable tasks are rejected here
// rather than mid-flight.
func (s *Service) SubmitTask(ctx context.Context, task models.Task) (string, error) {
	if strings.TrimSpace(task.Description) == "" {
		return "", models.InvalidInput("task description is required")
	}
	if task.SubjectID == "" {
		return "", models.InvalidInput("subject ID is required")
	}
	if task.ID == "" {
		task.ID = "task-" + uuid.New().String()[:8]
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	// Fast path for resubmission, before any classification work.
	if task.ExternalID != "" {
		existing, err := s.journal.LookupWorkflow(task.ExternalID)
		if err != nil {
			return "", models.Internal("looking up workflow binding", err)
		}
		if existing != "" {
			return existing, nil
		}
	}

	cls, err := s.classifier.Classify(ctx, task)
	if err != nil {
		if models.CodeOf(err) == models.CodeLowConfidence {
			return "", err
		}
		return "", models.InvalidInput(fmt.Sprintf("task could not be classified: %v", err))
	}

	sel, err := s.selector.Select(cls)
	if err != nil {
		return "", err
	}

	wf := &models.Workflow{
		ID:             "wf-" + uuid.New().String()[:8],
		TaskID:         task.ID,
		ExternalTaskID: task.ExternalID,
		SubjectID:      task.SubjectID,
		Classification: cls,
		Status:         models.WorkflowPending,
		CreatedAt:      time.Now(),
	}
	wf.Invocations = planInvocations(wf, sel, s.estimateCost)

	// Reject quota-cap violations before the workflow exists and before any
	// provider is called.
	for _, inv := range wf.Invocations {
		if err := s.approvals.Precheck(task.SubjectID, inv.WorkerID, cls.Domain,
			inv.EstimatedUnits, inv.EstimatedCost); err != nil {
			return "", err
		}
	}

	boundID, created, err := s.journal.BindWorkflow(task.ExternalID, wf.ID)
	if err != nil {
		return "", models.Internal("binding workflow", err)
	}
	if !created {
		// A concurrent submission with the same external ID won the bind.
		return boundID, nil
	}

	if _, err := s.journal.Append(models.LedgerEntry{
		Kind:       models.LedgerWorkflowCreated,
		SubjectID:  task.SubjectID,
		WorkflowID: wf.ID,
		Detail:     truncate(task.Description, 200),
	}); err != nil {
		return "", models.Internal("recording workflow creation", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st := newRunState(wf, cancel)

	s.mu.Lock()
	s.runs[wf.ID] = st
	s.mu.Unlock()

	go s.engine.Run(runCtx, st, task)
	return wf.ID, nil
}

// estimateCost prices an invocation estimate at the router's current first
// choice, so quota prechecks see realistic numbers.
func (s *Service) estimateCost(contentType models.ContentType, units int64) float64 {
	providers, err := s.router.Route(router.InvocationSpec{ContentType: contentType, EstimatedUnits: units})
	if err != nil || len(providers) == 0 {
		return 0
	}
	return providers[0].Cost(units/2, units/2)
}

// GetWorkflowStatus returns a snapshot of the workflow, including partial
// outputs of finished invocations.
func (s *Service) GetWorkflowStatus(workflowID string) (models.Workflow, error) {
	s.mu.Lock()
	st, ok := s.runs[workflowID]
	s.mu.Unlock()
	if !ok {
		return models.Workflow{}, models.NotFound(fmt.Sprintf("workflow %s", workflowID))
	}
	return st.snapshot(), nil
}

// ResolveApproval applies a human decision to a pending approval request.
func (s *Service) ResolveApproval(approvalID string, approved bool, resolvedBy, reason string) error {
	_, err := s.approvals.Resolve(approvalID, approved, resolvedBy, reason)
	return err
}

// PendingApprovals lists unresolved approval requests.
func (s *Service) PendingApprovals() []models.ApprovalRequest {
	return s.approvals.Pending()
}

// ApprovalRequests returns the channel carrying newly pending approvals.
func (s *Service) ApprovalRequests() <-chan models.ApprovalRequest {
	return s.approvals.RequestCh()
}

// Events returns the orchestrator event stream.
func (s *Service) Events() <-chan Event {
	return s.emitter.Events()
}

// CancelWorkflow cancels a running workflow. All pending invocations and
// outstanding approval requests transition to cancelled/expired; no further
// provider calls are issued.
func (s *Service) CancelWorkflow(workflowID string) error {
	s.mu.Lock()
	st, ok := s.runs[workflowID]
	s.mu.Unlock()
	if !ok {
		return models.NotFound(fmt.Sprintf("workflow %s", workflowID))
	}

	st.mu.Lock()
	terminal := st.wf.Status.Terminal()
	st.mu.Unlock()
	if terminal {
		return models.WrongState(fmt.Sprintf("workflow %s already finished", workflowID))
	}

	st.cancel()
	return nil
}

// WaitForWorkflow blocks until the workflow reaches a terminal state or the
// context is cancelled, then returns the final snapshot.
func (s *Service) WaitForWorkflow(ctx context.Context, workflowID string) (models.Workflow, error) {
	s.mu.Lock()
	st, ok := s.runs[workflowID]
	s.mu.Unlock()
	if !ok {
		return models.Workflow{}, models.NotFound(fmt.Sprintf("workflow %s", workflowID))
	}

	select {
	case <-st.done:
		return st.snapshot(), nil
	case <-ctx.Done():
		return models.Workflow{}, ctx.Err()
	}
}
