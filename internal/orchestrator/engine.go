package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/ledger"
	"github.com/quillworks/quill/internal/permission"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/internal/registry"
	"github.com/quillworks/quill/internal/router"
	"github.com/quillworks/quill/pkg/models"
)

// BackendResolver supplies the completion backend for a provider.
type BackendResolver interface {
	Resolve(p models.Provider) (provider.Backend, error)
}

// Notifier surfaces pending approval requests to a human approver. Delivery
// is fire-and-forget and must never block the approval timeout clock.
type Notifier interface {
	Notify(req models.ApprovalRequest)
}

// Engine executes a workflow's invocations stage by stage: approval gate,
// provider routing with fallback, and bounded concurrency within and across
// workflows.
type Engine struct {
	workers    *registry.WorkerRegistry
	providers  *registry.ProviderRegistry
	router     *router.Router
	approvals  *permission.Manager
	journal    ledger.Ledger
	emitter    *Emitter
	backends   BackendResolver
	notifier   Notifier
	validators []Validator
	limits     config.LimitsConfig
	timeouts   config.TimeoutsConfig

	// globalSem bounds in-flight provider calls across all workflows.
	globalSem chan struct{}
}

// EngineDeps collects the engine's collaborators.
type EngineDeps struct {
	Workers    *registry.WorkerRegistry
	Providers  *registry.ProviderRegistry
	Router     *router.Router
	Approvals  *permission.Manager
	Journal    ledger.Ledger
	Emitter    *Emitter
	Backends   BackendResolver
	Notifier   Notifier
	Validators []Validator
	Limits     config.LimitsConfig
	Timeouts   config.TimeoutsConfig
}

// NewEngine creates an Engine.
func NewEngine(deps EngineDeps) *Engine {
	globalLimit := deps.Limits.GlobalConcurrency
	if globalLimit < 1 {
		globalLimit = 1
	}
	return &Engine{
		workers:    deps.Workers,
		providers:  deps.Providers,
		router:     deps.Router,
		approvals:  deps.Approvals,
		journal:    deps.Journal,
		emitter:    deps.Emitter,
		backends:   deps.Backends,
		notifier:   deps.Notifier,
		validators: deps.Validators,
		limits:     deps.Limits,
		timeouts:   deps.Timeouts,
		globalSem:  make(chan struct{}, globalLimit),
	}
}

// runState is the mutable execution state of one workflow. The engine and
// the service both read and write the workflow through its mutex.
type runState struct {
	wf     *models.Workflow
	shared *SharedContext
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

func newRunState(wf *models.Workflow, cancel context.CancelFunc) *runState {
	return &runState{
		wf:     wf,
		shared: NewSharedContext(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// snapshot returns a deep copy safe to hand to callers.
func (st *runState) snapshot() models.Workflow {
	st.mu.Lock()
	defer st.mu.Unlock()

	copied := *st.wf
	copied.Invocations = make([]*models.Invocation, len(st.wf.Invocations))
	for i, inv := range st.wf.Invocations {
		invCopy := *inv
		invCopy.Attempts = append([]models.Attempt(nil), inv.Attempts...)
		invCopy.DependsOn = append([]string(nil), inv.DependsOn...)
		copied.Invocations[i] = &invCopy
	}
	copied.Violations = append([]string(nil), st.wf.Violations...)
	return copied
}

// Run executes the workflow to a terminal state. It is called on its own
// goroutine; st.done closes when the terminal state is recorded.
func (e *Engine) Run(ctx context.Context, st *runState, task models.Task) {
	defer close(st.done)

	st.mu.Lock()
	st.wf.Status = models.WorkflowRunning
	st.mu.Unlock()
	debugLog("workflow %s: starting with %d invocations", st.wf.ID, len(st.wf.Invocations))
	e.emitter.Emit(Event{Type: EventWorkflowStarted, WorkflowID: st.wf.ID})

	perWorkflow := e.limits.PerWorkflowConcurrency
	if perWorkflow < 1 {
		perWorkflow = 1
	}

	stages := stagesOf(st.wf.Invocations)
	for i, stage := range stages {
		if ctx.Err() != nil {
			break
		}
		e.emitter.Emit(Event{Type: EventStageStarted, WorkflowID: st.wf.ID, Stage: i})

		sem := make(chan struct{}, perWorkflow)
		var wg sync.WaitGroup
		for _, inv := range stage {
			if e.dependencyFailed(st, inv) {
				e.finishInvocation(st, inv, models.InvocationCancelled, "dependency did not succeed")
				continue
			}
			wg.Add(1)
			go func(inv *models.Invocation) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				e.execute(ctx, st, task, inv)
			}(inv)
		}
		wg.Wait()

		// A failed primary aborts the remaining stages.
		if primary := st.wf.Primary(); primary != nil {
			st.mu.Lock()
			aborted := primary.Status.Terminal() && primary.Status != models.InvocationSucceeded
			st.mu.Unlock()
			if aborted {
				break
			}
		}
	}

	e.finalize(ctx, st)
}

// dependencyFailed reports whether any dependency of the invocation ended in
// a non-success state.
func (e *Engine) dependencyFailed(st *runState, inv *models.Invocation) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	byID := make(map[string]*models.Invocation, len(st.wf.Invocations))
	for _, other := range st.wf.Invocations {
		byID[other.ID] = other
	}
	for _, dep := range inv.DependsOn {
		if d, ok := byID[dep]; ok && d.Status != models.InvocationSucceeded {
			return true
		}
	}
	return false
}

// execute runs a single invocation: approval gate, routing, then provider
// attempts with fallback.
func (e *Engine) execute(ctx context.Context, st *runState, task models.Task, inv *models.Invocation) {
	st.mu.Lock()
	cls := st.wf.Classification
	subjectID := st.wf.SubjectID
	st.mu.Unlock()

	apr, ok := e.gateOnApproval(ctx, st, task, inv, cls, subjectID)
	if !ok {
		return
	}

	st.mu.Lock()
	inv.Status = models.InvocationApproved
	st.mu.Unlock()

	spec := router.InvocationSpec{ContentType: cls.ContentType, EstimatedUnits: inv.EstimatedUnits}
	candidates, err := e.router.Route(spec)
	if err != nil {
		debugLog("invocation %s: routing failed: %v", inv.ID, err)
		e.voidApproval(apr.ID)
		e.finishInvocation(st, inv, models.InvocationFailed, err.Error())
		return
	}
	debugLog("invocation %s: routed to %d candidate providers", inv.ID, len(candidates))

	maxAttempts := 1 + e.limits.MaxRetries
	if len(candidates) > maxAttempts {
		candidates = candidates[:maxAttempts]
	}

	if err := e.appendInvocation(models.LedgerInvocationExecuting, st, inv, ""); err != nil {
		e.voidApproval(apr.ID)
		e.finishInvocation(st, inv, models.InvocationFailed, err.Error())
		return
	}
	now := time.Now()
	st.mu.Lock()
	inv.Status = models.InvocationExecuting
	inv.StartedAt = &now
	st.mu.Unlock()
	e.emitter.Emit(Event{Type: EventInvocationStarted, WorkflowID: st.wf.ID, InvocationID: inv.ID, WorkerID: inv.WorkerID})

	e.workers.AcquireSlot(inv.WorkerID)
	defer e.workers.ReleaseSlot(inv.WorkerID)

	for n, prov := range candidates {
		if ctx.Err() != nil {
			e.voidApproval(apr.ID)
			e.finishInvocation(st, inv, models.InvocationCancelled, "workflow cancelled")
			return
		}
		if n > 0 {
			// A retry re-uses the approval only within the approved scope;
			// otherwise a full new approval cycle is required.
			if !e.approvals.CanReuse(apr.ID, inv.EstimatedUnits, inv.EstimatedCost) {
				apr, ok = e.gateOnApproval(ctx, st, task, inv, cls, subjectID)
				if !ok {
					return
				}
			}
			e.emitter.Emit(Event{
				Type: EventInvocationRetried, WorkflowID: st.wf.ID,
				InvocationID: inv.ID, ProviderID: prov.ID,
				Message: fmt.Sprintf("attempt %d", n+1),
			})
		}

		attempt, result, err := e.attempt(ctx, st, task, inv, cls, prov, n+1)
		debugLog("invocation %s: attempt %d on %s: %s", inv.ID, attempt.Number, prov.ID, attemptOutcome(attempt))
		st.mu.Lock()
		inv.Attempts = append(inv.Attempts, attempt)
		st.mu.Unlock()
		if err := e.appendInvocation(models.LedgerInvocationAttempt, st, inv,
			fmt.Sprintf("attempt %d on %s: %s", attempt.Number, prov.ID, attemptOutcome(attempt))); err != nil {
			debugLog("invocation %s: attempt record not written: %v", inv.ID, err)
		}

		if err != nil {
			continue
		}

		units := result.InputTokens + result.OutputTokens
		cost := prov.Cost(result.InputTokens, result.OutputTokens)
		if err := e.approvals.Consume(apr.ID, units, cost); err != nil {
			e.finishInvocation(st, inv, models.InvocationFailed, err.Error())
			return
		}
		e.workers.RecordOutcome(inv.WorkerID, cls.Domain, true)
		st.shared.Put(inv.ID, result.Text)

		st.mu.Lock()
		inv.ProviderID = prov.ID
		inv.Units = units
		inv.Cost = cost
		inv.Output = result.Text
		st.mu.Unlock()
		e.finishInvocation(st, inv, models.InvocationSucceeded, "")
		return
	}

	e.workers.RecordOutcome(inv.WorkerID, cls.Domain, false)
	e.voidApproval(apr.ID)
	e.finishInvocation(st, inv, models.InvocationFailed,
		fmt.Sprintf("all %d fallback providers exhausted", len(candidates)))
}

// gateOnApproval runs the approval checkpoint for an invocation. It returns
// the approved request and true, or finishes the invocation and returns
// false.
func (e *Engine) gateOnApproval(ctx context.Context, st *runState, task models.Task, inv *models.Invocation, cls models.Classification, subjectID string) (models.ApprovalRequest, bool) {
	apr, err := e.approvals.Authorize(ctx, permission.AuthorizeRequest{
		InvocationID: inv.ID,
		WorkflowID:   inv.WorkflowID,
		SubjectID:    subjectID,
		WorkerID:     inv.WorkerID,
		Capability:   cls.Domain,
		Units:        inv.EstimatedUnits,
		Cost:         inv.EstimatedCost,
		Milestone:    inv.Role == models.RolePrimary,
		Detail:       truncate(task.Description, 200),
	})
	if err != nil {
		e.finishInvocation(st, inv, invocationStatusFor(err), err.Error())
		return models.ApprovalRequest{}, false
	}

	if apr.State == models.ApprovalPending {
		e.emitter.Emit(Event{
			Type: EventApprovalNeeded, WorkflowID: st.wf.ID,
			InvocationID: inv.ID, ApprovalID: apr.ID, WorkerID: inv.WorkerID,
		})
		if e.notifier != nil {
			go e.notifier.Notify(apr)
		}

		resolved, err := e.approvals.Wait(ctx, apr.ID)
		if err != nil {
			// Context cancelled while suspended on the approval.
			e.approvals.Cancel(apr.ID, "workflow cancelled")
			e.finishInvocation(st, inv, models.InvocationCancelled, "workflow cancelled")
			return models.ApprovalRequest{}, false
		}
		e.emitter.Emit(Event{
			Type: EventApprovalResolved, WorkflowID: st.wf.ID,
			InvocationID: inv.ID, ApprovalID: apr.ID,
			Message: string(resolved.State),
		})

		switch resolved.State {
		case models.ApprovalApproved:
			apr = resolved
		case models.ApprovalDenied:
			e.finishInvocation(st, inv, models.InvocationDenied, resolved.Reason)
			return models.ApprovalRequest{}, false
		default:
			e.finishInvocation(st, inv, models.InvocationExpired, "approval expired")
			return models.ApprovalRequest{}, false
		}
	}
	return apr, true
}

// attempt makes one provider call with the per-invocation execution timeout.
// A transport error, a timeout, or output rejected by validation all count
// as a failed attempt.
func (e *Engine) attempt(ctx context.Context, st *runState, task models.Task, inv *models.Invocation, cls models.Classification, prov models.Provider, number int) (models.Attempt, provider.Result, error) {
	attempt := models.Attempt{Number: number, ProviderID: prov.ID, StartedAt: time.Now()}

	backend, err := e.backends.Resolve(prov)
	if err != nil {
		attempt.FinishedAt = time.Now()
		attempt.Err = err.Error()
		e.providers.RecordFailure(prov.ID)
		return attempt, provider.Result{}, err
	}

	e.globalSem <- struct{}{}
	defer func() { <-e.globalSem }()

	timeout := e.timeouts.Execution
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := backend.Complete(callCtx, provider.Request{
		System: e.systemPrompt(inv, cls),
		Prompt: e.buildPrompt(task, inv, st.shared),
	})
	attempt.FinishedAt = time.Now()
	latency := attempt.FinishedAt.Sub(attempt.StartedAt)

	if err != nil {
		attempt.Err = err.Error()
		e.providers.RecordFailure(prov.ID)
		return attempt, provider.Result{}, err
	}

	if violations := runValidators(e.validators, result.Text); len(violations) > 0 {
		attempt.Err = "output rejected: " + strings.Join(violations, "; ")
		e.providers.RecordSuccess(prov.ID, latency, false)
		return attempt, provider.Result{}, fmt.Errorf("%s", attempt.Err)
	}

	e.providers.RecordSuccess(prov.ID, latency, true)
	return attempt, result, nil
}

// finalize computes the workflow's terminal status, aggregates output, and
// records the outcome.
func (e *Engine) finalize(ctx context.Context, st *runState) {
	st.mu.Lock()
	// Anything the stage loop never reached is cancelled.
	for _, inv := range st.wf.Invocations {
		if !inv.Status.Terminal() {
			inv.Status = models.InvocationCancelled
			inv.Error = "workflow did not reach this invocation"
			now := time.Now()
			inv.FinishedAt = &now
		}
	}

	primary := st.wf.Primary()
	status := models.WorkflowFailed
	reason := ""
	output := ""
	var violations []string

	switch {
	case ctx.Err() != nil:
		status = models.WorkflowCancelled
		reason = "workflow cancelled"
	case primary == nil:
		reason = "no primary invocation planned"
	case primary.Status == models.InvocationSucceeded:
		output = e.aggregateLocked(st.wf)
		violations = runValidators(e.validators, output)
		switch {
		case len(violations) > 0:
			status = models.WorkflowFailed
			reason = "aggregated output failed validation"
		case anySupportingFailedLocked(st.wf):
			status = models.WorkflowPartiallyCompleted
		default:
			status = models.WorkflowCompleted
		}
	case primary.Status == models.InvocationDenied:
		status = models.WorkflowCancelled
		reason = fmt.Sprintf("approval denied for invocation %s: %s", primary.ID, primary.Error)
	case primary.Status == models.InvocationExpired:
		status = models.WorkflowFailed
		reason = fmt.Sprintf("approval expired for invocation %s", primary.ID)
	case primary.Status == models.InvocationCancelled:
		status = models.WorkflowCancelled
		reason = "workflow cancelled"
	default:
		reason = fmt.Sprintf("invocation %s failed: %s", primary.ID, primary.Error)
	}

	subjectID := st.wf.SubjectID
	workflowID := st.wf.ID
	st.mu.Unlock()

	// Record the terminal state before it becomes observable.
	e.journal.Append(models.LedgerEntry{
		Kind:       models.LedgerWorkflowFinished,
		SubjectID:  subjectID,
		WorkflowID: workflowID,
		Detail:     string(status) + ": " + reason,
	})
	e.journal.UpdateWorkflowStatus(workflowID, string(status))

	now := time.Now()
	st.mu.Lock()
	st.wf.Status = status
	st.wf.FailureReason = reason
	st.wf.Violations = violations
	st.wf.FinishedAt = &now
	if status == models.WorkflowCompleted || status == models.WorkflowPartiallyCompleted {
		st.wf.Output = output
	}
	st.mu.Unlock()

	if len(violations) > 0 {
		e.emitter.Emit(Event{
			Type: EventValidationFailed, WorkflowID: workflowID,
			Message: strings.Join(violations, "; "),
			Err:     models.ValidationFailed(strings.Join(violations, "; ")),
		})
	}
	debugLog("workflow %s: finished %s %s", workflowID, status, reason)
	e.emitter.Emit(Event{Type: EventWorkflowFinished, WorkflowID: workflowID, Message: string(status)})
}

// aggregateLocked builds the workflow output. Must be called with st.mu held.
func (e *Engine) aggregateLocked(wf *models.Workflow) string {
	switch wf.Classification.Mode {
	case models.ModeSequential:
		// The last successful stage's output is the refined result.
		out := ""
		for _, inv := range wf.Invocations {
			if inv.Status == models.InvocationSucceeded {
				out = inv.Output
			}
		}
		return out
	case models.ModeParallel:
		// Deterministic aggregation: successful outputs in plan order.
		var parts []string
		for _, inv := range wf.Invocations {
			if inv.Status == models.InvocationSucceeded {
				parts = append(parts, inv.Output)
			}
		}
		return strings.Join(parts, "\n\n")
	default:
		if p := wf.Primary(); p != nil {
			return p.Output
		}
		return ""
	}
}

func anySupportingFailedLocked(wf *models.Workflow) bool {
	for _, inv := range wf.Invocations {
		if inv.Role == models.RoleSupporting && inv.Status != models.InvocationSucceeded {
			return true
		}
	}
	return false
}

// finishInvocation records the terminal state in the ledger, then applies it.
func (e *Engine) finishInvocation(st *runState, inv *models.Invocation, status models.InvocationStatus, errMsg string) {
	e.appendInvocation(models.LedgerInvocationFinished, st, inv, string(status)+": "+errMsg)

	now := time.Now()
	st.mu.Lock()
	inv.Status = status
	if errMsg != "" {
		inv.Error = errMsg
	}
	inv.FinishedAt = &now
	units, cost, providerID := inv.Units, inv.Cost, inv.ProviderID
	st.mu.Unlock()

	var evErr error
	if errMsg != "" {
		evErr = errors.New(errMsg)
	}
	e.emitter.Emit(Event{
		Type: EventInvocationFinished, WorkflowID: st.wf.ID,
		InvocationID: inv.ID, WorkerID: inv.WorkerID, ProviderID: providerID,
		Message: string(status), Err: evErr, Units: units, Cost: cost,
	})
}

// voidApproval finalizes an approved request that will never execute,
// releasing its reservation with a zero charge.
func (e *Engine) voidApproval(approvalID string) {
	e.approvals.Consume(approvalID, 0, 0)
}

func (e *Engine) appendInvocation(kind models.LedgerEventKind, st *runState, inv *models.Invocation, detail string) error {
	st.mu.Lock()
	subjectID := st.wf.SubjectID
	st.mu.Unlock()

	_, err := e.journal.Append(models.LedgerEntry{
		Kind:         kind,
		SubjectID:    subjectID,
		WorkflowID:   inv.WorkflowID,
		InvocationID: inv.ID,
		Detail:       detail,
	})
	return err
}

// systemPrompt frames the worker's role for the provider call.
func (e *Engine) systemPrompt(inv *models.Invocation, cls models.Classification) string {
	name := inv.WorkerID
	if w, ok := e.workers.Get(inv.WorkerID); ok && w.Name != "" {
		name = w.Name
	}
	return fmt.Sprintf(
		"You are %s, a professional writing assistant specializing in %s work. Produce %s content directly, without preamble.",
		name, cls.Domain, cls.ContentType)
}

// buildPrompt assembles the instruction, including any dependency outputs
// from the shared context.
func (e *Engine) buildPrompt(task models.Task, inv *models.Invocation, shared *SharedContext) string {
	var b strings.Builder
	b.WriteString(task.Description)

	if deps := shared.Gather(inv.DependsOn); len(deps) > 0 {
		b.WriteString("\n\nPrior work to build on:\n\n")
		b.WriteString(strings.Join(deps, "\n\n---\n\n"))
	}
	if inv.Role == models.RoleSupporting && len(inv.DependsOn) > 0 {
		b.WriteString("\n\nRefine and improve the prior work above.")
	}
	return b.String()
}

// invocationStatusFor maps an authorization error to the invocation's
// terminal state.
func invocationStatusFor(err error) models.InvocationStatus {
	switch models.CodeOf(err) {
	case models.CodeApprovalDenied, models.CodeQuotaExceeded:
		return models.InvocationDenied
	case models.CodeCancelled:
		return models.InvocationCancelled
	default:
		return models.InvocationFailed
	}
}

func attemptOutcome(a models.Attempt) string {
	if a.Err == "" {
		return "ok"
	}
	return a.Err
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
