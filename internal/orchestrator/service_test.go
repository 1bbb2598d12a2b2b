package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/quillworks/quill/internal/classifier"
	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/ledger"
	"github.com/quillworks/quill/internal/permission"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/internal/registry"
	"github.com/quillworks/quill/internal/router"
	"github.com/quillworks/quill/internal/selector"
	"github.com/quillworks/quill/pkg/models"
)

const goodOutput = "Here is a thorough, well-structured draft that covers every requested point in detail."

// fakeBackend answers completions with a scripted function.
type fakeBackend struct {
	fn    func(ctx context.Context, req provider.Request) (provider.Result, error)
	calls atomic.Int64
}

func (f *fakeBackend) Complete(ctx context.Context, req provider.Request) (provider.Result, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return provider.Result{Text: goodOutput, InputTokens: 100, OutputTokens: 200}, nil
}

// fakeResolver maps provider IDs to fake backends.
type fakeResolver struct {
	backends map[string]*fakeBackend
}

func (r *fakeResolver) Resolve(p models.Provider) (provider.Backend, error) {
	b, ok := r.backends[p.ID]
	if !ok {
		return nil, fmt.Errorf("no backend for provider %s", p.ID)
	}
	return b, nil
}

func (r *fakeResolver) totalCalls() int64 {
	var n int64
	for _, b := range r.backends {
		n += b.calls.Load()
	}
	return n
}

type env struct {
	service   *Service
	journal   *ledger.Memory
	approvals *permission.Manager
	workers   *registry.WorkerRegistry
	providers *registry.ProviderRegistry
	resolver  *fakeResolver
	emitter   *Emitter
}

// newEnv builds a full execution core with fake provider backends.
func newEnv(t *testing.T, grant models.PermissionGrant) *env {
	t.Helper()
	mem := ledger.NewMemory()
	return newEnvWithJournal(t, grant, mem, mem)
}

// newEnvWithJournal lets a test interpose on the journal the core writes to,
// while mem stays available for inspection.
func newEnvWithJournal(t *testing.T, grant models.PermissionGrant, journal ledger.Ledger, mem *ledger.Memory) *env {
	t.Helper()
	cfg := config.Default()
	cfg.Timeouts.Execution = 2 * time.Second

	workers := registry.NewWorkerRegistry()
	for _, w := range []models.Worker{
		{ID: "legal-writer", Name: "Legal Writer", Capabilities: []string{"legal", "draft", "review"}},
		{ID: "prose-editor", Name: "Prose Editor", Capabilities: []string{"editing", "grammar"}},
		{ID: "researcher", Name: "Researcher", Capabilities: []string{"research", "general"}},
	} {
		if err := workers.Register(w); err != nil {
			t.Fatalf("register worker: %v", err)
		}
	}

	providers := registry.NewProviderRegistry(cfg.Router.BreakerFailureThreshold, cfg.Router.BreakerCooldown)
	resolver := &fakeResolver{backends: make(map[string]*fakeBackend)}
	for _, p := range []models.Provider{
		{ID: "alpha", Name: "Alpha", Model: "model-a", CostPerKTokensIn: 0.003, CostPerKTokensOut: 0.015},
		{ID: "beta", Name: "Beta", Model: "model-b", CostPerKTokensIn: 0.003, CostPerKTokensOut: 0.015},
	} {
		if err := providers.Register(p); err != nil {
			t.Fatalf("register provider: %v", err)
		}
		resolver.backends[p.ID] = &fakeBackend{}
	}

	grants := permission.NewGrantStore()
	if err := grants.Put(grant); err != nil {
		t.Fatalf("put grant: %v", err)
	}
	approvals := permission.NewManager(grants, permission.NewAccountant(journal), journal, cfg.Timeouts.Approval)

	rt := router.New(providers, cfg.Router)
	emitter := NewEmitter(256)
	validators := []Validator{MinLengthValidator{MinChars: cfg.Validation.MinOutputChars}, RefusalValidator{}}

	engine := NewEngine(EngineDeps{
		Workers:    workers,
		Providers:  providers,
		Router:     rt,
		Approvals:  approvals,
		Journal:    journal,
		Emitter:    emitter,
		Backends:   resolver,
		Validators: validators,
		Limits:     cfg.Limits,
		Timeouts:   cfg.Timeouts,
	})

	cls := classifier.New(nil, cfg.Classifier)
	sel := selector.New(workers, cfg.Selector)
	service := NewService(cls, sel, rt, approvals, engine, journal, emitter)

	return &env{
		service:   service,
		journal:   mem,
		approvals: approvals,
		workers:   workers,
		providers: providers,
		resolver:  resolver,
		emitter:   emitter,
	}
}

func openGrant() models.PermissionGrant {
	return models.PermissionGrant{
		ID: "grant-open", Version: 1, SubjectID: "*", WorkerID: "*",
		Capabilities: []string{"*"},
		Policy:       models.ApprovalPolicy{Kind: models.PolicyNever},
	}
}

func waitDone(t *testing.T, e *env, workflowID string) models.Workflow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wf, err := e.service.WaitForWorkflow(ctx, workflowID)
	if err != nil {
		t.Fatalf("wait for workflow: %v", err)
	}
	return wf
}

func TestSubmitTask_SingleModeCompletes(t *testing.T) {
	e := newEnv(t, openGrant())

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a short poem about the sea",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowCompleted {
		t.Fatalf("expected completed, got %s (%s)", wf.Status, wf.FailureReason)
	}
	if wf.Output != goodOutput {
		t.Errorf("unexpected output: %q", wf.Output)
	}
	primary := wf.Primary()
	if primary == nil || primary.Status != models.InvocationSucceeded {
		t.Fatalf("expected succeeded primary, got %+v", primary)
	}
	if primary.Units != 300 {
		t.Errorf("expected 300 units consumed, got %d", primary.Units)
	}
}

func TestSubmitTask_RejectsInvalidInput(t *testing.T) {
	e := newEnv(t, openGrant())

	_, err := e.service.SubmitTask(context.Background(), models.Task{SubjectID: "alice"})
	if models.CodeOf(err) != models.CodeInvalidInput {
		t.Errorf("expected invalid_input for empty description, got %v", err)
	}

	_, err = e.service.SubmitTask(context.Background(), models.Task{Description: "write something"})
	if models.CodeOf(err) != models.CodeInvalidInput {
		t.Errorf("expected invalid_input for missing subject, got %v", err)
	}
}

func TestSubmitTask_IdempotentPerExternalID(t *testing.T) {
	e := newEnv(t, openGrant())

	task := models.Task{
		ExternalID:  "ext-42",
		SubjectID:   "alice",
		Description: "Write a product description for the new notebook",
	}
	first, err := e.service.SubmitTask(context.Background(), task)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := e.service.SubmitTask(context.Background(), task)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first != second {
		t.Errorf("expected same workflow ID, got %s and %s", first, second)
	}

	created := 0
	for _, entry := range e.journal.Entries() {
		if entry.Kind == models.LedgerWorkflowCreated {
			created++
		}
	}
	if created != 1 {
		t.Errorf("expected 1 workflow created, got %d", created)
	}
}

func TestSubmitTask_QuotaExceededBeforeAnyProviderCall(t *testing.T) {
	grant := openGrant()
	grant.Quotas.MaxCostPerInvocation = 1.00
	e := newEnv(t, grant)

	// Expensive providers make an expert-complexity estimate cost $1.20.
	e.providers.Register(models.Provider{
		ID: "alpha", Name: "Alpha", Model: "model-a", CostPerKTokensIn: 0.24, CostPerKTokensOut: 0.24,
	})
	e.providers.Register(models.Provider{
		ID: "beta", Name: "Beta", Model: "model-b", CostPerKTokensIn: 0.24, CostPerKTokensOut: 0.24,
	})

	_, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Draft a software licensing contract with indemnification clauses",
	})
	if models.CodeOf(err) != models.CodeQuotaExceeded {
		t.Fatalf("expected quota_exceeded, got %v", err)
	}
	if calls := e.resolver.totalCalls(); calls != 0 {
		t.Errorf("expected no provider calls, got %d", calls)
	}
	if n := len(e.journal.Entries()); n != 0 {
		t.Errorf("expected no ledger entries, got %d", n)
	}
}

func TestSubmitTask_NoQualifiedWorker(t *testing.T) {
	e := newEnv(t, openGrant())
	// Empty the worker pool.
	for _, w := range e.workers.All() {
		e.workers.Unregister(w.ID)
	}

	_, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a memo",
	})
	if models.CodeOf(err) != models.CodeNoQualifiedWorker {
		t.Errorf("expected no_qualified_worker, got %v", err)
	}
}

func TestProviderFallback_TwoAttemptsDistinctProviders(t *testing.T) {
	e := newEnv(t, openGrant())
	// alpha fails transiently, beta succeeds.
	e.resolver.backends["alpha"].fn = func(ctx context.Context, req provider.Request) (provider.Result, error) {
		return provider.Result{}, fmt.Errorf("upstream overloaded")
	}

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write release notes for version two",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowCompleted {
		t.Fatalf("expected completed via fallback, got %s (%s)", wf.Status, wf.FailureReason)
	}

	primary := wf.Primary()
	if len(primary.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(primary.Attempts))
	}
	if primary.Attempts[0].ProviderID == primary.Attempts[1].ProviderID {
		t.Error("expected distinct providers across attempts")
	}
	if primary.Attempts[0].Err == "" {
		t.Error("expected first attempt to record its failure")
	}
	if primary.Attempts[1].Err != "" {
		t.Errorf("expected second attempt to succeed, got %q", primary.Attempts[1].Err)
	}
	if primary.Status != models.InvocationSucceeded {
		t.Errorf("expected a single successful terminal outcome, got %s", primary.Status)
	}
}

func TestProviderFallback_AllExhaustedFailsWorkflow(t *testing.T) {
	e := newEnv(t, openGrant())
	for _, b := range e.resolver.backends {
		b.fn = func(ctx context.Context, req provider.Request) (provider.Result, error) {
			return provider.Result{}, fmt.Errorf("upstream overloaded")
		}
	}

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a blog post about coffee",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowFailed {
		t.Fatalf("expected failed, got %s", wf.Status)
	}
	if wf.FailureReason == "" {
		t.Error("expected a structured failure reason")
	}
	if !strings.Contains(wf.FailureReason, wf.Primary().ID) {
		t.Errorf("expected reason to name the failing invocation, got %q", wf.FailureReason)
	}
}

func TestApprovalFlow_ApproveCompletes(t *testing.T) {
	grant := openGrant()
	grant.Policy = models.ApprovalPolicy{Kind: models.PolicyAlways}
	e := newEnv(t, grant)

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a welcome email for new customers",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case req := <-e.service.ApprovalRequests():
		if err := e.service.ResolveApproval(req.ID, true, "reviewer", ""); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no approval request surfaced")
	}

	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowCompleted {
		t.Errorf("expected completed after approval, got %s (%s)", wf.Status, wf.FailureReason)
	}
}

func TestApprovalFlow_DenyCancelsWorkflow(t *testing.T) {
	grant := openGrant()
	grant.Policy = models.ApprovalPolicy{Kind: models.PolicyAlways}
	e := newEnv(t, grant)

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write an announcement post",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case req := <-e.service.ApprovalRequests():
		if err := e.service.ResolveApproval(req.ID, false, "reviewer", "not now"); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no approval request surfaced")
	}

	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowCancelled {
		t.Errorf("expected cancelled after denial, got %s", wf.Status)
	}
	if wf.Primary().Status != models.InvocationDenied {
		t.Errorf("expected denied primary, got %s", wf.Primary().Status)
	}
	if calls := e.resolver.totalCalls(); calls != 0 {
		t.Errorf("expected no provider calls after denial, got %d", calls)
	}
}

func TestApprovalFlow_ExpiryFailsWorkflow(t *testing.T) {
	grant := openGrant()
	grant.Policy = models.ApprovalPolicy{Kind: models.PolicyAlways, Timeout: 30 * time.Millisecond}
	e := newEnv(t, grant)

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a press release",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowFailed {
		t.Fatalf("expected failed after approval expiry, got %s", wf.Status)
	}
	if wf.Primary().Status != models.InvocationExpired {
		t.Errorf("expected expired primary, got %s", wf.Primary().Status)
	}
	if !strings.Contains(wf.FailureReason, "approval expired") {
		t.Errorf("expected reason to name the expiry, got %q", wf.FailureReason)
	}
}

func TestCancelWorkflow_StopsPendingInvocations(t *testing.T) {
	e := newEnv(t, openGrant())
	started := make(chan struct{})
	for _, b := range e.resolver.backends {
		b.fn = func(ctx context.Context, req provider.Request) (provider.Result, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return provider.Result{}, ctx.Err()
		}
	}

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a long essay about rivers",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("execution never started")
	}

	if err := e.service.CancelWorkflow(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowCancelled {
		t.Fatalf("expected cancelled, got %s", wf.Status)
	}
	for _, inv := range wf.Invocations {
		if !inv.Status.Terminal() {
			t.Errorf("invocation %s left non-terminal: %s", inv.ID, inv.Status)
		}
	}

	callsAtCancel := e.resolver.totalCalls()
	time.Sleep(50 * time.Millisecond)
	if e.resolver.totalCalls() != callsAtCancel {
		t.Error("expected no further provider calls after cancellation")
	}

	// Cancelling a finished workflow is wrong_state.
	if err := e.service.CancelWorkflow(id); models.CodeOf(err) != models.CodeWrongState {
		t.Errorf("expected wrong_state, got %v", err)
	}
}

func TestParallelMode_AggregatesAndPartialCompletion(t *testing.T) {
	e := newEnv(t, openGrant())
	// Supporting invocations run against the same providers; sabotage only
	// calls framed for the researcher worker.
	for _, b := range e.resolver.backends {
		b.fn = func(ctx context.Context, req provider.Request) (provider.Result, error) {
			if strings.Contains(req.System, "Researcher") {
				return provider.Result{}, fmt.Errorf("upstream overloaded")
			}
			return provider.Result{Text: goodOutput, InputTokens: 100, OutputTokens: 200}, nil
		}
	}

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write multiple sections covering each part of the onboarding guide",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	wf := waitDone(t, e, id)
	if len(wf.Invocations) < 2 {
		t.Fatalf("expected a fan-out plan, got %d invocations", len(wf.Invocations))
	}
	if wf.Status != models.WorkflowPartiallyCompleted {
		t.Fatalf("expected partially_completed, got %s (%s)", wf.Status, wf.FailureReason)
	}
	if wf.Output == "" {
		t.Error("expected aggregate output from the successful invocations")
	}
}

func TestValidation_RejectedOutputFailsWorkflow(t *testing.T) {
	e := newEnv(t, openGrant())
	for _, b := range e.resolver.backends {
		b.fn = func(ctx context.Context, req provider.Request) (provider.Result, error) {
			return provider.Result{Text: "too short", InputTokens: 10, OutputTokens: 5}, nil
		}
	}

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write the quarterly summary",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowFailed {
		t.Fatalf("expected failed on rejected output, got %s", wf.Status)
	}
	primary := wf.Primary()
	// Low-quality output triggers the fallback path before failing.
	if len(primary.Attempts) < 2 {
		t.Errorf("expected retries on rejected output, got %d attempts", len(primary.Attempts))
	}
	for _, a := range primary.Attempts {
		if !strings.Contains(a.Err, "output rejected") {
			t.Errorf("expected rejection recorded on attempt, got %q", a.Err)
		}
	}
}

func TestLedgerOrdering_PerInvocation(t *testing.T) {
	e := newEnv(t, openGrant())

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a haiku about autumn",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	wf := waitDone(t, e, id)
	primary := wf.Primary()

	entries, err := e.journal.ByInvocation(primary.ID)
	if err != nil {
		t.Fatalf("by invocation: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected ledger entries for the invocation")
	}
	if entries[0].Kind != models.LedgerApprovalCreated {
		t.Errorf("expected approval_created first, got %s", entries[0].Kind)
	}

	position := func(kind models.LedgerEventKind) int {
		for i, e := range entries {
			if e.Kind == kind {
				return i
			}
		}
		return -1
	}
	approved := position(models.LedgerApprovalApproved)
	executing := position(models.LedgerInvocationExecuting)
	finished := position(models.LedgerInvocationFinished)
	if approved == -1 || executing == -1 || finished == -1 {
		t.Fatalf("missing lifecycle entries: %v", entries)
	}
	if !(approved < executing && executing < finished) {
		t.Errorf("expected approved < executing < finished, got %d/%d/%d", approved, executing, finished)
	}
}

func TestGetWorkflowStatus_NotFound(t *testing.T) {
	e := newEnv(t, openGrant())
	if _, err := e.service.GetWorkflowStatus("missing"); models.CodeOf(err) != models.CodeNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
	if err := e.service.CancelWorkflow("missing"); models.CodeOf(err) != models.CodeNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
	if err := e.service.ResolveApproval("missing", true, "x", ""); models.CodeOf(err) != models.CodeNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}

// droppyJournal fails attempt records while passing everything else through.
type droppyJournal struct {
	ledger.Ledger
}

func (d *droppyJournal) Append(e models.LedgerEntry) (models.LedgerEntry, error) {
	if e.Kind == models.LedgerInvocationAttempt {
		return models.LedgerEntry{}, fmt.Errorf("journal unavailable")
	}
	return d.Ledger.Append(e)
}

func TestAttemptRecordFailure_LoggedNotFatal(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := NewDebugLogger(logPath)
	if err != nil {
		t.Fatalf("new debug logger: %v", err)
	}
	SetDebugLogger(logger)
	defer SetDebugLogger(nil)
	defer logger.Close()

	mem := ledger.NewMemory()
	e := newEnvWithJournal(t, openGrant(), &droppyJournal{Ledger: mem}, mem)

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a short poem about the sea",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// A failed attempt record must not fail the invocation itself.
	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowCompleted {
		t.Fatalf("expected completed, got %s (%s)", wf.Status, wf.FailureReason)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read debug log: %v", err)
	}
	if !strings.Contains(string(data), "attempt record not written") {
		t.Error("expected the dropped attempt record to be logged")
	}
}

func TestEvents_CarryErrorOnFailedInvocation(t *testing.T) {
	e := newEnv(t, openGrant())
	for _, b := range e.resolver.backends {
		b.fn = func(ctx context.Context, req provider.Request) (provider.Result, error) {
			return provider.Result{}, fmt.Errorf("backend down")
		}
	}

	id, err := e.service.SubmitTask(context.Background(), models.Task{
		SubjectID:   "alice",
		Description: "Write a short poem about the sea",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	wf := waitDone(t, e, id)
	if wf.Status != models.WorkflowFailed {
		t.Fatalf("expected failed, got %s", wf.Status)
	}

	var sawErr bool
drain:
	for {
		select {
		case ev := <-e.service.Events():
			if ev.Type == EventInvocationFinished && ev.Err != nil {
				sawErr = true
			}
		default:
			break drain
		}
	}
	if !sawErr {
		t.Error("expected a finished event carrying the invocation error")
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	cases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"within limit untouched", "hello", 10, "hello"},
		{"ascii cut", "hello world", 5, "hello..."},
		{"multibyte rune not split", "héllo", 2, "h..."},
		{"cut lands on rune start", "héllo", 3, "hé..."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.in, tc.n)
			if got != tc.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}
