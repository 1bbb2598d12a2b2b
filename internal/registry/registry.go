// Package registry provides the capability registry of workers and providers.
// Declarations are immutable value records; all mutable runtime state
// (rolling scores, load counters, breaker state) lives here behind narrow
// read/write methods.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quillworks/quill/pkg/models"
)

// perfAlpha is the smoothing factor for the exponentially weighted
// performance score. Higher values react faster to recent outcomes.
const perfAlpha = 0.3

// defaultPerformance is the starting score for a newly registered worker.
const defaultPerformance = 0.5

// workerState holds a worker declaration plus its runtime counters.
type workerState struct {
	decl models.Worker
	// performance is the rolling domain performance score in [0,1],
	// keyed by domain tag. Unseen domains use the overall score.
	performance map[string]float64
	// overall is the rolling performance across all domains.
	overall float64
	// load is the current number of in-flight invocations.
	load int
}

// WorkerRegistry tracks registered workers. Workers may be added or removed
// at runtime; removal never affects invocations already bound to the worker,
// because invocations carry their own copy of the declaration.
type WorkerRegistry struct {
	workers map[string]*workerState
	mu      sync.RWMutex
}

// NewWorkerRegistry creates an empty worker registry.
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{
		workers: make(map[string]*workerState),
	}
}

// Register adds or replaces a worker declaration. Runtime counters carry
// over when the worker was already registered.
func (r *WorkerRegistry) Register(w models.Worker) error {
	if w.ID == "" {
		return fmt.Errorf("worker ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.workers[w.ID]; ok {
		existing.decl = w
		return nil
	}
	r.workers[w.ID] = &workerState{
		decl:        w,
		performance: make(map[string]float64),
		overall:     defaultPerformance,
	}
	return nil
}

// Unregister removes a worker. In-flight invocations bound to it are
// unaffected; the worker simply stops being selectable.
func (r *WorkerRegistry) Unregister(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, workerID)
}

// Get returns the declaration for a worker, with ok=false if unknown.
func (r *WorkerRegistry) Get(workerID string) (models.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.workers[workerID]
	if !ok {
		return models.Worker{}, false
	}
	return st.decl, true
}

// All returns all registered worker declarations, sorted by ID for
// deterministic iteration.
func (r *WorkerRegistry) All() []models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Worker, 0, len(r.workers))
	for _, st := range r.workers {
		out = append(out, st.decl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered workers.
func (r *WorkerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Load returns the current in-flight load of a worker.
func (r *WorkerRegistry) Load(workerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if st, ok := r.workers[workerID]; ok {
		return st.load
	}
	return 0
}

// AcquireSlot atomically increments a worker's in-flight load counter.
// Unknown workers are a no-op: the invocation already carries its binding.
func (r *WorkerRegistry) AcquireSlot(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.workers[workerID]; ok {
		st.load++
	}
}

// ReleaseSlot atomically decrements a worker's in-flight load counter.
func (r *WorkerRegistry) ReleaseSlot(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.workers[workerID]; ok && st.load > 0 {
		st.load--
	}
}

// Performance returns the rolling performance score for a worker in a
// domain. Falls back to the worker's overall score for unseen domains.
func (r *WorkerRegistry) Performance(workerID, domain string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.workers[workerID]
	if !ok {
		return 0
	}
	if score, ok := st.performance[domain]; ok {
		return score
	}
	return st.overall
}

// RecordOutcome folds a finished invocation's outcome into the worker's
// rolling scores. outcome is 1 for success, 0 for failure.
func (r *WorkerRegistry) RecordOutcome(workerID, domain string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.workers[workerID]
	if !ok {
		return
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}

	prev, seen := st.performance[domain]
	if !seen {
		prev = st.overall
	}
	st.performance[domain] = prev + perfAlpha*(outcome-prev)
	st.overall = st.overall + perfAlpha*(outcome-st.overall)
}
