package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quillworks/quill/pkg/models"
)

// scoreAlpha is the smoothing factor for the provider's rolling scores.
const scoreAlpha = 0.2

// ProviderHealth is a snapshot of a provider's rolling scores and breaker
// state, consumed by the router.
type ProviderHealth struct {
	// Quality is the historical acceptance rate in [0,1].
	Quality float64
	// LatencyMS is the rolling observed latency in milliseconds.
	LatencyMS float64
	// ErrorRate is the rolling recent error rate in [0,1].
	ErrorRate float64
	// Circuit is the current breaker state.
	Circuit models.CircuitState
}

// Reliability returns 1 minus the recent error rate.
func (h ProviderHealth) Reliability() float64 {
	return 1 - h.ErrorRate
}

// providerState holds a provider declaration plus runtime health.
type providerState struct {
	decl      models.Provider
	quality   float64
	latencyMS float64
	errorRate float64
	breaker   *Breaker
}

// ProviderRegistry tracks registered providers with their rolling health
// scores and circuit breakers.
type ProviderRegistry struct {
	providers map[string]*providerState
	// failureThreshold and cooldown configure breakers for new providers.
	failureThreshold int
	cooldown         time.Duration
	mu               sync.RWMutex
}

// NewProviderRegistry creates an empty provider registry. failureThreshold
// consecutive failures open a provider's circuit; cooldown is the open
// period before the circuit half-opens.
func NewProviderRegistry(failureThreshold int, cooldown time.Duration) *ProviderRegistry {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &ProviderRegistry{
		providers:        make(map[string]*providerState),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

// Register adds or replaces a provider declaration. Health carries over
// when the provider was already registered.
func (r *ProviderRegistry) Register(p models.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.providers[p.ID]; ok {
		existing.decl = p
		return nil
	}
	r.providers[p.ID] = &providerState{
		decl:      p,
		quality:   0.5,
		latencyMS: 1000,
		errorRate: 0,
		breaker:   NewBreaker(r.failureThreshold, r.cooldown),
	}
	return nil
}

// Unregister removes a provider from routing.
func (r *ProviderRegistry) Unregister(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, providerID)
}

// Get returns the declaration for a provider, with ok=false if unknown.
func (r *ProviderRegistry) Get(providerID string) (models.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.providers[providerID]
	if !ok {
		return models.Provider{}, false
	}
	return st.decl, true
}

// All returns all registered provider declarations, sorted by ID.
func (r *ProviderRegistry) All() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Provider, 0, len(r.providers))
	for _, st := range r.providers {
		out = append(out, st.decl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Health returns a snapshot of a provider's rolling scores and breaker state.
func (r *ProviderRegistry) Health(providerID string) (ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.providers[providerID]
	if !ok {
		return ProviderHealth{}, false
	}
	return ProviderHealth{
		Quality:   st.quality,
		LatencyMS: st.latencyMS,
		ErrorRate: st.errorRate,
		Circuit:   st.breaker.State(),
	}, true
}

// RecordSuccess folds a successful call into the provider's health and
// closes the breaker probe if one was in flight.
func (r *ProviderRegistry) RecordSuccess(providerID string, latency time.Duration, accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.providers[providerID]
	if !ok {
		return
	}

	acceptedScore := 0.0
	if accepted {
		acceptedScore = 1.0
	}
	st.quality += scoreAlpha * (acceptedScore - st.quality)
	st.latencyMS += scoreAlpha * (float64(latency.Milliseconds()) - st.latencyMS)
	st.errorRate += scoreAlpha * (0 - st.errorRate)
	st.breaker.RecordSuccess()
}

// RecordFailure folds a failed call into the provider's health; enough
// consecutive failures open the circuit.
func (r *ProviderRegistry) RecordFailure(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.providers[providerID]
	if !ok {
		return
	}
	st.errorRate += scoreAlpha * (1 - st.errorRate)
	st.breaker.RecordFailure()
}

// SetCircuit forces a provider's breaker state. Intended for tests and
// operational overrides.
func (r *ProviderRegistry) SetCircuit(providerID string, state models.CircuitState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.providers[providerID]; ok {
		st.breaker.force(state)
	}
}
