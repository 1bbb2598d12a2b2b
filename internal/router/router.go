// Package router orders providers for an invocation by score, producing a
// primary plus fallback list.
package router

import (
	"fmt"
	"sort"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/registry"
	"github.com/quillworks/quill/pkg/models"
)

// InvocationSpec describes the work a provider is being routed for.
type InvocationSpec struct {
	// ContentType filters providers to those supporting the work.
	ContentType models.ContentType
	// EstimatedUnits sizes the cost term of the score.
	EstimatedUnits int64
}

// Router scores registered providers and returns them best-first. The
// orchestrator walks the list on failure instead of asking again.
type Router struct {
	registry *registry.ProviderRegistry
	cfg      config.RouterConfig
}

// New creates a Router.
func New(reg *registry.ProviderRegistry, cfg config.RouterConfig) *Router {
	return &Router{registry: reg, cfg: cfg}
}

type scored struct {
	provider models.Provider
	score    float64
	halfOpen bool
}

// Route returns the ordered provider list for a spec: closed-circuit
// providers ranked by score, then half-open providers ranked by score.
// Open-circuit providers never appear. An empty result is an error, not an
// empty list.
func (r *Router) Route(spec InvocationSpec) ([]models.Provider, error) {
	var candidates []scored
	for _, p := range r.registry.All() {
		if !p.Supports(spec.ContentType) {
			continue
		}
		health, ok := r.registry.Health(p.ID)
		if !ok || health.Circuit == models.CircuitOpen {
			continue
		}
		candidates = append(candidates, scored{
			provider: p,
			score:    r.score(p, health, spec),
			halfOpen: health.Circuit == models.CircuitHalfOpen,
		})
	}
	if len(candidates) == 0 {
		return nil, models.ProviderUnavailable(fmt.Sprintf(
			"no provider available for %s work", spec.ContentType), nil)
	}

	// Half-open providers rank strictly after every closed one, so recovery
	// traffic only flows when nothing healthy remains ahead of them.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].halfOpen != candidates[j].halfOpen {
			return !candidates[i].halfOpen
		}
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].provider.ID < candidates[j].provider.ID
	})

	out := make([]models.Provider, len(candidates))
	for i, c := range candidates {
		out[i] = c.provider
	}
	return out, nil
}

// score combines quality, inverse cost, inverse latency, and reliability
// with the configured weights. Cost and latency are squashed into (0,1] so
// no single term can dominate on raw magnitude.
func (r *Router) score(p models.Provider, health registry.ProviderHealth, spec InvocationSpec) float64 {
	units := spec.EstimatedUnits
	if units <= 0 {
		units = 1000
	}
	// Rough split: input and output each take half the estimated units.
	cost := p.Cost(units/2, units/2)

	costScore := 1.0 / (1.0 + cost*100)
	latencyScore := 1.0 / (1.0 + health.LatencyMS/1000.0)

	return r.cfg.QualityWeight*health.Quality +
		r.cfg.CostWeight*costScore +
		r.cfg.LatencyWeight*latencyScore +
		r.cfg.ReliabilityWeight*health.Reliability()
}
