// Package selector picks workers for a classified task from the worker
// registry.
package selector

import (
	"fmt"
	"sort"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/registry"
	"github.com/quillworks/quill/pkg/models"
)

// Selection is the outcome of worker selection: one primary worker plus any
// supporting workers implied by the collaboration mode.
type Selection struct {
	Primary    models.Worker
	Supporting []models.Worker
	// Scores holds the selection score of every considered worker, keyed by
	// worker ID. Useful for audit output.
	Scores map[string]float64
}

// Selector scores registry workers against a classification.
type Selector struct {
	registry *registry.WorkerRegistry
	cfg      config.SelectorConfig
}

// New creates a Selector.
func New(reg *registry.WorkerRegistry, cfg config.SelectorConfig) *Selector {
	return &Selector{registry: reg, cfg: cfg}
}

type candidate struct {
	worker models.Worker
	score  float64
	load   int
}

// Select picks the primary worker and, depending on the collaboration mode,
// supporting workers. A classification no registered worker can serve above
// the minimum score yields a no_qualified_worker error, never a weak match.
func (s *Selector) Select(cls models.Classification) (Selection, error) {
	candidates := s.rank(cls)
	if len(candidates) == 0 {
		return Selection{}, models.NoQualifiedWorker(fmt.Sprintf(
			"no worker qualifies for %s/%s work in domain %q (minimum score %.2f)",
			cls.ContentType, cls.Complexity, cls.Domain, s.cfg.MinScore))
	}

	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		scores[c.worker.ID] = c.score
	}

	sel := Selection{Primary: candidates[0].worker, Scores: scores}

	switch cls.Mode {
	case models.ModeParallel, models.ModeCollaborative:
		sel.Supporting = s.fanOut(candidates)
	case models.ModeSequential:
		// A sequential pipeline wants a second pair of hands for the
		// follow-up stage when one is available.
		for _, c := range candidates[1:] {
			sel.Supporting = append(sel.Supporting, c.worker)
			break
		}
	}
	return sel, nil
}

// rank scores every eligible worker and orders them best-first. Ties break
// by lowest current load, then by worker ID.
func (s *Selector) rank(cls models.Classification) []candidate {
	var candidates []candidate
	for _, w := range s.registry.All() {
		if !eligible(w, cls) {
			continue
		}
		load := s.registry.Load(w.ID)
		score := s.cfg.CapabilityWeight*capabilityOverlap(w, cls) +
			s.cfg.PerformanceWeight*s.registry.Performance(w.ID, cls.Domain) +
			s.cfg.LoadWeight*(1.0/float64(1+load))
		if score < s.cfg.MinScore {
			continue
		}
		candidates = append(candidates, candidate{worker: w, score: score, load: load})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].load != candidates[j].load {
			return candidates[i].load < candidates[j].load
		}
		return candidates[i].worker.ID < candidates[j].worker.ID
	})
	return candidates
}

// fanOut picks supporting workers for parallel execution: top scorers whose
// capability sets are non-redundant with everything already selected, so the
// fan-out widens coverage instead of duplicating expertise.
func (s *Selector) fanOut(candidates []candidate) []models.Worker {
	max := s.cfg.MaxParallelWorkers
	if max < 1 {
		max = 1
	}

	selected := []models.Worker{candidates[0].worker}
	var supporting []models.Worker
	for _, c := range candidates[1:] {
		if len(selected) >= max {
			break
		}
		redundant := false
		for _, picked := range selected {
			if jaccard(c.worker.Capabilities, picked.Capabilities) >= s.cfg.MaxJaccard {
				redundant = true
				break
			}
		}
		if redundant {
			continue
		}
		selected = append(selected, c.worker)
		supporting = append(supporting, c.worker)
	}
	return supporting
}

// eligible reports whether a worker can serve the classification at all:
// it must support the content type and its complexity ceiling must cover
// the task.
func eligible(w models.Worker, cls models.Classification) bool {
	if !w.SupportsContentType(cls.ContentType) {
		return false
	}
	if w.MaxComplexity != "" && w.MaxComplexity.Rank() < cls.Complexity.Rank() {
		return false
	}
	return true
}

// capabilityOverlap measures how much of the classification's tag set the
// worker's capabilities cover. The domain tag and the content type each
// count for half; a wildcard capability covers everything.
func capabilityOverlap(w models.Worker, cls models.Classification) float64 {
	if w.HasCapability("*") {
		return 1.0
	}
	overlap := 0.0
	if cls.Domain != "" && w.HasCapability(cls.Domain) {
		overlap += 0.5
	}
	if w.HasCapability(string(cls.ContentType)) {
		overlap += 0.5
	}
	return overlap
}

// jaccard computes set similarity between two capability lists.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	set := make(map[string]bool, len(a))
	for _, tag := range a {
		set[tag] = true
	}
	intersection := 0
	union := len(set)
	for _, tag := range b {
		if set[tag] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
