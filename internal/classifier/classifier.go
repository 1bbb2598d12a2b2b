// Package classifier analyzes incoming writing tasks into structured
// classifications used for worker selection.
package classifier

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/pkg/models"
)

// Backend produces one classification sample for a task, typically by
// querying a language model.
type Backend interface {
	Sample(ctx context.Context, task models.Task) (models.Classification, error)
}

// Classifier turns tasks into classifications. Results are cached per task
// ID for the task's lifetime, so repeated lookups are deterministic.
//
// Model non-determinism is bounded by sampling: when a single sample's
// confidence falls below the vote threshold, additional samples are drawn
// and the majority classification wins. A result below the human threshold
// is a terminal low-confidence outcome, not a weak guess.
type Classifier struct {
	backend  Backend
	fallback *KeywordClassifier
	cfg      config.ClassifierConfig

	cache map[string]models.Classification
	mu    sync.Mutex
}

// New creates a Classifier. backend may be nil, in which case every task is
// classified by keyword rules.
func New(backend Backend, cfg config.ClassifierConfig) *Classifier {
	if cfg.MaxSamples < 1 {
		cfg.MaxSamples = 1
	}
	return &Classifier{
		backend:  backend,
		fallback: NewKeywordClassifier(),
		cfg:      cfg,
		cache:    make(map[string]models.Classification),
	}
}

// Classify produces the classification for a task. The first call for a
// task ID computes it; later calls return the cached result.
func (c *Classifier) Classify(ctx context.Context, task models.Task) (models.Classification, error) {
	c.mu.Lock()
	if cached, ok := c.cache[task.ID]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	result, err := c.classify(ctx, task)
	if err != nil {
		return models.Classification{}, err
	}

	c.mu.Lock()
	c.cache[task.ID] = result
	c.mu.Unlock()
	return result, nil
}

func (c *Classifier) classify(ctx context.Context, task models.Task) (models.Classification, error) {
	if c.backend == nil {
		return c.fallback.Classify(task), nil
	}

	first, err := c.backend.Sample(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return models.Classification{}, ctx.Err()
		}
		// Backend unavailable: degrade to keyword rules instead of failing
		// the task outright.
		log.Printf("[classifier] backend unavailable, using keyword fallback: %v", err)
		return c.fallback.Classify(task), nil
	}
	first.TaskID = task.ID

	if first.Confidence >= c.cfg.VoteThreshold {
		return c.applyHint(task, first), nil
	}

	samples := []models.Classification{first}
	for len(samples) < c.cfg.MaxSamples {
		s, err := c.backend.Sample(ctx, task)
		if err != nil {
			if ctx.Err() != nil {
				return models.Classification{}, ctx.Err()
			}
			break
		}
		s.TaskID = task.ID
		samples = append(samples, s)
	}

	winner := majority(samples)
	if winner.Confidence < c.cfg.HumanThreshold {
		return models.Classification{}, models.LowConfidence(fmt.Sprintf(
			"task %s: classification confidence %.2f below %.2f, needs human classification",
			task.ID, winner.Confidence, c.cfg.HumanThreshold))
	}
	return c.applyHint(task, winner), nil
}

// applyHint lets a caller-declared domain hint override the model's domain.
func (c *Classifier) applyHint(task models.Task, cls models.Classification) models.Classification {
	if task.DomainHint != "" {
		cls.Domain = task.DomainHint
	}
	return cls
}

// majority picks the most frequent classification among the samples (keyed
// by content type, domain, and mode) and scales its confidence by the vote
// agreement, so a split vote reports lower confidence than a unanimous one.
func majority(samples []models.Classification) models.Classification {
	type bucket struct {
		votes int
		sum   float64
		first models.Classification
	}

	buckets := make(map[string]*bucket)
	order := make([]string, 0, len(samples))
	for _, s := range samples {
		key := fmt.Sprintf("%s|%s|%s", s.ContentType, s.Domain, s.Mode)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{first: s}
			buckets[key] = b
			order = append(order, key)
		}
		b.votes++
		b.sum += s.Confidence
	}

	var best *bucket
	for _, key := range order {
		b := buckets[key]
		if best == nil || b.votes > best.votes {
			best = b
		}
	}

	result := best.first
	agreement := float64(best.votes) / float64(len(samples))
	result.Confidence = (best.sum / float64(best.votes)) * agreement
	return result
}
