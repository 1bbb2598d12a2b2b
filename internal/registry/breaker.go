package registry

import (
	"sync"
	"time"

	"github.com/quillworks/quill/pkg/models"
)

// Breaker is a three-state circuit breaker. Closed providers route normally;
// enough consecutive failures open the circuit, which excludes the provider
// from routing. After the cooldown the circuit half-opens: the provider may
// take probe traffic, and a single success closes it again while a failure
// re-opens it.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	state    models.CircuitState
	failures int
	openedAt time.Time
	mu       sync.Mutex
}

// NewBreaker creates a closed breaker. threshold consecutive failures open
// it; cooldown is the open period before half-open.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     models.CircuitClosed,
	}
}

// State returns the current breaker state, transitioning open circuits to
// half-open once the cooldown has elapsed.
func (b *Breaker) State() models.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == models.CircuitOpen && time.Since(b.openedAt) >= b.cooldown {
		b.state = models.CircuitHalfOpen
	}
	return b.state
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = models.CircuitClosed
}

// RecordFailure counts a failure. A failure in half-open state re-opens the
// circuit immediately; in closed state the circuit opens once the threshold
// is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == models.CircuitHalfOpen {
		b.state = models.CircuitOpen
		b.openedAt = time.Now()
		b.failures = b.threshold
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = models.CircuitOpen
		b.openedAt = time.Now()
	}
}

// force sets the breaker state directly. Used by the registry for tests
// and operational overrides.
func (b *Breaker) force(state models.CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = state
	if state == models.CircuitOpen {
		b.openedAt = time.Now()
		b.failures = b.threshold
	} else {
		b.failures = 0
	}
}
