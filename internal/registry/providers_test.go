package registry

import (
	"testing"
	"time"

	"github.com/quillworks/quill/pkg/models"
)

func TestProviderRegistry_HealthTracking(t *testing.T) {
	reg := NewProviderRegistry(3, time.Minute)
	reg.Register(models.Provider{ID: "p1", Name: "Primary"})

	health, ok := reg.Health("p1")
	if !ok {
		t.Fatal("expected provider to be registered")
	}
	if health.Circuit != models.CircuitClosed {
		t.Errorf("expected new provider to start closed, got %s", health.Circuit)
	}

	reg.RecordSuccess("p1", 500*time.Millisecond, true)
	after, _ := reg.Health("p1")
	if after.Quality <= health.Quality {
		t.Errorf("expected quality to rise after accepted call: %f -> %f", health.Quality, after.Quality)
	}

	reg.RecordFailure("p1")
	failed, _ := reg.Health("p1")
	if failed.ErrorRate <= after.ErrorRate {
		t.Errorf("expected error rate to rise after failure: %f -> %f", after.ErrorRate, failed.ErrorRate)
	}
	if failed.Reliability() >= 1.0 {
		t.Errorf("expected reliability below 1 after failure, got %f", failed.Reliability())
	}
}

func TestProviderRegistry_BreakerOpensAfterThreshold(t *testing.T) {
	reg := NewProviderRegistry(3, time.Minute)
	reg.Register(models.Provider{ID: "p1"})

	for i := 0; i < 3; i++ {
		reg.RecordFailure("p1")
	}

	health, _ := reg.Health("p1")
	if health.Circuit != models.CircuitOpen {
		t.Errorf("expected open circuit after 3 failures, got %s", health.Circuit)
	}

	// A success closes it again (e.g. via a forced half-open probe).
	reg.RecordSuccess("p1", time.Second, true)
	health, _ = reg.Health("p1")
	if health.Circuit != models.CircuitClosed {
		t.Errorf("expected closed circuit after success, got %s", health.Circuit)
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	if got := b.State(); got != models.CircuitOpen {
		t.Fatalf("expected open, got %s", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != models.CircuitHalfOpen {
		t.Errorf("expected half-open after cooldown, got %s", got)
	}

	// A failure during the probe re-opens immediately.
	b.RecordFailure()
	if got := b.State(); got != models.CircuitOpen {
		t.Errorf("expected re-open after half-open failure, got %s", got)
	}

	time.Sleep(20 * time.Millisecond)
	b.State() // transition to half-open
	b.RecordSuccess()
	if got := b.State(); got != models.CircuitClosed {
		t.Errorf("expected closed after half-open success, got %s", got)
	}
}
