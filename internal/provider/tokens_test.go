package provider

import (
	"sync"
	"testing"

	"github.com/quillworks/quill/pkg/models"
)

func TestTokenTracker(t *testing.T) {
	tracker := NewTokenTracker()

	tracker.Add(100, 50)
	tracker.Add(200, 150)

	in, out := tracker.Total()
	if in != 300 || out != 200 {
		t.Errorf("expected totals 300/200, got %d/%d", in, out)
	}
	if tracker.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", tracker.Calls())
	}
}

func TestTokenTracker_Concurrent(t *testing.T) {
	tracker := NewTokenTracker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Add(10, 5)
		}()
	}
	wg.Wait()

	in, out := tracker.Total()
	if in != 200 || out != 100 {
		t.Errorf("expected totals 200/100, got %d/%d", in, out)
	}
}

func TestTokenTracker_CostFor(t *testing.T) {
	tracker := NewTokenTracker()
	tracker.Add(2000, 1000)

	p := models.Provider{ID: "p1", CostPerKTokensIn: 0.003, CostPerKTokensOut: 0.015}
	got := tracker.CostFor(p)
	want := 0.003*2 + 0.015*1
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected cost %f, got %f", want, got)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock("claude-sonnet-4-20250514")
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("unexpected translation: %s", got)
	}

	// Already-translated and unknown names pass through untouched.
	passthrough := translateModelForBedrock("us.anthropic.claude-sonnet-4-20250514-v1:0")
	if passthrough != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("expected passthrough, got %s", passthrough)
	}
	custom := translateModelForBedrock("my-custom-model")
	if custom != "my-custom-model" {
		t.Errorf("expected passthrough for custom model, got %s", custom)
	}
}
