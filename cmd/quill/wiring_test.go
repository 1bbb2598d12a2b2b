package main

import (
	"context"
	"testing"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/pkg/models"
)

type trackedBackend struct {
	tracker *provider.TokenTracker
}

func (b *trackedBackend) Complete(ctx context.Context, req provider.Request) (provider.Result, error) {
	return provider.Result{}, nil
}

func (b *trackedBackend) Tracker() *provider.TokenTracker {
	return b.tracker
}

func TestLiveResolverUsage_AggregatesAcrossBackends(t *testing.T) {
	r := newLiveResolver(config.AnthropicConfig{})

	alpha := &trackedBackend{tracker: provider.NewTokenTracker()}
	alpha.tracker.Add(1000, 500)
	beta := &trackedBackend{tracker: provider.NewTokenTracker()}
	beta.tracker.Add(2000, 1000)

	r.backends["alpha"] = alpha
	r.backends["beta"] = beta
	r.providers["alpha"] = models.Provider{ID: "alpha", CostPerKTokensIn: 0.003, CostPerKTokensOut: 0.015}
	r.providers["beta"] = models.Provider{ID: "beta", CostPerKTokensIn: 0.001, CostPerKTokensOut: 0.005}

	u := r.usage()
	if u.inputTokens != 3000 || u.outputTokens != 1500 {
		t.Errorf("expected 3000/1500 tokens, got %d/%d", u.inputTokens, u.outputTokens)
	}
	if u.calls != 2 {
		t.Errorf("expected 2 calls, got %d", u.calls)
	}
	want := (0.003 + 0.015*0.5) + (0.001*2 + 0.005)
	if diff := u.cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected cost %f, got %f", want, u.cost)
	}
}

func TestLiveResolverUsage_SkipsBackendsWithoutTracker(t *testing.T) {
	r := newLiveResolver(config.AnthropicConfig{})
	r.backends["plain"] = plainBackend{}

	if u := r.usage(); u.calls != 0 || u.cost != 0 {
		t.Errorf("expected empty usage, got %+v", u)
	}
}

type plainBackend struct{}

func (plainBackend) Complete(ctx context.Context, req provider.Request) (provider.Result, error) {
	return provider.Result{}, nil
}
