package provider

import (
	"sync"

	"github.com/quillworks/quill/pkg/models"
)

// TokenTracker accumulates token usage across completion calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from one call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of completion calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// CostFor prices the tracked usage at a provider's catalog rates.
func (t *TokenTracker) CostFor(p models.Provider) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return p.Cost(t.inputTok, t.outputTok)
}
