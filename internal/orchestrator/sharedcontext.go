package orchestrator

import "sync"

// SharedContext holds the outputs invocations publish for their dependents.
// It is owned exclusively by one workflow and never visible across
// workflows; cross-workflow sharing goes through the ledger or an external
// store.
type SharedContext struct {
	outputs map[string]string
	mu      sync.RWMutex
}

// NewSharedContext creates an empty shared context.
func NewSharedContext() *SharedContext {
	return &SharedContext{outputs: make(map[string]string)}
}

// Put publishes an invocation's output.
func (c *SharedContext) Put(invocationID, output string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[invocationID] = output
}

// Get returns the output published by an invocation.
func (c *SharedContext) Get(invocationID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.outputs[invocationID]
	return out, ok
}

// Gather returns the outputs of the given invocations, in the given order,
// skipping any that never published.
func (c *SharedContext) Gather(invocationIDs []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(invocationIDs))
	for _, id := range invocationIDs {
		if text, ok := c.outputs[id]; ok {
			out = append(out, text)
		}
	}
	return out
}
