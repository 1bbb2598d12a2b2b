// Package notify delivers pending approval requests to a human approver.
// Delivery is fire-and-forget: a slow or absent approver channel never
// stalls the approval timeout clock.
package notify

import (
	"log"
	"sync"
	"time"

	"github.com/quillworks/quill/pkg/models"
)

// deliveryGrace is how long a notifier waits on a full sink before dropping.
const deliveryGrace = 100 * time.Millisecond

// LogNotifier writes pending approvals to the process log. It is the default
// sink for headless runs.
type LogNotifier struct{}

// Notify logs the pending request.
func (LogNotifier) Notify(req models.ApprovalRequest) {
	log.Printf("[approval] pending %s: subject=%s capability=%s units=%d cost=$%.4f expires=%s",
		req.ID, req.SubjectID, req.Capability, req.Units, req.Cost,
		req.ExpiresAt.Format(time.RFC3339))
}

// ChannelNotifier forwards pending approvals to a channel, typically consumed
// by an interactive approver. Requests that cannot be delivered within a
// short grace period are dropped; the request itself stays pending and still
// appears in the manager's pending list.
type ChannelNotifier struct {
	ch      chan models.ApprovalRequest
	dropped int
	mu      sync.Mutex
}

// NewChannelNotifier creates a ChannelNotifier with the given buffer.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	return &ChannelNotifier{ch: make(chan models.ApprovalRequest, buffer)}
}

// Notify forwards the request, dropping it after the grace period.
func (n *ChannelNotifier) Notify(req models.ApprovalRequest) {
	select {
	case n.ch <- req:
		return
	default:
	}

	select {
	case n.ch <- req:
	case <-time.After(deliveryGrace):
		n.mu.Lock()
		n.dropped++
		count := n.dropped
		n.mu.Unlock()
		log.Printf("[approval] WARNING: approver channel full, dropped notification for %s (total dropped: %d)", req.ID, count)
	}
}

// Requests returns the channel the approver reads from.
func (n *ChannelNotifier) Requests() <-chan models.ApprovalRequest {
	return n.ch
}

// Dropped returns how many notifications were dropped.
func (n *ChannelNotifier) Dropped() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

// Multi fans a notification out to several sinks.
type Multi []interface {
	Notify(req models.ApprovalRequest)
}

// Notify delivers the request to every sink in order.
func (m Multi) Notify(req models.ApprovalRequest) {
	for _, n := range m {
		n.Notify(req)
	}
}
