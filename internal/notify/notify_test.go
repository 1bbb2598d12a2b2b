package notify

import (
	"testing"

	"github.com/quillworks/quill/pkg/models"
)

func TestChannelNotifier_Delivers(t *testing.T) {
	n := NewChannelNotifier(2)
	n.Notify(models.ApprovalRequest{ID: "apr-1"})

	select {
	case req := <-n.Requests():
		if req.ID != "apr-1" {
			t.Errorf("expected apr-1, got %s", req.ID)
		}
	default:
		t.Fatal("expected a delivered request")
	}
}

func TestChannelNotifier_DropsWhenFull(t *testing.T) {
	n := NewChannelNotifier(1)
	n.Notify(models.ApprovalRequest{ID: "apr-1"})
	// Nobody is reading; this one cannot be delivered.
	n.Notify(models.ApprovalRequest{ID: "apr-2"})

	if n.Dropped() != 1 {
		t.Errorf("expected 1 dropped notification, got %d", n.Dropped())
	}
	if got := <-n.Requests(); got.ID != "apr-1" {
		t.Errorf("expected the first request preserved, got %s", got.ID)
	}
}

func TestMulti_FansOut(t *testing.T) {
	a := NewChannelNotifier(1)
	b := NewChannelNotifier(1)
	Multi{a, b}.Notify(models.ApprovalRequest{ID: "apr-1"})

	if len(a.Requests()) != 1 || len(b.Requests()) != 1 {
		t.Error("expected both sinks to receive the notification")
	}
}
