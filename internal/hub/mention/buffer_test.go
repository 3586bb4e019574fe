package mention

import (
	"testing"

	"github.com/kandev/coordhub/internal/hub/model"
)

func TestBufferPushAndDrain(t *testing.T) {
	b := NewBuffer(10)
	b.Push(model.MentionDelivery{MessageID: "m1"})
	b.Push(model.MentionDelivery{MessageID: "m2"})

	if got := b.Len(); got != 2 {
		t.Fatalf("expected len 2, got %d", got)
	}

	drained := b.Drain(10)
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained deliveries, got %d", len(drained))
	}
	if drained[0].MessageID != "m1" || drained[1].MessageID != "m2" {
		t.Error("expected deliveries drained oldest first")
	}
	if b.Len() != 0 {
		t.Error("expected buffer empty after drain")
	}
}

func TestBufferDrainRespectsMax(t *testing.T) {
	b := NewBuffer(10)
	for i := 0; i < 5; i++ {
		b.Push(model.MentionDelivery{MessageID: "m"})
	}

	drained := b.Drain(2)
	if len(drained) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(drained))
	}
	if b.Len() != 3 {
		t.Errorf("expected 3 remaining, got %d", b.Len())
	}
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	b := NewBuffer(2)
	b.Push(model.MentionDelivery{MessageID: "m1"})
	b.Push(model.MentionDelivery{MessageID: "m2"})
	b.Push(model.MentionDelivery{MessageID: "m3"})

	if b.Dropped() != 1 {
		t.Errorf("expected 1 dropped delivery, got %d", b.Dropped())
	}
	drained := b.Drain(10)
	if len(drained) != 2 || drained[0].MessageID != "m2" || drained[1].MessageID != "m3" {
		t.Errorf("expected [m2 m3] retained after overflow, got %+v", drained)
	}
}

func TestBufferDrainEmpty(t *testing.T) {
	b := NewBuffer(10)
	if drained := b.Drain(10); drained != nil {
		t.Errorf("expected nil from draining an empty buffer, got %+v", drained)
	}
}

func TestNewBufferDefaultsSoftCap(t *testing.T) {
	b := NewBuffer(0)
	if b.softCap != 1024 {
		t.Errorf("expected default soft cap 1024, got %d", b.softCap)
	}
}
