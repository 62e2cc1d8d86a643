package broker

import (
	"fmt"
	"testing"
)

func TestEnqueueDropOldest(t *testing.T) {
	tr := &fakeTransport{}
	s := newSubscriber("a", tr, 3)

	for i := 0; i < 5; i++ {
		v := s.enqueue([]byte(fmt.Sprintf("f%d", i)), PolicyDropOldest)
		if i < 3 && v != enqueueOK {
			t.Fatalf("frame %d: expected OK, got %v", i, v)
		}
		if i >= 3 && v != enqueueDroppedOldest {
			t.Fatalf("frame %d: expected drop, got %v", i, v)
		}
	}
	if s.QueueLen() != 3 {
		t.Fatalf("expected queue len 3, got %d", s.QueueLen())
	}

	s.Drain()
	got := make([]string, len(tr.frames))
	for i, f := range tr.frames {
		got[i] = string(f)
	}
	want := []string{"f2", "f3", "f4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestEnqueueDisconnectRejects(t *testing.T) {
	tr := &fakeTransport{}
	s := newSubscriber("a", tr, 1)

	if v := s.enqueue([]byte("f0"), PolicyDisconnect); v != enqueueOK {
		t.Fatalf("expected OK, got %v", v)
	}
	if v := s.enqueue([]byte("f1"), PolicyDisconnect); v != enqueueRejected {
		t.Fatalf("expected rejection, got %v", v)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("rejected frame must not be enqueued, len %d", s.QueueLen())
	}
}

func TestDrainStopsAtBusyTransport(t *testing.T) {
	tr := &fakeTransport{}
	s := newSubscriber("a", tr, 10)

	s.enqueue([]byte("f0"), PolicyDropOldest)
	s.enqueue([]byte("f1"), PolicyDropOldest)

	tr.setBusy(true)
	s.Drain()
	if s.QueueLen() != 2 {
		t.Fatalf("expected unsent suffix kept, len %d", s.QueueLen())
	}

	tr.setBusy(false)
	s.Drain()
	if s.QueueLen() != 0 {
		t.Fatalf("expected queue drained, len %d", s.QueueLen())
	}
	if len(tr.frames) != 2 || string(tr.frames[0]) != "f0" {
		t.Fatalf("unexpected delivery: %v", tr.frames)
	}
}
