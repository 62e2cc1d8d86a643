package broker

import "testing"

func mkEvent(id string) Event {
	return Event{Topic: "t", Message: Message{ID: id}, TS: Timestamp()}
}

func TestRingPushAndLast(t *testing.T) {
	r := newRing(3)

	r.Push(mkEvent("a"))
	r.Push(mkEvent("b"))
	if r.Len() != 2 {
		t.Fatalf("expected len 2, got %d", r.Len())
	}

	got := r.Last(5)
	if len(got) != 2 || got[0].Message.ID != "a" || got[1].Message.ID != "b" {
		t.Fatalf("unexpected replay: %+v", got)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := newRing(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		r.Push(mkEvent(id))
	}

	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	got := r.Last(3)
	want := []string{"c", "d", "e"}
	for i, ev := range got {
		if ev.Message.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], ev.Message.ID)
		}
	}
}

func TestRingLastSubset(t *testing.T) {
	r := newRing(5)
	for _, id := range []string{"a", "b", "c"} {
		r.Push(mkEvent(id))
	}

	got := r.Last(2)
	if len(got) != 2 || got[0].Message.ID != "b" || got[1].Message.ID != "c" {
		t.Fatalf("unexpected suffix: %+v", got)
	}
	if r.Last(0) != nil {
		t.Fatal("Last(0) should return nil")
	}
}

func TestRingZeroCapacityDisablesReplay(t *testing.T) {
	r := newRing(0)
	r.Push(mkEvent("a"))

	if r.Len() != 0 {
		t.Fatalf("expected empty ring, got len %d", r.Len())
	}
	if got := r.Last(1); got != nil {
		t.Fatalf("expected no replay, got %+v", got)
	}
}
