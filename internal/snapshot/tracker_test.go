package snapshot

import "testing"

func TestTrackerMinLive(t *testing.T) {
	tr := NewTracker()

	if _, ok := tr.MinLive(); ok {
		t.Fatalf("expected no live snapshot on empty tracker")
	}

	n1 := NewNonce(5, tr)
	n2 := NewNonce(3, tr)
	n3 := NewNonce(7, tr)

	min, ok := tr.MinLive()
	if !ok || min != 3 {
		t.Fatalf("MinLive() = (%d,%v), want (3,true)", min, ok)
	}

	n2.Release()

	min, ok = tr.MinLive()
	if !ok || min != 5 {
		t.Fatalf("MinLive() = (%d,%v), want (5,true)", min, ok)
	}

	n1.Release()
	n3.Release()

	if _, ok := tr.MinLive(); ok {
		t.Fatalf("expected no live snapshot after releasing all nonces")
	}
}

func TestHandleReleaseIsIdempotent(t *testing.T) {
	tr := NewTracker()
	n := NewNonce(1, tr)

	n.Release()
	n.Release()

	if _, ok := tr.MinLive(); ok {
		t.Fatalf("double release should not double-decrement")
	}
}

func TestRefCountedSameInstant(t *testing.T) {
	tr := NewTracker()
	a := NewNonce(10, tr)
	b := NewNonce(10, tr)

	a.Release()

	min, ok := tr.MinLive()
	if !ok || min != 10 {
		t.Fatalf("instant 10 should still be live while b holds it")
	}

	b.Release()
	if _, ok := tr.MinLive(); ok {
		t.Fatalf("expected no live snapshot after both handles released")
	}
}
