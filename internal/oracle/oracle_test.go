package oracle

import (
	"sync"
	"testing"
	"time"

	"github.com/fjall-rs/fjall-go/internal/snapshot"
)

func TestFairMutexServesInArrivalOrder(t *testing.T) {
	m := NewFairMutex()
	m.Lock()

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	const n = 5
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			time.Sleep(time.Duration(i) * time.Millisecond)
			m.Lock()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			m.Unlock()
		}(i)
	}
	for i := 0; i < n; i++ {
		<-started
	}
	time.Sleep(10 * time.Millisecond) // let every goroutine queue up behind the held lock
	m.Unlock()

	wg.Wait()
	if len(order) != n {
		t.Fatalf("expected %d arrivals, got %d", n, len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("served order = %v, want arrival order 0..%d", order, n-1)
		}
	}
}

func TestValidateDetectsConflict(t *testing.T) {
	tracker := snapshot.NewTracker()
	o := New(tracker)

	nonce := snapshot.NewNonce(1, tracker)
	defer nonce.Release()

	writes := KeySet{}
	writes.AddKey("default", []byte("k"))
	o.Record(2, writes)

	reads := KeySet{}
	reads.AddKey("default", []byte("k"))

	if err := o.Validate(1, reads); err != ErrConflict {
		t.Fatalf("Validate() = %v, want ErrConflict", err)
	}

	if err := o.Validate(2, reads); err != nil {
		t.Fatalf("Validate at instant 2 should see its own write as already visible, got %v", err)
	}
}

func TestValidateIgnoresDisjointKeys(t *testing.T) {
	tracker := snapshot.NewTracker()
	o := New(tracker)
	nonce := snapshot.NewNonce(1, tracker)
	defer nonce.Release()

	writes := KeySet{}
	writes.AddKey("default", []byte("other"))
	o.Record(2, writes)

	reads := KeySet{}
	reads.AddKey("default", []byte("k"))

	if err := o.Validate(1, reads); err != nil {
		t.Fatalf("Validate() = %v, want nil for disjoint key sets", err)
	}
}

func TestRecordPrunesBelowMinLiveSnapshot(t *testing.T) {
	tracker := snapshot.NewTracker()
	o := New(tracker)

	early := snapshot.NewNonce(1, tracker)

	writes := KeySet{}
	writes.AddKey("default", []byte("k"))
	o.Record(5, writes)

	early.Release()
	late := snapshot.NewNonce(10, tracker)
	defer late.Release()

	o.Record(11, KeySet{})

	o.mu.Lock()
	n := len(o.commits)
	o.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected commit at instant 5 to be pruned once minLive=10, got %d entries", n)
	}
}
