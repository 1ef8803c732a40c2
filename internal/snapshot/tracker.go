// Package snapshot implements the snapshot nonce and tracker (spec §4.5 /
// C6): a stable read-timestamp handle with reference-counted lifetime.
// While a nonce is alive, the tracker treats its instant as a retained
// read point that compactions must not drop records for.
package snapshot

import "sync"

// Instant is a monotonically increasing sequence number, read under the
// oracle lock in SSI mode or unlocked in single-writer mode.
type Instant = uint64

// Tracker maintains a multi-set of live instants and exposes MinLive for
// compaction use.
type Tracker struct {
	mu     sync.Mutex
	counts map[Instant]int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[Instant]int)}
}

// Register increments the multi-set for instant and returns a Handle
// whose Release decrements it exactly once.
func (t *Tracker) Register(instant Instant) *Handle {
	t.mu.Lock()
	t.counts[instant]++
	t.mu.Unlock()

	return &Handle{tracker: t, instant: instant}
}

// MinLive returns the smallest instant with at least one live handle, and
// false if no snapshot is currently held. Compactions must not drop a
// record version still needed to materialize MinLive (and every instant
// above it that is itself live).
func (t *Tracker) MinLive() (Instant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		min   Instant
		found bool
	)
	for instant, count := range t.counts {
		if count <= 0 {
			continue
		}
		if !found || instant < min {
			min = instant
			found = true
		}
	}
	return min, found
}

func (t *Tracker) release(instant Instant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[instant]--
	if t.counts[instant] <= 0 {
		delete(t.counts, instant)
	}
}

// Handle is a reference-counted hold on one instant.
type Handle struct {
	tracker *Tracker
	instant Instant

	released bool
	mu       sync.Mutex
}

// Release drops this handle's hold on its instant. Safe to call more than
// once; only the first call has effect.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	h.tracker.release(h.instant)
}

// Nonce is a transaction's proof that its instant remains observable
// until the nonce is dropped. It is a shared handle into the tracker; the
// tracker outlives every nonce via reference counting, never the other
// way around.
type Nonce struct {
	Instant Instant
	handle  *Handle
}

// NewNonce registers instant with tracker and returns the resulting
// nonce.
func NewNonce(instant Instant, tracker *Tracker) Nonce {
	return Nonce{Instant: instant, handle: tracker.Register(instant)}
}

// Release drops the tracker's hold for this nonce's instant.
func (n Nonce) Release() {
	if n.handle != nil {
		n.handle.Release()
	}
}
