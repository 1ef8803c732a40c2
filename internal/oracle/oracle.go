// Package oracle implements the commit coordinator for serializable
// snapshot isolation (SSI) write transactions (spec §4.8 / C9): a fair
// lock that serializes the commit critical section, and a sliding
// window of recently committed write-sets that in-flight transactions
// are validated against before being allowed to publish.
package oracle

import (
	"errors"
	"sync"

	"github.com/fjall-rs/fjall-go/internal/snapshot"
)

// ErrConflict is returned by Validate when a committing transaction's
// read-set intersects a write-set committed after the transaction's
// snapshot instant — the transaction must be retried or abandoned.
var ErrConflict = errors.New("oracle: read-write conflict, transaction must retry")

// KeySet is a partition-scoped read- or write-set: partition name to the
// set of keys (as strings, since Go maps can't key on []byte directly).
type KeySet map[string]map[string]struct{}

// AddKey records key as touched within partition.
func (s KeySet) AddKey(partition string, key []byte) {
	keys, ok := s[partition]
	if !ok {
		keys = make(map[string]struct{})
		s[partition] = keys
	}
	keys[string(key)] = struct{}{}
}

func (s KeySet) intersects(other KeySet) bool {
	for partition, keys := range s {
		otherKeys, ok := other[partition]
		if !ok {
			continue
		}
		for k := range keys {
			if _, hit := otherKeys[k]; hit {
				return true
			}
		}
	}
	return false
}

type commitEntry struct {
	instant uint64
	writes  KeySet
}

// Oracle coordinates write-transaction commit ordering and conflict
// detection for SSI mode.
type Oracle struct {
	writeLock *FairMutex

	mu      sync.Mutex
	commits []commitEntry
	tracker *snapshot.Tracker
}

// New returns an Oracle whose conflict window is pruned against
// tracker's set of live snapshots: a commit older than every live
// snapshot can never again be the subject of a conflict check, so it is
// dropped.
func New(tracker *snapshot.Tracker) *Oracle {
	return &Oracle{
		writeLock: NewFairMutex(),
		tracker:   tracker,
	}
}

// Lock acquires the commit serialization lock in arrival order.
func (o *Oracle) Lock() { o.writeLock.Lock() }

// Unlock releases the commit serialization lock, admitting the next
// waiter in arrival order.
func (o *Oracle) Unlock() { o.writeLock.Unlock() }

// BeginWrite is Lock followed by returning Unlock as a closure, for
// callers that want defer-friendly acquisition.
func (o *Oracle) BeginWrite() func() {
	o.Lock()
	return o.Unlock
}

// Validate reports ErrConflict if any transaction committed with an
// instant strictly greater than readInstant wrote a key this
// transaction's reads set also touched.
func (o *Oracle) Validate(readInstant uint64, reads KeySet) error {
	if len(reads) == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, c := range o.commits {
		if c.instant <= readInstant {
			continue
		}
		if c.writes.intersects(reads) {
			return ErrConflict
		}
	}
	return nil
}

// Record appends a newly committed transaction's write-set to the
// conflict window at the given instant, then prunes entries no longer
// live snapshot could possibly still validate against.
func (o *Oracle) Record(instant uint64, writes KeySet) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.commits = append(o.commits, commitEntry{instant: instant, writes: writes})
	o.prune()
}

func (o *Oracle) prune() {
	minLive, ok := o.tracker.MinLive()
	if !ok {
		o.commits = nil
		return
	}

	kept := o.commits[:0]
	for _, c := range o.commits {
		if c.instant >= minLive {
			kept = append(kept, c)
		}
	}
	o.commits = kept
}
