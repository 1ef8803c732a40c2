package tx

import (
	"sync"

	"github.com/fjall-rs/fjall-go/internal/oracle"
)

// txLock is the write-serialization primitive shared by a Keyspace and
// every PartitionHandle opened from it. A PartitionHandle holds a
// pointer to this lock directly rather than a back-reference to its
// owning Keyspace: it needs the lock, not the rest of the keyspace's
// surface.
type txLock struct {
	mode   Isolation
	mu     sync.Mutex
	oracle *oracle.Oracle
}

func newTxLock(mode Isolation, o *oracle.Oracle) *txLock {
	return &txLock{mode: mode, oracle: o}
}

func (l *txLock) Lock() {
	if l.mode == Serializable {
		l.oracle.Lock()
		return
	}
	l.mu.Lock()
}

func (l *txLock) Unlock() {
	if l.mode == Serializable {
		l.oracle.Unlock()
		return
	}
	l.mu.Unlock()
}

// validate checks a committing transaction's read-set against writes
// committed since readInstant. A no-op outside Serializable mode.
func (l *txLock) validate(readInstant uint64, reads oracle.KeySet) error {
	if l.mode != Serializable {
		return nil
	}
	return l.oracle.Validate(readInstant, reads)
}

// record publishes a committed transaction's write-set into the
// conflict window. A no-op outside Serializable mode.
func (l *txLock) record(instant uint64, writes oracle.KeySet) {
	if l.mode == Serializable {
		l.oracle.Record(instant, writes)
	}
}
