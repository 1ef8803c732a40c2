package tx

import (
	"fmt"

	"github.com/fjall-rs/fjall-go/internal/oracle"
	"github.com/fjall-rs/fjall-go/internal/snapshot"
	"github.com/fjall-rs/fjall-go/internal/value"
)

// ReadTransaction is a stable, multi-partition, point-in-time view
// (spec §4.5/§4.6's read_tx): every Get it serves observes exactly the
// writes committed before the transaction began, regardless of what
// commits afterward.
type ReadTransaction struct {
	ks    *Keyspace
	nonce snapshot.Nonce
}

func newReadTransaction(ks *Keyspace) *ReadTransaction {
	instant := ks.core.Instant()
	return &ReadTransaction{ks: ks, nonce: snapshot.NewNonce(instant, ks.core.Tracker())}
}

// Get reads key from partition as of the transaction's snapshot.
func (rt *ReadTransaction) Get(partition string, key []byte) ([]byte, bool, error) {
	p, err := rt.ks.partitionInner(partition)
	if err != nil {
		return nil, false, err
	}
	v, ok, err := p.inner.Get(key, rt.nonce.Instant)
	if !ok || err != nil {
		return nil, ok, err
	}
	return v.Val, true, nil
}

// ContainsKey reports whether key has a live version as of the
// transaction's snapshot.
func (rt *ReadTransaction) ContainsKey(partition string, key []byte) (bool, error) {
	p, err := rt.ks.partitionInner(partition)
	if err != nil {
		return false, err
	}
	return p.inner.ContainsKey(key, rt.nonce.Instant)
}

// Close releases the transaction's hold on its snapshot instant.
// Compaction may reclaim superseded versions the instant depended on
// only once every transaction holding it has closed.
func (rt *ReadTransaction) Close() { rt.nonce.Release() }

type pendingWrite struct {
	partition string
	key       []byte
	val       []byte
	tombstone bool
}

// WriteTransaction buffers writes across one or more partitions and
// applies them atomically at Commit (spec §4.6's write_tx). In
// Serializable mode, every Get it serves is tracked as a read
// dependency and validated against concurrently committed writes before
// this transaction's own writes are allowed to publish.
type WriteTransaction struct {
	ks      *Keyspace
	nonce   snapshot.Nonce
	reads   oracle.KeySet
	pending []pendingWrite
	done    bool
}

func newWriteTransaction(ks *Keyspace) *WriteTransaction {
	instant := ks.core.Instant()
	return &WriteTransaction{
		ks:    ks,
		nonce: snapshot.NewNonce(instant, ks.core.Tracker()),
		reads: oracle.KeySet{},
	}
}

// Get reads key, preferring this transaction's own buffered writes
// (read-your-own-writes) before falling back to its snapshot. A read
// that falls through to the snapshot is recorded as a read dependency
// for commit-time validation.
func (wt *WriteTransaction) Get(partition string, key []byte) ([]byte, bool, error) {
	for i := len(wt.pending) - 1; i >= 0; i-- {
		op := wt.pending[i]
		if op.partition == partition && string(op.key) == string(key) {
			if op.tombstone {
				return nil, false, nil
			}
			return op.val, true, nil
		}
	}

	wt.reads.AddKey(partition, key)

	p, err := wt.ks.partitionInner(partition)
	if err != nil {
		return nil, false, err
	}
	v, ok, err := p.inner.Get(key, wt.nonce.Instant)
	if !ok || err != nil {
		return nil, ok, err
	}
	return v.Val, true, nil
}

// Insert buffers a write of key=val, applied at Commit.
func (wt *WriteTransaction) Insert(partition string, key, val []byte) {
	wt.pending = append(wt.pending, pendingWrite{partition: partition, key: key, val: val})
}

// Remove buffers a tombstone for key, applied at Commit.
func (wt *WriteTransaction) Remove(partition string, key []byte) {
	wt.pending = append(wt.pending, pendingWrite{partition: partition, key: key, tombstone: true})
}

// Commit acquires the keyspace's write lock, validates this
// transaction's read-set against everything committed since it began
// (Serializable mode only), and publishes its buffered writes as a
// single batch of sequence numbers. Returns oracle.ErrConflict if
// validation fails; the transaction must be retried from scratch.
func (wt *WriteTransaction) Commit() error {
	if wt.done {
		return fmt.Errorf("tx: transaction already closed")
	}
	wt.done = true
	defer wt.nonce.Release()

	wt.ks.lock.Lock()
	defer wt.ks.lock.Unlock()

	if err := wt.ks.lock.validate(wt.nonce.Instant, wt.reads); err != nil {
		return err
	}

	writes := oracle.KeySet{}
	var lastSeqno uint64
	for _, op := range wt.pending {
		p, err := wt.ks.partitionInner(op.partition)
		if err != nil {
			return err
		}

		seqno := wt.ks.core.NextSeqno()
		lastSeqno = seqno

		var v value.Value
		if op.tombstone {
			v = value.NewTombstone(op.key, seqno)
		} else {
			v = value.New(op.key, op.val, seqno)
		}
		if err := p.inner.Insert(v, p.mode); err != nil {
			return err
		}
		writes.AddKey(op.partition, op.key)
	}

	if len(wt.pending) > 0 {
		wt.ks.lock.record(lastSeqno, writes)
	}
	return nil
}

// Rollback discards the transaction's buffered writes without
// publishing them.
func (wt *WriteTransaction) Rollback() {
	if wt.done {
		return
	}
	wt.done = true
	wt.nonce.Release()
}
