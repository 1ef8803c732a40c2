package fjall

import "github.com/fjall-rs/fjall-go/tx"

// ReadTransaction is a stable, multi-partition, point-in-time view:
// every Get it serves observes exactly the writes committed before the
// transaction began, regardless of what commits afterward.
type ReadTransaction struct {
	inner *tx.ReadTransaction
}

// Get reads key from partition as of the transaction's snapshot.
func (rt *ReadTransaction) Get(partition string, key []byte) ([]byte, bool, error) {
	v, ok, err := rt.inner.Get(partition, key)
	return v, ok, wrapErr(KindIO, "get", err)
}

// ContainsKey reports whether key has a live version as of the
// transaction's snapshot.
func (rt *ReadTransaction) ContainsKey(partition string, key []byte) (bool, error) {
	ok, err := rt.inner.ContainsKey(partition, key)
	return ok, wrapErr(KindIO, "contains_key", err)
}

// Close releases the transaction's hold on its snapshot instant.
func (rt *ReadTransaction) Close() { rt.inner.Close() }

// WriteTransaction buffers writes across one or more partitions and
// applies them atomically at Commit. In Serializable mode, every Get
// it serves is tracked as a read dependency and validated against
// concurrently committed writes before this transaction's own writes
// are allowed to publish.
type WriteTransaction struct {
	inner *tx.WriteTransaction
}

// Get reads key, preferring this transaction's own buffered writes
// before falling back to its snapshot.
func (wt *WriteTransaction) Get(partition string, key []byte) ([]byte, bool, error) {
	v, ok, err := wt.inner.Get(partition, key)
	return v, ok, wrapErr(KindIO, "get", err)
}

// Insert buffers a write of key=val, applied at Commit.
func (wt *WriteTransaction) Insert(partition string, key, val []byte) {
	wt.inner.Insert(partition, key, val)
}

// Remove buffers a tombstone for key, applied at Commit.
func (wt *WriteTransaction) Remove(partition string, key []byte) {
	wt.inner.Remove(partition, key)
}

// Commit acquires the keyspace's write lock, validates this
// transaction's read-set against everything committed since it began
// (Serializable mode only), and publishes its buffered writes as a
// single batch. Returns ErrConflict (checkable with IsConflict) if
// validation fails; the transaction must be retried from scratch.
func (wt *WriteTransaction) Commit() error {
	return wrapTxErr("commit", wt.inner.Commit())
}

// Rollback discards the transaction's buffered writes without
// publishing them.
func (wt *WriteTransaction) Rollback() { wt.inner.Rollback() }
