package fjall

import "github.com/fjall-rs/fjall-go/tx"

// UpdateFn computes a partition key's next value from its current one;
// ok is false when the key is currently absent. Returning keep=false
// deletes the key.
type UpdateFn = tx.UpdateFn

// PartitionHandle is one partition's read/write surface: single-key
// atomic operations, plus the entry point for transactions spanning
// multiple partitions via Keyspace.ReadTx/WriteTx.
type PartitionHandle struct {
	inner *tx.PartitionHandle
}

// Name returns the partition's name.
func (p *PartitionHandle) Name() string { return p.inner.Name() }

// Insert writes key=val as a new version, visible to every read
// transaction started after this call returns.
func (p *PartitionHandle) Insert(key, val []byte) error {
	return wrapErr(KindIO, "insert", p.inner.Insert(key, val))
}

// Remove writes a tombstone for key.
func (p *PartitionHandle) Remove(key []byte) error {
	return wrapErr(KindIO, "remove", p.inner.Remove(key))
}

// Get returns the value of key as of the current committed state.
func (p *PartitionHandle) Get(key []byte) ([]byte, bool, error) {
	v, ok, err := p.inner.Get(key)
	return v, ok, wrapErr(KindIO, "get", err)
}

// ContainsKey reports whether key has a live version as of the current
// committed state.
func (p *PartitionHandle) ContainsKey(key []byte) (bool, error) {
	ok, err := p.inner.ContainsKey(key)
	return ok, wrapErr(KindIO, "contains_key", err)
}

// FetchUpdate atomically replaces key's value with fn's result and
// returns the value that was present beforehand.
func (p *PartitionHandle) FetchUpdate(key []byte, fn UpdateFn) ([]byte, bool, error) {
	v, ok, err := p.inner.FetchUpdate(key, fn)
	return v, ok, wrapErr(KindIO, "fetch_update", err)
}

// UpdateFetch atomically replaces key's value with fn's result and
// returns the value that is present afterward.
func (p *PartitionHandle) UpdateFetch(key []byte, fn UpdateFn) ([]byte, bool, error) {
	v, ok, err := p.inner.UpdateFetch(key, fn)
	return v, ok, wrapErr(KindIO, "update_fetch", err)
}

// Take atomically removes key and returns the value it held.
func (p *PartitionHandle) Take(key []byte) ([]byte, bool, error) {
	v, ok, err := p.inner.Take(key)
	return v, ok, wrapErr(KindIO, "take", err)
}
