package tx

import (
	"github.com/fjall-rs/fjall-go/internal/journal"
	"github.com/fjall-rs/fjall-go/internal/lsm"
	"github.com/fjall-rs/fjall-go/internal/oracle"
	"github.com/fjall-rs/fjall-go/internal/value"
)

// seqnoSource is the narrow slice of *lsm.Keyspace a PartitionHandle
// needs: assigning and observing sequence numbers. It is satisfied
// structurally by *lsm.Keyspace.
type seqnoSource interface {
	NextSeqno() uint64
	Instant() uint64
}

// PartitionHandle is one partition's transactional surface: atomic
// single-operation reads and writes (spec §4.7 / C8). It holds the
// write lock and seqno source it needs directly, not a back-reference
// to its owning Keyspace.
type PartitionHandle struct {
	name  string
	inner *lsm.PartitionHandle
	lock  *txLock
	seq   seqnoSource
	mode  journal.PersistMode
}

// Name returns the partition's name.
func (p *PartitionHandle) Name() string { return p.name }

// Path returns the partition's segment directory name, restored from
// the original implementation's path() accessor.
func (p *PartitionHandle) Path() string { return p.name }

// Inner returns the underlying non-transactional partition handle, an
// escape hatch restored from the original implementation's inner().
func (p *PartitionHandle) Inner() *lsm.PartitionHandle { return p.inner }

// Insert writes key=val as a new version, visible to every read
// transaction started after this call returns.
func (p *PartitionHandle) Insert(key, val []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	seqno := p.seq.NextSeqno()
	if err := p.inner.Insert(value.New(key, val, seqno), p.mode); err != nil {
		return err
	}

	writes := oracle.KeySet{}
	writes.AddKey(p.name, key)
	p.lock.record(seqno, writes)
	return nil
}

// Remove writes a tombstone for key.
func (p *PartitionHandle) Remove(key []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	seqno := p.seq.NextSeqno()
	if err := p.inner.Insert(value.NewTombstone(key, seqno), p.mode); err != nil {
		return err
	}

	writes := oracle.KeySet{}
	writes.AddKey(p.name, key)
	p.lock.record(seqno, writes)
	return nil
}

// Get returns the value of key as of the current committed state.
func (p *PartitionHandle) Get(key []byte) ([]byte, bool, error) {
	v, ok, err := p.inner.Get(key, p.seq.Instant())
	if !ok || err != nil {
		return nil, ok, err
	}
	return v.Val, true, nil
}

// ContainsKey reports whether key has a live version as of the current
// committed state.
func (p *PartitionHandle) ContainsKey(key []byte) (bool, error) {
	return p.inner.ContainsKey(key, p.seq.Instant())
}

// UpdateFn computes a new value from the current one; ok is false when
// the key is currently absent. Returning keep=false deletes the key.
type UpdateFn func(current []byte, ok bool) (next []byte, keep bool)

// FetchUpdate atomically replaces key's value with fn's result and
// returns the value that was present beforehand.
func (p *PartitionHandle) FetchUpdate(key []byte, fn UpdateFn) ([]byte, bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	before, beforeOK, err := p.inner.Get(key, p.seq.Instant())
	if err != nil {
		return nil, false, err
	}

	if err := p.applyLocked(key, before.Val, beforeOK, fn); err != nil {
		return nil, false, err
	}

	if !beforeOK {
		return nil, false, nil
	}
	return before.Val, true, nil
}

// UpdateFetch atomically replaces key's value with fn's result and
// returns the value that is present afterward.
func (p *PartitionHandle) UpdateFetch(key []byte, fn UpdateFn) ([]byte, bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	before, beforeOK, err := p.inner.Get(key, p.seq.Instant())
	if err != nil {
		return nil, false, err
	}

	next, keep := fn(before.Val, beforeOK)
	if err := p.applyComputedLocked(key, next, keep, beforeOK); err != nil {
		return nil, false, err
	}
	if !keep {
		return nil, false, nil
	}
	return next, true, nil
}

// Take atomically removes key and returns the value it held, restored
// from the original implementation's documented
// fetch_update(k, |_| None) idiom.
func (p *PartitionHandle) Take(key []byte) ([]byte, bool, error) {
	return p.FetchUpdate(key, func([]byte, bool) ([]byte, bool) { return nil, false })
}

// applyLocked recomputes fn(current) and writes it; must be called with
// p.lock held.
func (p *PartitionHandle) applyLocked(key, current []byte, ok bool, fn UpdateFn) error {
	next, keep := fn(current, ok)
	return p.applyComputedLocked(key, next, keep, ok)
}

// applyComputedLocked writes fn's result, unless fn deleted a key that
// was already absent — tombstoning a nonexistent key is a no-op (spec
// §4.7), not a write, so it must not consume a seqno or touch the
// journal.
func (p *PartitionHandle) applyComputedLocked(key, next []byte, keep, wasPresent bool) error {
	if !keep && !wasPresent {
		return nil
	}

	seqno := p.seq.NextSeqno()
	var v value.Value
	if keep {
		v = value.New(key, next, seqno)
	} else {
		v = value.NewTombstone(key, seqno)
	}
	if err := p.inner.Insert(v, p.mode); err != nil {
		return err
	}

	writes := oracle.KeySet{}
	writes.AddKey(p.name, key)
	p.lock.record(seqno, writes)
	return nil
}
