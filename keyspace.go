package fjall

import (
	"errors"

	"github.com/fjall-rs/fjall-go/internal/oracle"
	"github.com/fjall-rs/fjall-go/tx"
)

// Keyspace is the top-level handle onto a directory on disk, holding
// the shared journal, manifest, write-serialization lock, and every
// partition opened from it. Every fallible method wraps its underlying
// error as a *fjall.Error with the appropriate Kind.
type Keyspace struct {
	inner *tx.Keyspace
}

// Open opens (creating if absent) a keyspace directory per cfg.
func Open(cfg Config) (*Keyspace, error) {
	inner, err := tx.Open(cfg)
	if err != nil {
		return nil, wrapErr(KindIO, "open", err)
	}
	return &Keyspace{inner: inner}, nil
}

// OpenPartition returns the partition handle for name, creating it if
// absent. An invalid name is a programmer error and panics.
func (ks *Keyspace) OpenPartition(name string) (*PartitionHandle, error) {
	p, err := ks.inner.OpenPartition(name)
	if err != nil {
		return nil, wrapErr(KindIO, "open_partition", err)
	}
	return &PartitionHandle{inner: p}, nil
}

// ListPartitions returns the names of every open partition.
func (ks *Keyspace) ListPartitions() []string { return ks.inner.ListPartitions() }

// DeletePartition drops a partition's manifest entries and in-memory
// state.
func (ks *Keyspace) DeletePartition(name string) error {
	return wrapErr(KindIO, "delete_partition", ks.inner.DeletePartition(name))
}

// ReadTx begins a read transaction, a stable point-in-time view across
// every partition pinned until Close releases it.
func (ks *Keyspace) ReadTx() *ReadTransaction {
	return &ReadTransaction{inner: ks.inner.ReadTx()}
}

// WriteTx begins a write transaction. In Serializable mode, reads made
// through it are tracked and validated at Commit; in SingleWriter mode
// Commit always succeeds once the global lock is acquired.
func (ks *Keyspace) WriteTx() *WriteTransaction {
	return &WriteTransaction{inner: ks.inner.WriteTx()}
}

// Persist forces an fsync of the shared journal, regardless of the
// per-write durability mode.
func (ks *Keyspace) Persist() error {
	return wrapErr(KindIO, "persist", ks.inner.Persist())
}

// Close releases every resource the keyspace holds.
func (ks *Keyspace) Close() error {
	return wrapErr(KindIO, "close", ks.inner.Close())
}

func wrapTxErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, oracle.ErrConflict) {
		return ErrConflict
	}
	return wrapErr(KindIO, op, err)
}
