// Package tx is the transactional layer over internal/lsm (spec §4.6–4.8
// / C7, C8, C9): Keyspace and PartitionHandle add transaction semantics
// — single-op atomic convenience methods, multi-statement read and
// write transactions, and (in Serializable mode) optimistic conflict
// detection — to the plain LSM core.
package tx

import (
	"fmt"
	"sync"

	"github.com/fjall-rs/fjall-go/internal/journal"
	"github.com/fjall-rs/fjall-go/internal/lsm"
	"github.com/fjall-rs/fjall-go/internal/oracle"
	"github.com/fjall-rs/fjall-go/internal/partname"
)

// Keyspace is the transactional entry point: it owns the underlying LSM
// core, the write-serialization lock (and, in Serializable mode, the
// commit oracle), and every partition opened from it.
type Keyspace struct {
	cfg  Config
	core *lsm.Keyspace
	lock *txLock

	mu         sync.RWMutex
	partitions map[string]*PartitionHandle
}

// Open opens (creating if absent) a keyspace directory per cfg.
func Open(cfg Config) (*Keyspace, error) {
	core, err := lsm.Open(cfg.lsmOptions())
	if err != nil {
		return nil, fmt.Errorf("tx: open lsm core: %w", err)
	}

	var o *oracle.Oracle
	if cfg.Isolation == Serializable {
		o = oracle.New(core.Tracker())
	}

	return &Keyspace{
		cfg:        cfg,
		core:       core,
		lock:       newTxLock(cfg.Isolation, o),
		partitions: make(map[string]*PartitionHandle),
	}, nil
}

func (ks *Keyspace) writeMode() journal.PersistMode {
	if ks.cfg.ManualJournalPersist {
		return journal.SyncAll
	}
	return journal.Buffer
}

// OpenPartition returns the partition handle for name, creating it if
// absent. name must satisfy internal/partname.Valid; violating that is
// a programmer error and panics, per spec §7.
func (ks *Keyspace) OpenPartition(name string) (*PartitionHandle, error) {
	if !partname.Valid(name) {
		panic(fmt.Sprintf("tx: invalid partition name %q", name))
	}

	ks.mu.RLock()
	if p, ok := ks.partitions[name]; ok {
		ks.mu.RUnlock()
		return p, nil
	}
	ks.mu.RUnlock()

	inner, err := ks.core.OpenPartition(name)
	if err != nil {
		return nil, err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if p, ok := ks.partitions[name]; ok {
		return p, nil
	}
	p := &PartitionHandle{
		name:  name,
		inner: inner,
		lock:  ks.lock,
		seq:   ks.core,
		mode:  ks.writeMode(),
	}
	ks.partitions[name] = p
	return p, nil
}

// ListPartitions returns the names of every open partition.
func (ks *Keyspace) ListPartitions() []string { return ks.core.ListPartitions() }

// DeletePartition drops a partition's manifest entries and in-memory
// state.
func (ks *Keyspace) DeletePartition(name string) error {
	ks.mu.Lock()
	delete(ks.partitions, name)
	ks.mu.Unlock()
	return ks.core.DeletePartition(name)
}

func (ks *Keyspace) partitionInner(name string) (*PartitionHandle, error) {
	return ks.OpenPartition(name)
}

// ReadTx begins a read transaction, a stable point-in-time view across
// every partition pinned until Close releases it (spec §4.5's snapshot
// nonce, surfaced here as C7's read_tx).
func (ks *Keyspace) ReadTx() *ReadTransaction {
	return newReadTransaction(ks)
}

// WriteTx begins a write transaction. In Serializable mode, reads made
// through it are tracked and validated at Commit; in SingleWriter mode
// Commit always succeeds once the global lock is acquired (spec §4.6's
// write_tx).
func (ks *Keyspace) WriteTx() *WriteTransaction {
	return newWriteTransaction(ks)
}

// Persist forces an fsync of the shared journal, regardless of the
// per-write durability mode (spec §4.6's persist, for keyspaces whose
// writes use the default Buffer durability).
func (ks *Keyspace) Persist() error { return ks.core.Persist() }

// Close releases every resource the keyspace holds.
func (ks *Keyspace) Close() error { return ks.core.Close() }
