package fjall

import (
	"go.uber.org/zap"

	"github.com/fjall-rs/fjall-go/internal/journal"
	"github.com/fjall-rs/fjall-go/tx"
)

// Isolation selects how write transactions are serialized against each
// other.
type Isolation = tx.Isolation

const (
	// SingleWriter serializes every write transaction behind one global
	// lock.
	SingleWriter = tx.SingleWriter
	// Serializable runs write transactions optimistically under
	// snapshot isolation; Commit returns ErrConflict, for the caller to
	// retry, when a key the transaction read was written by a newer
	// commit.
	Serializable = tx.Serializable
)

// PersistMode controls how aggressively a write is made durable before
// Insert/Remove returns.
type PersistMode = journal.PersistMode

const (
	// PersistBuffer leaves the write in the journal's OS buffer;
	// durable only after the next Keyspace.Persist or process-managed
	// flush.
	PersistBuffer = journal.Buffer
	// PersistSyncData fsyncs the journal file's contents before
	// returning.
	PersistSyncData = journal.SyncData
	// PersistSyncAll fsyncs the journal file's contents and metadata
	// before returning.
	PersistSyncAll = journal.SyncAll
)

// Config configures a Keyspace. Construct one with NewConfig.
type Config = tx.Config

// Option configures a Config, following the functional-options pattern.
type Option = tx.Option

// WithBlockSize sets the on-disk value block size new segments use.
func WithBlockSize(n uint32) Option { return tx.WithBlockSize(n) }

// WithIndexBlockSize sets the sparse index leaf block size.
func WithIndexBlockSize(n uint32) Option { return tx.WithIndexBlockSize(n) }

// WithMemtableSizeThreshold sets the approximate buffered-bytes
// watermark that triggers a background flush.
func WithMemtableSizeThreshold(n uint64) Option { return tx.WithMemtableSizeThreshold(n) }

// WithL0CompactionThreshold sets the number of level-0 segments that
// triggers size-tiered compaction into level 1.
func WithL0CompactionThreshold(n int) Option { return tx.WithL0CompactionThreshold(n) }

// WithIsolation selects the write-transaction isolation mode.
func WithIsolation(i Isolation) Option { return tx.WithIsolation(i) }

// WithManualJournalPersist opts every write into fsyncing instead of
// the default Buffer durability, under which the caller calls
// Keyspace.Persist to make writes durable on its own schedule.
func WithManualJournalPersist(b bool) Option { return tx.WithManualJournalPersist(b) }

// WithLogger sets the zap logger threaded through the journal, segment
// writer, and lsm core.
func WithLogger(l *zap.Logger) Option { return tx.WithLogger(l) }

// NewConfig returns a Config rooted at path with every Option applied
// on top of sane defaults.
func NewConfig(path string, opts ...Option) Config { return tx.NewConfig(path, opts...) }
