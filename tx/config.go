package tx

import (
	"go.uber.org/zap"

	"github.com/fjall-rs/fjall-go/internal/lsm"
)

// Isolation selects how write transactions are serialized against each
// other (spec §4.6–4.8). It is a runtime switch rather than a
// compile-time feature flag: Go has no conditional-compilation
// mechanism well suited to swapping struct fields and methods the way
// the original engine's cargo features do.
type Isolation int

const (
	// SingleWriter serializes every write transaction behind one global
	// lock. Simple and always correct; writers never retry.
	SingleWriter Isolation = iota
	// Serializable runs write transactions optimistically under
	// snapshot isolation, validating each commit against the set of
	// keys committed since the transaction's snapshot instant (SSI).
	// Conflicting commits return oracle.ErrConflict for the caller to
	// retry.
	Serializable
)

// Config configures a Keyspace.
type Config struct {
	Path                   string
	BlockSize              uint32
	IndexBlockSize         uint32
	MemtableSizeThreshold  uint64
	L0CompactionThreshold  int
	JournalBuffer          int
	BloomFalsePositiveRate float64
	Isolation              Isolation
	// ManualJournalPersist: unless set, every write defaults to Buffer
	// durability (journal reaches the OS, no fsync) and callers rely on
	// Keyspace.Persist for durability on their own schedule. Set it to
	// opt every write into fsyncing instead.
	ManualJournalPersist bool
	Logger               *zap.Logger
}

// Option configures a Config, following the functional-options pattern.
type Option func(*Config)

// WithBlockSize sets the on-disk value block size new segments use.
func WithBlockSize(n uint32) Option { return func(c *Config) { c.BlockSize = n } }

// WithIndexBlockSize sets the sparse index leaf block size.
func WithIndexBlockSize(n uint32) Option { return func(c *Config) { c.IndexBlockSize = n } }

// WithMemtableSizeThreshold sets the approximate buffered-bytes
// watermark that triggers a background flush.
func WithMemtableSizeThreshold(n uint64) Option {
	return func(c *Config) { c.MemtableSizeThreshold = n }
}

// WithL0CompactionThreshold sets the number of level-0 segments that
// triggers the size-tiered compaction into level 1.
func WithL0CompactionThreshold(n int) Option {
	return func(c *Config) { c.L0CompactionThreshold = n }
}

// WithIsolation selects the write-transaction isolation mode.
func WithIsolation(i Isolation) Option { return func(c *Config) { c.Isolation = i } }

// WithManualJournalPersist opts every write into fsyncing instead of
// the default Buffer durability, under which the caller calls
// Keyspace.Persist to make writes durable on its own schedule.
func WithManualJournalPersist(b bool) Option {
	return func(c *Config) { c.ManualJournalPersist = b }
}

// WithLogger sets the zap logger threaded through the journal, segment
// writer, and lsm core.
func WithLogger(l *zap.Logger) Option { return func(c *Config) { c.Logger = l } }

// NewConfig returns a Config rooted at path with every Option applied on
// top of sane defaults.
func NewConfig(path string, opts ...Option) Config {
	def := lsm.DefaultOptions(path)
	cfg := Config{
		Path:                   path,
		BlockSize:              def.BlockSize,
		IndexBlockSize:         def.IndexBlockSize,
		MemtableSizeThreshold:  def.MemtableSizeThreshold,
		L0CompactionThreshold:  def.L0CompactionThreshold,
		JournalBuffer:          def.JournalBuffer,
		BloomFalsePositiveRate: def.BloomFalsePositiveRate,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) lsmOptions() lsm.Options {
	return lsm.Options{
		Path:                   c.Path,
		BlockSize:              c.BlockSize,
		IndexBlockSize:         c.IndexBlockSize,
		MemtableSizeThreshold:  c.MemtableSizeThreshold,
		L0CompactionThreshold:  c.L0CompactionThreshold,
		JournalBuffer:          c.JournalBuffer,
		BloomFalsePositiveRate: c.BloomFalsePositiveRate,
		Logger:                 c.Logger,
	}
}
