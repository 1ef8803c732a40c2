// Package lsm is the non-transactional LSM core: a Keyspace owning the
// shared journal and manifest, and per-partition handles that each own a
// memtable and a set of on-disk segment levels. It has no notion of
// transactions or isolation — tx.Keyspace wraps it to add those (spec
// §4.6–4.8); this package only knows how to accept writes, answer point
// lookups as of a given seqno, and keep memtables small by flushing them
// to segments in the background.
package lsm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fjall-rs/fjall-go/internal/journal"
	"github.com/fjall-rs/fjall-go/internal/manifest"
	"github.com/fjall-rs/fjall-go/internal/memtable"
	"github.com/fjall-rs/fjall-go/internal/partname"
	"github.com/fjall-rs/fjall-go/internal/segment"
	"github.com/fjall-rs/fjall-go/internal/snapshot"
	"github.com/fjall-rs/fjall-go/internal/value"
)

const (
	// DefaultMemtableSizeThreshold is the approximate buffered-bytes
	// watermark that triggers a background flush for a partition.
	DefaultMemtableSizeThreshold = 8 << 20 // 8 MiB

	// DefaultL0CompactionThreshold is the number of level-0 segments a
	// partition accumulates before the size-tiered trigger merges them
	// down into level 1.
	DefaultL0CompactionThreshold = 4

	// DefaultJournalBuffer is the journal writer's channel depth.
	DefaultJournalBuffer = 128
)

// Options configures a Keyspace (spec §6's Config, realized at this
// layer without the transactional/isolation concerns tx.Keyspace adds).
type Options struct {
	Path                   string
	BlockSize              uint32
	IndexBlockSize         uint32
	MemtableSizeThreshold  uint64
	L0CompactionThreshold  int
	JournalBuffer          int
	BloomFalsePositiveRate float64
	Logger                 *zap.Logger
}

// DefaultOptions returns Options with every zero field replaced by a
// sane default, rooted at path.
func DefaultOptions(path string) Options {
	return Options{
		Path:                   path,
		BlockSize:              segment.DefaultBlockSize,
		IndexBlockSize:         segment.DefaultIndexBlockSize,
		MemtableSizeThreshold:  DefaultMemtableSizeThreshold,
		L0CompactionThreshold:  DefaultL0CompactionThreshold,
		JournalBuffer:          DefaultJournalBuffer,
		BloomFalsePositiveRate: 0.01,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions(o.Path)
	if o.BlockSize == 0 {
		o.BlockSize = def.BlockSize
	}
	if o.IndexBlockSize == 0 {
		o.IndexBlockSize = def.IndexBlockSize
	}
	if o.MemtableSizeThreshold == 0 {
		o.MemtableSizeThreshold = def.MemtableSizeThreshold
	}
	if o.L0CompactionThreshold == 0 {
		o.L0CompactionThreshold = def.L0CompactionThreshold
	}
	if o.JournalBuffer == 0 {
		o.JournalBuffer = def.JournalBuffer
	}
	if o.BloomFalsePositiveRate <= 0 {
		o.BloomFalsePositiveRate = def.BloomFalsePositiveRate
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Keyspace owns the journal and manifest shared by every partition, and
// the background flush worker that drains memtables into segments.
type Keyspace struct {
	opts   Options
	logger *zap.Logger

	journal  *journal.Writer
	manifest *manifest.Manifest
	tracker  *snapshot.Tracker

	seqno atomic.Uint64

	mu         sync.RWMutex
	partitions map[string]*PartitionHandle

	flushCh chan string
	group   *errgroup.Group
	cancel  context.CancelFunc
	closed  atomic.Bool
}

// Open opens (creating if absent) a keyspace directory, recovers every
// partition registered in the manifest, replays the journal on top of
// the recovered segments, and starts the background flush worker (spec
// §4.6 `open`).
func Open(opts Options) (*Keyspace, error) {
	opts.applyDefaults()

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("lsm: create keyspace dir: %w", err)
	}

	jw, err := journal.Open(opts.Path, opts.JournalBuffer, opts.Logger)
	if err != nil {
		return nil, err
	}

	mf, err := manifest.Open(opts.Path)
	if err != nil {
		jw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	ks := &Keyspace{
		opts:       opts,
		logger:     opts.Logger,
		journal:    jw,
		manifest:   mf,
		tracker:    snapshot.NewTracker(),
		partitions: make(map[string]*PartitionHandle),
		flushCh:    make(chan string, 64),
		group:      group,
		cancel:     cancel,
	}

	if err := ks.recover(); err != nil {
		jw.Close()
		mf.Close()
		cancel()
		return nil, err
	}

	group.Go(func() error { return ks.flushWorker(ctx) })

	return ks, nil
}

// recover loads every manifest-known partition's segments, then replays
// the journal on top of them to restore unflushed writes.
func (ks *Keyspace) recover() error {
	names, err := ks.manifest.ListPartitions()
	if err != nil {
		return fmt.Errorf("lsm: list partitions: %w", err)
	}
	for _, name := range names {
		if _, err := ks.openPartitionLocked(name); err != nil {
			return err
		}
	}

	jr, err := journal.OpenReader(ks.opts.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("lsm: open journal for recovery: %w", err)
	}
	defer jr.Close()

	var maxSeqno uint64
	for rec := range jr.All() {
		p, err := ks.openPartitionLocked(rec.Partition)
		if err != nil {
			return err
		}
		p.mem.Put(rec.Value)
		if rec.Value.Seqno > maxSeqno {
			maxSeqno = rec.Value.Seqno
		}
	}
	ks.seqno.Store(maxSeqno)

	return nil
}

// NextSeqno assigns and returns the next write's sequence number.
func (ks *Keyspace) NextSeqno() uint64 { return ks.seqno.Add(1) }

// Instant returns the current committed sequence number watermark,
// i.e. the snapshot a reader starting right now should observe.
func (ks *Keyspace) Instant() uint64 { return ks.seqno.Load() }

// Tracker exposes the keyspace's shared snapshot tracker (C6).
func (ks *Keyspace) Tracker() *snapshot.Tracker { return ks.tracker }

// Persist forces an fsync of the shared journal, regardless of the
// per-append durability mode writes were made with.
func (ks *Keyspace) Persist() error { return ks.journal.Sync() }

func (ks *Keyspace) segmentsDir(partition string) string {
	return filepath.Join(ks.opts.Path, "segments", partition)
}

// OpenPartition returns the partition handle for name, creating it (and
// registering an empty segment level set) if it does not yet exist. name
// must already be valid; an invalid name is a programmer error.
func (ks *Keyspace) OpenPartition(name string) (*PartitionHandle, error) {
	if !partname.Valid(name) {
		panic(fmt.Sprintf("lsm: invalid partition name %q", name))
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.openPartitionLocked(name)
}

func (ks *Keyspace) openPartitionLocked(name string) (*PartitionHandle, error) {
	if p, ok := ks.partitions[name]; ok {
		return p, nil
	}

	p := &PartitionHandle{
		name: name,
		ks:   ks,
		mem:  memtable.New(),
	}

	for level := 0; ; level++ {
		ids, err := ks.manifest.ListSegments(name, level)
		if err != nil {
			return nil, fmt.Errorf("lsm: list segments for %q level %d: %w", name, level, err)
		}
		if len(ids) == 0 {
			if level == 0 {
				continue // level 0 may legitimately be empty while level 1+ is not, during recovery ordering
			}
			break
		}
		entries := make([]segmentEntry, 0, len(ids))
		for _, id := range ids {
			r, err := segment.Open(filepath.Join(ks.segmentsDir(name), id))
			if err != nil {
				return nil, fmt.Errorf("lsm: open segment %s/%s: %w", name, id, err)
			}
			entries = append(entries, segmentEntry{ID: id, Reader: r})
		}
		for len(p.levels) <= level {
			p.levels = append(p.levels, nil)
		}
		p.levels[level] = entries
	}

	ks.partitions[name] = p
	return p, nil
}

// ListPartitions returns the names of every open partition.
func (ks *Keyspace) ListPartitions() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	names := make([]string, 0, len(ks.partitions))
	for name := range ks.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeletePartition drops a partition's manifest entries and in-memory
// state. Segment files on disk are left for a future sweep; spec.md
// scopes physical directory cleanup out of the core (§1 non-goals).
func (ks *Keyspace) DeletePartition(name string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	delete(ks.partitions, name)
	return ks.manifest.DeletePartition(name)
}

func (ks *Keyspace) scheduleFlush(name string) {
	select {
	case ks.flushCh <- name:
	default:
		// Already queued or worker busy; the next write past the
		// threshold will try again.
	}
}

func (ks *Keyspace) flushWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case name := <-ks.flushCh:
			ks.mu.RLock()
			p := ks.partitions[name]
			ks.mu.RUnlock()
			if p == nil {
				continue
			}
			if err := ks.flushPartition(p); err != nil {
				ks.logger.Error("flush failed", zap.String("partition", name), zap.Error(err))
			}
		}
	}
}

// flushPartition seals the active memtable (if non-empty) and writes it
// out as a new level-0 segment, then checks whether level 0 has grown
// past the size-tiered compaction threshold.
func (ks *Keyspace) flushPartition(p *PartitionHandle) error {
	p.mu.Lock()
	if p.mem.Len() == 0 {
		p.mu.Unlock()
		return nil
	}
	sealed := p.mem
	p.mem = memtable.New()
	p.mu.Unlock()

	segID := "segment-" + uuid.NewString()
	dir := filepath.Join(ks.segmentsDir(p.name), segID)

	w, err := segment.NewWriter(segment.Options{
		Path:                   dir,
		BlockSize:              ks.opts.BlockSize,
		IndexBlockSize:         ks.opts.IndexBlockSize,
		BloomExpectedItems:     uint(sealed.Len()),
		BloomFalsePositiveRate: ks.opts.BloomFalsePositiveRate,
	}, ks.logger)
	if err != nil {
		return fmt.Errorf("lsm: create segment writer: %w", err)
	}

	for v := range sealed.All() {
		if err := w.Write(v); err != nil {
			return fmt.Errorf("lsm: write to segment: %w", err)
		}
	}

	meta, err := w.Finalize()
	if err != nil {
		return fmt.Errorf("lsm: finalize segment: %w", err)
	}
	if meta.Empty() {
		return nil
	}

	reader, err := segment.Open(dir)
	if err != nil {
		return fmt.Errorf("lsm: open newly flushed segment: %w", err)
	}

	metaBytes, err := marshalMeta(meta)
	if err != nil {
		return err
	}
	if err := ks.manifest.AddSegment(p.name, 0, segID, metaBytes); err != nil {
		return fmt.Errorf("lsm: register segment in manifest: %w", err)
	}

	p.mu.Lock()
	p.ensureLevel(0)
	p.levels[0] = append([]segmentEntry{{ID: segID, Reader: reader}}, p.levels[0]...)
	needsCompaction := len(p.levels[0]) >= ks.opts.L0CompactionThreshold
	p.mu.Unlock()

	ks.logger.Debug("flushed memtable",
		zap.String("partition", p.name),
		zap.String("segment", segID),
		zap.Int("item_count", meta.ItemCount),
	)

	if needsCompaction {
		if err := ks.compactL0(p); err != nil {
			return fmt.Errorf("lsm: compact level 0: %w", err)
		}
	}

	return nil
}

// compactL0 merges every level-0 segment into a single level-1 segment,
// keeping the freshest version of each key and, for keys with history
// below the oldest live snapshot, the one version that snapshot is
// entitled to see (the minimal size-tiered trigger the flush path
// needs; spec.md scopes full leveled-compaction heuristics out — §1
// non-goals).
func (ks *Keyspace) compactL0(p *PartitionHandle) error {
	p.mu.Lock()
	victims := p.levels[0]
	p.levels[0] = nil
	p.mu.Unlock()

	if len(victims) == 0 {
		return nil
	}

	minLive, minLiveOK := ks.tracker.MinLive()
	merged, err := mergeSegments(victims, minLive, minLiveOK)
	if err != nil {
		return err
	}

	segID := "segment-" + uuid.NewString()
	dir := filepath.Join(ks.segmentsDir(p.name), segID)

	w, err := segment.NewWriter(segment.Options{
		Path:                   dir,
		BlockSize:              ks.opts.BlockSize,
		IndexBlockSize:         ks.opts.IndexBlockSize,
		BloomExpectedItems:     uint(len(merged)),
		BloomFalsePositiveRate: ks.opts.BloomFalsePositiveRate,
	}, ks.logger)
	if err != nil {
		return err
	}
	for _, v := range merged {
		if err := w.Write(v); err != nil {
			return err
		}
	}
	meta, err := w.Finalize()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.ensureLevel(1)
	if !meta.Empty() {
		reader, err := segment.Open(dir)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.levels[1] = append([]segmentEntry{{ID: segID, Reader: reader}}, p.levels[1]...)
	}
	p.mu.Unlock()

	if !meta.Empty() {
		metaBytes, err := marshalMeta(meta)
		if err != nil {
			return err
		}
		if err := ks.manifest.AddSegment(p.name, 1, segID, metaBytes); err != nil {
			return err
		}
	}

	for _, v := range victims {
		if err := ks.manifest.RemoveSegment(p.name, 0, v.ID); err != nil {
			return fmt.Errorf("lsm: remove compacted segment from manifest: %w", err)
		}
		v.Reader.Close()
	}
	return nil
}

// mergeSegments merges every record from entries into a single
// (key ASC, seqno DESC) run; input order does not matter, the sort
// establishes it. Within each key's run:
//
//   - every version with seqno > minLive survives untouched — any of
//     them may be the exact floor a live snapshot above minLive needs
//     (spec §4.5 / C6: compaction must not drop a version still
//     observable by a live snapshot);
//   - the first version encountered with seqno <= minLive is the floor
//     GetAsOf(key, minLive) itself needs, so it survives too, even if
//     it is a tombstone; every version older than that floor is
//     superseded for every live snapshot and is dropped;
//   - when minLiveOK is false no snapshot is held at all, so only the
//     newest version per key survives, and a tombstone newest version
//     is dropped outright rather than carried forward forever.
func mergeSegments(entries []segmentEntry, minLive uint64, minLiveOK bool) ([]value.Value, error) {
	var all []value.Value
	for _, e := range entries {
		records, err := e.Reader.All()
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}

	sort.SliceStable(all, func(i, j int) bool { return value.Less(all[i], all[j]) })

	out := all[:0:0]
	floored := false
	for i, v := range all {
		newestForKey := i == 0 || string(all[i-1].Key) != string(v.Key)
		if newestForKey {
			floored = false
		}

		switch {
		case !minLiveOK:
			if !newestForKey {
				continue
			}
			if v.IsTombstone {
				continue
			}
		case v.Seqno > minLive:
			// keep, untouched
		default:
			if floored {
				continue
			}
			floored = true
		}
		out = append(out, v)
	}
	return out, nil
}

func marshalMeta(meta *segment.Metadata) ([]byte, error) {
	return json.Marshal(meta)
}

// Close stops the background flush worker, closes every partition's
// open segment readers, and closes the shared journal and manifest.
func (ks *Keyspace) Close() error {
	if ks.closed.Swap(true) {
		return nil
	}

	ks.cancel()
	ks.group.Wait()

	ks.mu.Lock()
	for _, p := range ks.partitions {
		p.closeSegments()
	}
	ks.mu.Unlock()

	var firstErr error
	if err := ks.journal.Close(); err != nil {
		firstErr = err
	}
	if err := ks.manifest.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
