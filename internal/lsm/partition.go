package lsm

import (
	"fmt"
	"math"
	"sync"

	"github.com/fjall-rs/fjall-go/internal/journal"
	"github.com/fjall-rs/fjall-go/internal/memtable"
	"github.com/fjall-rs/fjall-go/internal/segment"
	"github.com/fjall-rs/fjall-go/internal/value"
)

// segmentEntry pairs an open segment reader with the manifest segment ID
// it was registered under, so compaction can remove the manifest entry
// once the segment it names has been superseded.
type segmentEntry struct {
	ID     string
	Reader *segment.Reader
}

// PartitionHandle is one partition's active memtable plus its on-disk
// segment levels (level 0 newest-first, from flushes; level 1+ from
// compaction). It has no notion of transactions: callers supply the
// seqno for every write and the maxSeqno for every read.
type PartitionHandle struct {
	name string
	ks   *Keyspace

	mu     sync.RWMutex
	mem    *memtable.Memtable
	levels [][]segmentEntry
}

// Name returns the partition's name.
func (p *PartitionHandle) Name() string { return p.name }

func (p *PartitionHandle) ensureLevel(level int) {
	for len(p.levels) <= level {
		p.levels = append(p.levels, nil)
	}
}

// Insert appends v to the shared journal under this partition and buffers
// it in the active memtable, scheduling a flush once the memtable has
// grown past the keyspace's size threshold.
func (p *PartitionHandle) Insert(v value.Value, mode journal.PersistMode) error {
	rec := journal.Record{Partition: p.name, Value: v}
	if err := p.ks.journal.Append(rec, mode); err != nil {
		return fmt.Errorf("lsm: journal append: %w", err)
	}

	p.mu.Lock()
	p.mem.Put(v)
	full := p.mem.ApproxBytes() >= p.ks.opts.MemtableSizeThreshold
	p.mu.Unlock()

	if full {
		p.ks.scheduleFlush(p.name)
	}
	return nil
}

// Get returns the freshest version of key with seqno <= maxSeqno,
// searching the active memtable, then level 0 (newest segment first),
// then each deeper level in turn. A tombstone hit reports "not found":
// it is the freshest version, and it means the key is deleted as of
// maxSeqno.
func (p *PartitionHandle) Get(key []byte, maxSeqno value.SeqNo) (value.Value, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if v, ok := p.mem.Get(key, maxSeqno); ok {
		if v.IsTombstone {
			return value.Value{}, false, nil
		}
		return v, true, nil
	}

	for _, level := range p.levels {
		for _, e := range level {
			v, ok, err := e.Reader.GetAsOf(key, maxSeqno)
			if err != nil {
				return value.Value{}, false, err
			}
			if ok {
				if v.IsTombstone {
					return value.Value{}, false, nil
				}
				return v, true, nil
			}
		}
	}

	return value.Value{}, false, nil
}

// ContainsKey reports whether key has a live (non-tombstone) version
// visible at maxSeqno.
func (p *PartitionHandle) ContainsKey(key []byte, maxSeqno value.SeqNo) (bool, error) {
	_, ok, err := p.Get(key, maxSeqno)
	return ok, err
}

// Latest is a convenience for reads outside a snapshot: it observes
// every write committed so far.
func (p *PartitionHandle) Latest() value.SeqNo { return math.MaxUint64 }

func (p *PartitionHandle) closeSegments() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, level := range p.levels {
		for _, e := range level {
			e.Reader.Close()
		}
	}
}
