package segment

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/goccy/go-json"

	"github.com/fjall-rs/fjall-go/internal/block"
	"github.com/fjall-rs/fjall-go/internal/segment/sparseindex"
	"github.com/fjall-rs/fjall-go/internal/value"
)

// Reader opens a finalized segment directory for point lookups and full
// scans. It plays the role of the "MetaIndex" collaborator spec §2/§6
// name as external to the writer: it never mutates the directory.
type Reader struct {
	dir   string
	meta  Metadata
	index *sparseindex.Reader
	block *os.File
	bloom *bloom.BloomFilter
}

// Open reads a segment directory previously produced by Writer.Finalize.
func Open(dir string) (*Reader, error) {
	metaFile, err := os.Open(dirFile(dir, MetaFileName))
	if err != nil {
		return nil, fmt.Errorf("segment: open metadata: %w", err)
	}
	defer metaFile.Close()

	var meta Metadata
	if err := json.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, fmt.Errorf("segment: decode metadata: %w", err)
	}

	r := &Reader{dir: dir, meta: meta}

	if meta.Empty() {
		return r, nil
	}

	index, err := sparseindex.OpenReader(dir)
	if err != nil {
		return nil, err
	}
	r.index = index

	blockFile, err := os.Open(dirFile(dir, BlocksFileName))
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("segment: open block file: %w", err)
	}
	r.block = blockFile

	if bf, err := os.Open(dirFile(dir, BloomFileName)); err == nil {
		defer bf.Close()
		filter := bloom.New(1, 1)
		if _, err := filter.ReadFrom(bf); err == nil {
			r.bloom = filter
		}
	}

	return r, nil
}

// Metadata returns the segment's persisted summary.
func (r *Reader) Metadata() *Metadata { return &r.meta }

// MightContain performs the bloom-filter probe (spec §2's "MetaIndex"
// collaborator consults it before a block read). Returns true when no
// bloom filter was built, per the standard "false positives only" bloom
// contract.
func (r *Reader) MightContain(key []byte) bool {
	if r.bloom == nil {
		return true
	}
	return r.bloom.Test(key)
}

// Get returns the freshest record for key within this segment, i.e. the
// first record for key in (key asc, seqno desc) order within the block
// the sparse index resolves to.
func (r *Reader) Get(key []byte) (value.Value, bool, error) {
	return r.GetAsOf(key, math.MaxUint64)
}

// GetAsOf returns the freshest version of key with seqno <= maxSeqno
// within this segment, i.e. the version visible to a reader holding a
// snapshot at maxSeqno. Versions of a key are contiguous within a block
// in (key asc, seqno desc) order, so this walks that run looking for the
// first one at or below maxSeqno.
func (r *Reader) GetAsOf(key []byte, maxSeqno value.SeqNo) (value.Value, bool, error) {
	if r.meta.Empty() || !keyInBounds(&r.meta, key) || !r.MightContain(key) {
		return value.Value{}, false, nil
	}

	offset, length, ok, err := r.index.Lookup(key)
	if err != nil {
		return value.Value{}, false, err
	}
	if !ok {
		return value.Value{}, false, nil
	}

	records, err := r.readBlock(offset, length)
	if err != nil {
		return value.Value{}, false, err
	}

	for _, rec := range records {
		if bytes.Compare(rec.Key, key) > 0 {
			break
		}
		if bytes.Equal(rec.Key, key) && rec.Seqno <= maxSeqno {
			return rec, true, nil
		}
	}

	return value.Value{}, false, nil
}

func (r *Reader) readBlock(offset int64, length uint32) ([]value.Value, error) {
	framed := make([]byte, length)
	if _, err := r.block.ReadAt(framed, offset); err != nil {
		return nil, fmt.Errorf("segment: read block: %w", err)
	}

	count, payload, err := block.Decode(framed)
	if err != nil {
		return nil, fmt.Errorf("segment: decode block: %w", err)
	}

	reader := bytes.NewReader(payload)
	records := make([]value.Value, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := value.Decode(reader)
		if err != nil {
			return nil, fmt.Errorf("segment: decode record: %w", err)
		}
		records = append(records, v)
	}
	return records, nil
}

// All iterates every record in the segment in on-disk order, for full
// scans (compaction input, test verification).
func (r *Reader) All() ([]value.Value, error) {
	if r.meta.Empty() {
		return nil, nil
	}

	var out []value.Value

	entries, err := r.index.AllEntries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		records, err := r.readBlock(e.Offset, e.Length)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// Close releases underlying file handles.
func (r *Reader) Close() error {
	var firstErr error
	if r.index != nil {
		if err := r.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.block != nil {
		if err := r.block.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
