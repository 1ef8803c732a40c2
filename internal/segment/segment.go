// Package segment implements the immutable, sorted on-disk run (spec §3,
// §4.3 / C4): the segment writer that streams a caller-sorted sequence of
// values into a segment directory (block stream + sparse index +
// metadata + bloom filter sidecar), and a reader that opens a finalized
// segment directory for point lookups.
package segment

import (
	"bytes"
	"path/filepath"
)

// BlocksFileName and MetaFileName are the well-known file names within a
// segment directory (spec §6).
const (
	BlocksFileName = "blocks"
	MetaFileName   = "meta"
	BloomFileName  = "bloom"

	// DefaultBlockSize and DefaultIndexBlockSize are sane defaults; callers
	// of Writer normally set these explicitly via Options.
	DefaultBlockSize      = 4 * 1024
	DefaultIndexBlockSize = 4 * 1024
)

// Options configures a segment Writer (spec §4.3).
type Options struct {
	Path            string
	EvictTombstones bool
	BlockSize       uint32
	IndexBlockSize  uint32

	// BloomFalsePositiveRate configures the per-segment bloom filter sized
	// for BloomExpectedItems entries. Zero BloomExpectedItems disables the
	// bloom sidecar entirely.
	BloomExpectedItems     uint
	BloomFalsePositiveRate float64
}

// Metadata is the segment-level summary maintained during writing and
// persisted alongside the segment (spec §3).
type Metadata struct {
	FirstKey        []byte `json:"first_key"`
	LastKey         []byte `json:"last_key"`
	LowestSeqno     uint64 `json:"lowest_seqno"`
	HighestSeqno    uint64 `json:"highest_seqno"`
	ItemCount       int    `json:"item_count"`
	TombstoneCount  int    `json:"tombstone_count"`
	UncompressedLen uint64 `json:"uncompressed_size"`
	BlockCount      int    `json:"block_count"`
}

// Empty reports whether the segment holds no records, i.e. no segment
// should be surfaced to the read path (spec §4.3 edge cases).
func (m *Metadata) Empty() bool {
	return m.FirstKey == nil
}

func keyInBounds(m *Metadata, key []byte) bool {
	if m.Empty() {
		return false
	}
	return bytes.Compare(key, m.FirstKey) >= 0 && bytes.Compare(key, m.LastKey) <= 0
}

func dirFile(dir, name string) string {
	return filepath.Join(dir, name)
}
