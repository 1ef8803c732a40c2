// Package sparseindex implements the segment's two-level sparse block
// index (spec §4.4 / C5): a streaming writer that buffers
// (first_key, offset, length) tuples into fixed-size leaf index blocks,
// plus a top-level block listing the first key of each leaf block so a
// lookup can locate any data block in O(log n). Both levels reuse the
// block package's CRC+LZ4 framing, exactly like a data block.
package sparseindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fjall-rs/fjall-go/internal/block"
)

// Entry is one (first_key, offset, length) tuple, either pointing at a
// data block (leaf entries) or at a leaf index block (top-level entries).
type Entry struct {
	FirstKey []byte
	Offset   int64
	Length   uint32
}

func encodeEntries(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(e.FirstKey)))
		buf.Write(hdr[:])
		buf.Write(e.FirstKey)

		var off [8]byte
		binary.LittleEndian.PutUint64(off[:], uint64(e.Offset))
		buf.Write(off[:])

		var ln [4]byte
		binary.LittleEndian.PutUint32(ln[:], e.Length)
		buf.Write(ln[:])
	}
	return buf.Bytes()
}

func decodeEntries(payload []byte, count uint32) ([]Entry, error) {
	entries := make([]Entry, 0, count)
	pos := 0
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(payload) {
			return nil, fmt.Errorf("sparseindex: truncated entry")
		}
		keyLen := int(binary.LittleEndian.Uint32(payload[pos:]))
		pos += 4
		if pos+keyLen > len(payload) {
			return nil, fmt.Errorf("sparseindex: truncated key")
		}
		key := append([]byte(nil), payload[pos:pos+keyLen]...)
		pos += keyLen

		if pos+12 > len(payload) {
			return nil, fmt.Errorf("sparseindex: truncated offset/length")
		}
		offset := int64(binary.LittleEndian.Uint64(payload[pos:]))
		pos += 8
		length := binary.LittleEndian.Uint32(payload[pos:])
		pos += 4

		entries = append(entries, Entry{FirstKey: key, Offset: offset, Length: length})
	}
	return entries, nil
}

// FileName is the sparse index's file name within a segment directory.
const FileName = "index"

// Writer streams (first_key, offset, length) tuples into leaf index
// blocks of approximately indexBlockSize bytes, and builds the top-level
// block on Finalize. It is exclusively owned by one segment.Writer.
type Writer struct {
	f               *os.File
	indexBlockSize  int
	leaf            []Entry
	leafSize        int
	filePos         int64
	topLevel        []Entry
}

// NewWriter creates the index file inside dir.
func NewWriter(dir string, indexBlockSize int) (*Writer, error) {
	f, err := os.Create(dir + string(os.PathSeparator) + FileName)
	if err != nil {
		return nil, fmt.Errorf("sparseindex: create index file: %w", err)
	}
	return &Writer{f: f, indexBlockSize: indexBlockSize}, nil
}

// RegisterBlock adds one data-block pointer to the index. firstKey must be
// the data block's first (and identifying) key.
func (w *Writer) RegisterBlock(firstKey []byte, offset int64, length uint32) error {
	keyCopy := append([]byte(nil), firstKey...)
	w.leaf = append(w.leaf, Entry{FirstKey: keyCopy, Offset: offset, Length: length})
	w.leafSize += 4 + len(keyCopy) + 8 + 4

	if w.leafSize >= w.indexBlockSize {
		return w.flushLeaf()
	}
	return nil
}

func (w *Writer) flushLeaf() error {
	if len(w.leaf) == 0 {
		return nil
	}

	framed := block.Encode(uint32(len(w.leaf)), encodeEntries(w.leaf))

	firstKey := w.leaf[0].FirstKey
	if _, err := w.f.Write(framed); err != nil {
		return fmt.Errorf("sparseindex: write leaf block: %w", err)
	}

	w.topLevel = append(w.topLevel, Entry{
		FirstKey: firstKey,
		Offset:   w.filePos,
		Length:   uint32(len(framed)),
	})

	w.filePos += int64(len(framed))
	w.leaf = nil
	w.leafSize = 0

	return nil
}

// Finalize flushes any buffered leaf entries, writes the top-level block
// and an 12-byte trailer (top-level offset + length), and fsyncs.
func (w *Writer) Finalize() error {
	if err := w.flushLeaf(); err != nil {
		return err
	}

	topOffset := w.filePos
	var topFramed []byte
	if len(w.topLevel) > 0 {
		topFramed = block.Encode(uint32(len(w.topLevel)), encodeEntries(w.topLevel))
		if _, err := w.f.Write(topFramed); err != nil {
			return fmt.Errorf("sparseindex: write top-level block: %w", err)
		}
	}

	var trailer [12]byte
	binary.LittleEndian.PutUint64(trailer[0:8], uint64(topOffset))
	binary.LittleEndian.PutUint32(trailer[8:12], uint32(len(topFramed)))
	if _, err := w.f.Write(trailer[:]); err != nil {
		return fmt.Errorf("sparseindex: write trailer: %w", err)
	}

	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sparseindex: fsync: %w", err)
	}

	return w.f.Close()
}

// Reader resolves a key to the data block that may contain it.
type Reader struct {
	f        *os.File
	topLevel []Entry
}

// OpenReader opens an index file previously written by Writer.
func OpenReader(dir string) (*Reader, error) {
	f, err := os.Open(dir + string(os.PathSeparator) + FileName)
	if err != nil {
		return nil, fmt.Errorf("sparseindex: open index file: %w", err)
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}

	if size < 12 {
		// Empty segment: no blocks were ever written.
		return &Reader{f: f}, nil
	}

	trailer := make([]byte, 12)
	if _, err := f.ReadAt(trailer, size-12); err != nil {
		f.Close()
		return nil, fmt.Errorf("sparseindex: read trailer: %w", err)
	}
	topOffset := int64(binary.LittleEndian.Uint64(trailer[0:8]))
	topLength := binary.LittleEndian.Uint32(trailer[8:12])

	r := &Reader{f: f}

	if topLength > 0 {
		framed := make([]byte, topLength)
		if _, err := f.ReadAt(framed, topOffset); err != nil {
			f.Close()
			return nil, fmt.Errorf("sparseindex: read top-level block: %w", err)
		}
		count, payload, err := block.Decode(framed)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("sparseindex: decode top-level block: %w", err)
		}
		entries, err := decodeEntries(payload, count)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.topLevel = entries
	}

	return r, nil
}

// Lookup returns the (offset, length) of the data block that would
// contain key, or ok=false if key is provably absent from the segment
// (outside the span covered by the index).
func (r *Reader) Lookup(key []byte) (offset int64, length uint32, ok bool, err error) {
	if len(r.topLevel) == 0 {
		return 0, 0, false, nil
	}

	// Largest top-level entry whose FirstKey <= key identifies the leaf
	// that may hold the data-block pointer for key.
	i := sort.Search(len(r.topLevel), func(i int) bool {
		return bytes.Compare(r.topLevel[i].FirstKey, key) > 0
	})
	if i == 0 {
		return 0, 0, false, nil
	}
	leafPtr := r.topLevel[i-1]

	framed := make([]byte, leafPtr.Length)
	if _, err := r.f.ReadAt(framed, leafPtr.Offset); err != nil {
		return 0, 0, false, fmt.Errorf("sparseindex: read leaf block: %w", err)
	}
	count, payload, err := block.Decode(framed)
	if err != nil {
		return 0, 0, false, fmt.Errorf("sparseindex: decode leaf block: %w", err)
	}
	entries, err := decodeEntries(payload, count)
	if err != nil {
		return 0, 0, false, err
	}

	j := sort.Search(len(entries), func(j int) bool {
		return bytes.Compare(entries[j].FirstKey, key) > 0
	})
	if j == 0 {
		return 0, 0, false, nil
	}
	hit := entries[j-1]
	return hit.Offset, hit.Length, true, nil
}

// AllEntries returns the data-block pointers from every leaf block, in
// file order, for a full segment scan.
func (r *Reader) AllEntries() ([]Entry, error) {
	var out []Entry
	for _, leafPtr := range r.topLevel {
		framed := make([]byte, leafPtr.Length)
		if _, err := r.f.ReadAt(framed, leafPtr.Offset); err != nil {
			return nil, fmt.Errorf("sparseindex: read leaf block: %w", err)
		}
		count, payload, err := block.Decode(framed)
		if err != nil {
			return nil, fmt.Errorf("sparseindex: decode leaf block: %w", err)
		}
		entries, err := decodeEntries(payload, count)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
