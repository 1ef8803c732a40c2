package segment

import (
	"bufio"
	"fmt"
	"math"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/fjall-rs/fjall-go/internal/block"
	"github.com/fjall-rs/fjall-go/internal/segment/sparseindex"
	"github.com/fjall-rs/fjall-go/internal/value"
)

// blockWriterBufSize is the minimum buffered-writer capacity for the
// block stream (spec §4.3: "buffer ≥ 512 KiB").
const blockWriterBufSize = 512 * 1024

// Writer streams a caller-sorted sequence of Values into one immutable
// segment directory (spec §4.3 / C4). The caller must present values in
// non-decreasing (key, seqno desc) order; the writer never re-sorts.
type Writer struct {
	opts   Options
	logger *zap.Logger

	blockFile   *os.File
	blockWriter *bufio.Writer
	indexWriter *sparseindex.Writer
	bloom       *bloom.BloomFilter

	chunk     []value.Value
	chunkSize int

	blockCount       int
	writtenItemCount int
	filePos          int64
	uncompressedSize uint64

	meta Metadata

	poisoned bool
}

// NewWriter creates opts.Path and opens the block file and sparse index
// writer rooted there.
func NewWriter(opts Options, logger *zap.Logger) (*Writer, error) {
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.IndexBlockSize == 0 {
		opts.IndexBlockSize = DefaultIndexBlockSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("segment: create dir: %w", err)
	}

	f, err := os.Create(dirFile(opts.Path, BlocksFileName))
	if err != nil {
		return nil, fmt.Errorf("segment: create block file: %w", err)
	}

	indexWriter, err := sparseindex.NewWriter(opts.Path, int(opts.IndexBlockSize))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: create index writer: %w", err)
	}

	var filter *bloom.BloomFilter
	if opts.BloomExpectedItems > 0 {
		fp := opts.BloomFalsePositiveRate
		if fp <= 0 {
			fp = 0.01
		}
		filter = bloom.NewWithEstimates(opts.BloomExpectedItems, fp)
	}

	return &Writer{
		opts:        opts,
		logger:      logger,
		blockFile:   f,
		blockWriter: bufio.NewWriterSize(f, blockWriterBufSize),
		indexWriter: indexWriter,
		bloom:       filter,
		meta:        Metadata{LowestSeqno: math.MaxUint64},
	}, nil
}

// writeBlock flushes the current chunk through the value-block framing
// (spec §4.2), registers it in the sparse index at its pre-write file
// offset, and resets the chunk.
func (w *Writer) writeBlock() error {
	if len(w.chunk) == 0 {
		return nil
	}

	var uncompressed uint64
	payload := make([]byte, 0, 4096)
	for _, item := range w.chunk {
		uncompressed += uint64(item.Size())
		payload = append(payload, encodeValue(item)...)
	}
	w.uncompressedSize += uncompressed

	framed := block.Encode(uint32(len(w.chunk)), payload)

	if _, err := w.blockWriter.Write(framed); err != nil {
		return fmt.Errorf("segment: write block: %w", err)
	}

	firstKey := w.chunk[0].Key
	if err := w.indexWriter.RegisterBlock(firstKey, w.filePos, uint32(len(framed))); err != nil {
		return fmt.Errorf("segment: register block in index: %w", err)
	}

	w.logger.Debug("written data block",
		zap.Int64("offset", w.filePos),
		zap.Int("compressed_bytes", len(framed)),
		zap.Uint64("uncompressed_bytes", uncompressed),
	)

	w.filePos += int64(len(framed))
	w.writtenItemCount += len(w.chunk)
	w.blockCount++
	w.chunk = w.chunk[:0]
	w.chunkSize = 0

	return nil
}

func encodeValue(v value.Value) []byte {
	var buf writeBuf
	_ = v.Encode(&buf)
	return buf.b
}

// writeBuf is a minimal io.Writer-compatible byte accumulator, avoiding a
// bytes.Buffer allocation per record.
type writeBuf struct{ b []byte }

func (w *writeBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// Write accepts one value in the caller's sort order (spec §4.3 write
// contract).
func (w *Writer) Write(v value.Value) error {
	if w.poisoned {
		return fmt.Errorf("segment: writer is poisoned by a previous error")
	}

	if v.IsTombstone && w.opts.EvictTombstones {
		return nil
	}

	w.chunk = append(w.chunk, v)
	w.chunkSize += v.Size()

	if uint32(w.chunkSize) >= w.opts.BlockSize {
		if err := w.writeBlock(); err != nil {
			w.poisoned = true
			return err
		}
	}

	if w.meta.FirstKey == nil {
		w.meta.FirstKey = append([]byte(nil), v.Key...)
	}
	w.meta.LastKey = append([]byte(nil), v.Key...)

	if v.Seqno < w.meta.LowestSeqno {
		w.meta.LowestSeqno = v.Seqno
	}
	if v.Seqno > w.meta.HighestSeqno {
		w.meta.HighestSeqno = v.Seqno
	}
	if v.IsTombstone {
		w.meta.TombstoneCount++
	}

	if w.bloom != nil {
		w.bloom.Add(v.Key)
	}

	return nil
}

// Finalize flushes any buffered chunk, finalizes the sparse index, syncs
// the block file, writes the bloom sidecar and metadata file, and emits a
// debug trace (spec §4.3 finalization).
//
// Failure at any point leaves the writer poisoned: no partial segment may
// be surfaced to the read path.
func (w *Writer) Finalize() (*Metadata, error) {
	if w.poisoned {
		return nil, fmt.Errorf("segment: writer is poisoned, refusing to finalize")
	}

	if err := w.writeBlock(); err != nil {
		w.poisoned = true
		return nil, err
	}

	if err := w.indexWriter.Finalize(); err != nil {
		w.poisoned = true
		return nil, fmt.Errorf("segment: finalize index: %w", err)
	}

	if err := w.blockWriter.Flush(); err != nil {
		w.poisoned = true
		return nil, fmt.Errorf("segment: flush block writer: %w", err)
	}
	if err := w.blockFile.Sync(); err != nil {
		w.poisoned = true
		return nil, fmt.Errorf("segment: fsync block file: %w", err)
	}
	if err := w.blockFile.Close(); err != nil {
		w.poisoned = true
		return nil, fmt.Errorf("segment: close block file: %w", err)
	}

	if err := w.writeBloomSidecar(); err != nil {
		w.poisoned = true
		return nil, err
	}

	w.meta.ItemCount = w.writtenItemCount
	w.meta.BlockCount = w.blockCount
	w.meta.UncompressedLen = w.uncompressedSize

	if err := w.writeMetadata(); err != nil {
		w.poisoned = true
		return nil, err
	}

	w.logger.Debug("finalized segment",
		zap.Int("item_count", w.meta.ItemCount),
		zap.Int("block_count", w.meta.BlockCount),
		zap.Float64("bytes_written_mib", float64(w.filePos)/(1024*1024)),
	)

	return &w.meta, nil
}

func (w *Writer) writeBloomSidecar() error {
	if w.bloom == nil {
		return nil
	}

	f, err := os.Create(dirFile(w.opts.Path, BloomFileName))
	if err != nil {
		return fmt.Errorf("segment: create bloom sidecar: %w", err)
	}
	defer f.Close()

	if _, err := w.bloom.WriteTo(f); err != nil {
		return fmt.Errorf("segment: write bloom sidecar: %w", err)
	}
	return f.Sync()
}

func (w *Writer) writeMetadata() error {
	tmp := dirFile(w.opts.Path, MetaFileName+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("segment: create metadata file: %w", err)
	}

	enc := json.NewEncoder(f)
	if err := enc.Encode(&w.meta); err != nil {
		f.Close()
		return fmt.Errorf("segment: encode metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("segment: fsync metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	// Renaming into place is the publication point: a reader never
	// observes a metadata file mid-write.
	if err := os.Rename(tmp, dirFile(w.opts.Path, MetaFileName)); err != nil {
		return fmt.Errorf("segment: publish metadata: %w", err)
	}
	return nil
}
