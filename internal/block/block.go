// Package block implements the compressible, CRC-checked batch of sorted
// values that is the unit of I/O within a segment (spec §3, §4.2). A data
// block and a sparse-index block share this exact framing; only the
// payload encoder/decoder differs, so both segment.Writer and
// sparseindex.Writer build on top of this package.
package block

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/pierrec/lz4/v4"
)

// ErrCorrupt is returned when a block's CRC does not match its payload.
var ErrCorrupt = fmt.Errorf("block: checksum mismatch")

// Frame flags: the byte preceding the uncompressed-length header,
// distinguishing an LZ4-compressed body from a raw one.
const (
	flagCompressed byte = 0
	flagRaw        byte = 1
)

// Encode prefixes payload with its record count and CRC (record_count,
// CRC, then the concatenated canonical record bytes — spec §6) and compresses
// it with a length-prefixed LZ4 frame: a 1-byte flag, a 4-byte
// little-endian uncompressed size, and the block body (mirroring the
// original implementation's lz4_flex::compress_prepend_size framing,
// extended with a flag byte since pierrec/lz4, unlike lz4_flex, reports
// incompressible input rather than falling back to a raw store itself).
//
// recordCount is the number of logical entries in payload; payload must
// already contain the concatenated canonical encoding of those entries.
func Encode(recordCount uint32, payload []byte) []byte {
	crc := crc32.ChecksumIEEE(payload)

	staging := make([]byte, 0, 8+len(payload))
	staging = binary.LittleEndian.AppendUint32(staging, recordCount)
	staging = binary.LittleEndian.AppendUint32(staging, crc)
	staging = append(staging, payload...)

	compressed := make([]byte, lz4.CompressBlockBound(len(staging)))
	var c lz4.Compressor
	n, err := c.CompressBlock(staging, compressed)
	if err != nil {
		// CompressBlockBound guarantees capacity; a failure here means a
		// library invariant broke, not a recoverable I/O condition.
		panic(fmt.Sprintf("block: lz4 compress: %v", err))
	}

	// CompressBlock returns n == 0 when staging doesn't compress (high
	// entropy data, or a block too small to benefit) rather than an
	// error. Store the staging bytes uncompressed in that case — leaving
	// the frame as an empty body would silently discard the block.
	if n == 0 {
		out := make([]byte, 5+len(staging))
		out[0] = flagRaw
		binary.LittleEndian.PutUint32(out[1:5], uint32(len(staging)))
		copy(out[5:], staging)
		return out
	}

	out := make([]byte, 5+n)
	out[0] = flagCompressed
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(staging)))
	copy(out[5:], compressed[:n])

	return out
}

// Decode reverses Encode, returning the record count and the validated,
// decompressed payload (record bytes only, with the count/CRC prefix
// stripped).
func Decode(framed []byte) (recordCount uint32, payload []byte, err error) {
	if len(framed) < 5 {
		return 0, nil, fmt.Errorf("block: truncated frame")
	}

	flag := framed[0]
	uncompressedLen := binary.LittleEndian.Uint32(framed[1:5])
	body := framed[5:]

	var staging []byte
	switch flag {
	case flagRaw:
		if uint32(len(body)) < uncompressedLen {
			return 0, nil, fmt.Errorf("block: truncated raw payload")
		}
		staging = body[:uncompressedLen]
	case flagCompressed:
		staging = make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(body, staging)
		if err != nil {
			return 0, nil, fmt.Errorf("block: lz4 decompress: %w", err)
		}
		staging = staging[:n]
	default:
		return 0, nil, fmt.Errorf("block: unknown frame flag %d", flag)
	}

	if len(staging) < 8 {
		return 0, nil, fmt.Errorf("block: truncated payload")
	}

	recordCount = binary.LittleEndian.Uint32(staging[0:4])
	wantCRC := binary.LittleEndian.Uint32(staging[4:8])
	payload = staging[8:]

	if crc32.ChecksumIEEE(payload) != wantCRC {
		return 0, nil, ErrCorrupt
	}

	return recordCount, payload, nil
}
