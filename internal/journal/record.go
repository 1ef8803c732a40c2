// Package journal implements the write-ahead log shared by every
// partition in a keyspace. Journal rotation and recovery policy are a
// stand-alone subsystem out of the core's scope (spec §1); this package
// gives the core a minimal, working collaborator to append to and
// recover from, in the teacher's async-writer idiom.
package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/fjall-rs/fjall-go/internal/value"
)

// InvalidCRC marks an unwritten (all-ones, 0xFF-filled) trailing record slot, the
// same sentinel the teacher's WAL uses to recognize a torn write at the
// tail of the file.
const InvalidCRC = uint32(0xFFFFFFFF)

// MaxRecordSize bounds a single journal record.
const MaxRecordSize = 16 << 20 // 16MiB

// ErrCorrupt is returned when a record's CRC does not match its payload.
var ErrCorrupt = fmt.Errorf("journal: corrupt record")

// Record is one journal entry: a partition-scoped value write.
type Record struct {
	Partition string
	Value     value.Value
}

// Encode writes the binary format:
//
//	CRC(4) | TOTAL_LEN(4) | PART_LEN(4) | PARTITION | SEQNO(8) | TYPE(1) | KEY_LEN(4) | KEY | VAL_LEN(4) | VALUE
//
// CRC covers TOTAL_LEN and everything after it, following the teacher's
// wal.go framing.
func (r Record) Encode(w io.Writer) error {
	partBytes := []byte(r.Partition)
	keyLen := uint32(len(r.Value.Key))
	val := r.Value.Val
	if r.Value.IsTombstone {
		val = nil
	}
	valLen := uint32(len(val))

	payloadLen := 4 + uint32(len(partBytes)) + 8 + 1 + 4 + keyLen + 4 + valLen
	totalLen := 4 + payloadLen

	if totalLen > MaxRecordSize {
		return fmt.Errorf("journal: record too large (%d bytes)", totalLen)
	}

	var body []byte
	body = binary.LittleEndian.AppendUint32(body, totalLen)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(partBytes)))
	body = append(body, partBytes...)
	body = binary.BigEndian.AppendUint64(body, r.Value.Seqno)
	tombstoneFlag := byte(0)
	if r.Value.IsTombstone {
		tombstoneFlag = 1
	}
	body = append(body, tombstoneFlag)
	body = binary.LittleEndian.AppendUint32(body, keyLen)
	body = append(body, r.Value.Key...)
	body = binary.LittleEndian.AppendUint32(body, valLen)
	body = append(body, val...)

	crc := crc32.ChecksumIEEE(body)

	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	if _, err := w.Write(crcBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

func cleanEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

// Decode reads one record previously written by Encode.
func Decode(r io.Reader) (Record, error) {
	var storedCRC uint32
	if err := binary.Read(r, binary.LittleEndian, &storedCRC); err != nil {
		return Record{}, cleanEOF(err)
	}
	if storedCRC == InvalidCRC {
		return Record{}, io.EOF
	}

	var totalLen uint32
	if err := binary.Read(r, binary.LittleEndian, &totalLen); err != nil {
		return Record{}, cleanEOF(err)
	}
	if totalLen > MaxRecordSize || totalLen < 9 {
		return Record{}, ErrCorrupt
	}

	body := make([]byte, totalLen)
	binary.LittleEndian.PutUint32(body[0:4], totalLen)
	if _, err := io.ReadFull(r, body[4:]); err != nil {
		return Record{}, cleanEOF(err)
	}

	if crc32.ChecksumIEEE(body) != storedCRC {
		return Record{}, ErrCorrupt
	}

	pos := 4
	partLen := binary.LittleEndian.Uint32(body[pos:])
	pos += 4
	if uint32(pos)+partLen > uint32(len(body)) {
		return Record{}, ErrCorrupt
	}
	partition := string(body[pos : pos+int(partLen)])
	pos += int(partLen)

	if pos+9 > len(body) {
		return Record{}, ErrCorrupt
	}
	seqno := binary.BigEndian.Uint64(body[pos:])
	pos += 8
	isTombstone := body[pos] == 1
	pos++

	keyLen := binary.LittleEndian.Uint32(body[pos:])
	pos += 4
	if uint32(pos)+keyLen > uint32(len(body)) {
		return Record{}, ErrCorrupt
	}
	key := append([]byte(nil), body[pos:pos+int(keyLen)]...)
	pos += int(keyLen)

	valLen := binary.LittleEndian.Uint32(body[pos:])
	pos += 4
	if uint32(pos)+valLen > uint32(len(body)) {
		return Record{}, ErrCorrupt
	}
	val := append([]byte(nil), body[pos:pos+int(valLen)]...)

	return Record{
		Partition: partition,
		Value: value.Value{
			Key:         key,
			Val:         val,
			Seqno:       seqno,
			IsTombstone: isTombstone,
		},
	}, nil
}
