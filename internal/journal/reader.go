package journal

import (
	"io"
	"iter"
	"os"
	"path/filepath"
)

// Reader replays a journal file from the start, used for recovery.
type Reader struct {
	f *os.File
}

// OpenReader opens the journal file inside dir for sequential reading.
func OpenReader(dir string) (*Reader, error) {
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Reader{f: f}, nil
}

// Read returns the next record, or io.EOF once the file is exhausted.
func (r *Reader) Read() (Record, error) {
	return Decode(r.f)
}

// All replays every record in the journal in append order, stopping at
// the first corrupt or torn record (recovery truncates there rather than
// failing the open, matching a crash mid-append).
func (r *Reader) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for {
			rec, err := r.Read()
			if err != nil {
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Reset rewinds to the start of the journal.
func (r *Reader) Reset() error {
	_, err := r.f.Seek(0, io.SeekStart)
	return err
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
