package sparseindex

import (
	"encoding/binary"
	"os"
	"testing"
)

func TestWriterReaderLookup(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, 64) // small leaf blocks to force multiple leaves
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	keys := []string{"aaa", "bbb", "ccc", "ddd", "eee", "fff", "ggg", "hhh"}
	for i, k := range keys {
		if err := w.RegisterBlock([]byte(k), int64(i*100), uint32(50)); err != nil {
			t.Fatalf("RegisterBlock: %v", err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r, err := OpenReader(dir)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	for i, k := range keys {
		offset, length, ok, err := r.Lookup([]byte(k))
		if err != nil {
			t.Fatalf("Lookup(%q): %v", k, err)
		}
		if !ok {
			t.Fatalf("Lookup(%q): not found", k)
		}
		if offset != int64(i*100) || length != 50 {
			t.Fatalf("Lookup(%q) = (%d,%d), want (%d,50)", k, offset, length, i*100)
		}
	}

	if _, _, ok, _ := r.Lookup([]byte("000")); ok {
		t.Fatalf("expected key before first entry to be absent")
	}
}

func TestCorruptLeafBlockRejected(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, 4096)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.RegisterBlock([]byte("a"), 0, 10); err != nil {
		t.Fatalf("RegisterBlock: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	path := dir + string(os.PathSeparator) + FileName
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Flip the last byte of the leaf block: the leaf starts at offset 0 and
	// ends where the trailer says the top-level block begins, so the
	// top-level block and trailer stay intact and OpenReader succeeds.
	leafEnd := binary.LittleEndian.Uint64(data[len(data)-12:])
	data[leafEnd-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := OpenReader(dir)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if _, _, _, err := r.Lookup([]byte("a")); err == nil {
		t.Fatalf("expected lookup to fail against corrupted leaf block")
	}
}
