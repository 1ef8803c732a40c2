package segment

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/fjall-rs/fjall-go/internal/value"
)

func writeSegment(t *testing.T, dir string, items []value.Value, evict bool) *Metadata {
	t.Helper()

	w, err := NewWriter(Options{
		Path:                   dir,
		EvictTombstones:        evict,
		BlockSize:              4096,
		IndexBlockSize:         4096,
		BloomExpectedItems:     uint(len(items) + 1),
		BloomFalsePositiveRate: 0.01,
	}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	for _, it := range items {
		if err := w.Write(it); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	meta, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return meta
}

// TestSegmentRoundTrip exercises spec §8 property 2 at a scale suitable
// for a unit test (S1 describes the full 8M-key scenario).
func TestSegmentRoundTrip(t *testing.T) {
	dir := t.TempDir()

	const n = 5000
	items := make([]value.Value, n)
	for i := 0; i < n; i++ {
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], uint64(i))
		val := make([]byte, 21)
		rand.New(rand.NewSource(int64(i))).Read(val)
		items[i] = value.New(key[:], val, uint64(1000+i))
	}

	meta := writeSegment(t, dir, items, false)

	if !bytes.Equal(meta.FirstKey, items[0].Key) {
		t.Fatalf("first key mismatch")
	}
	if !bytes.Equal(meta.LastKey, items[n-1].Key) {
		t.Fatalf("last key mismatch")
	}
	if meta.LowestSeqno != items[0].Seqno || meta.HighestSeqno != items[n-1].Seqno {
		t.Fatalf("seqno range mismatch: got [%d,%d]", meta.LowestSeqno, meta.HighestSeqno)
	}
	if meta.ItemCount != n {
		t.Fatalf("item count = %d, want %d", meta.ItemCount, n)
	}

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for i := 0; i < n; i++ {
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], uint64(i))

		got, ok, err := r.Get(key[:])
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("Get(%d): not found", i)
		}
		if !bytes.Equal(got.Val, items[i].Val) {
			t.Fatalf("Get(%d): value mismatch", i)
		}
	}

	// Keys outside [first_key, last_key] must be reported absent.
	outOfRange := make([]byte, 8)
	binary.BigEndian.PutUint64(outOfRange, uint64(n+1000))
	if _, ok, err := r.Get(outOfRange); err != nil || ok {
		t.Fatalf("Get(out of range) = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	all, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != n {
		t.Fatalf("All() returned %d records, want %d", len(all), n)
	}
	for i, rec := range all {
		if !bytes.Equal(rec.Key, items[i].Key) {
			t.Fatalf("All()[%d] key mismatch", i)
		}
	}
}

// TestEvictTombstones mirrors spec scenario S2.
func TestEvictTombstones(t *testing.T) {
	dir := t.TempDir()

	items := []value.Value{
		value.New([]byte("a"), []byte("x"), 1),
		value.NewTombstone([]byte("a"), 2),
		value.New([]byte("b"), []byte("y"), 1),
	}

	writeSegment(t, dir, items, true)

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	all, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 surviving records, got %d", len(all))
	}
	if !bytes.Equal(all[0].Key, []byte("a")) || !bytes.Equal(all[0].Val, []byte("x")) {
		t.Fatalf("unexpected first record: %+v", all[0])
	}
	if !bytes.Equal(all[1].Key, []byte("b")) || !bytes.Equal(all[1].Val, []byte("y")) {
		t.Fatalf("unexpected second record: %+v", all[1])
	}
}

func TestTombstoneKeptWhenNotEvicted(t *testing.T) {
	dir := t.TempDir()

	items := []value.Value{
		value.New([]byte("a"), []byte("x"), 1),
		value.NewTombstone([]byte("a"), 2),
	}

	meta := writeSegment(t, dir, items, false)
	if meta.TombstoneCount != 1 {
		t.Fatalf("tombstone_count = %d, want 1", meta.TombstoneCount)
	}

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	all, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records including tombstone, got %d", len(all))
	}
	if !all[1].IsTombstone {
		t.Fatalf("expected second record to be the tombstone")
	}
}

func TestEmptySegmentIsMarkedEmpty(t *testing.T) {
	dir := t.TempDir()

	meta := writeSegment(t, dir, nil, false)
	if !meta.Empty() {
		t.Fatalf("expected empty segment metadata")
	}

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, ok, err := r.Get([]byte("anything")); err != nil || ok {
		t.Fatalf("Get on empty segment = (_, %v, %v)", ok, err)
	}
}

func TestWriterPoisonedAfterFinalize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Options{Path: dir, BlockSize: 4096, IndexBlockSize: 4096}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Write(value.New([]byte("a"), []byte("b"), 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := w.Finalize(); err == nil {
		t.Fatalf("expected error finalizing an already-finalized writer")
	}
}
