package memtable

import (
	"testing"

	"github.com/fjall-rs/fjall-go/internal/value"
)

func TestPutGetSnapshotVisibility(t *testing.T) {
	m := New()

	m.Put(value.New([]byte("k"), []byte("v1"), 1))
	m.Put(value.New([]byte("k"), []byte("v2"), 2))

	got, ok := m.Get([]byte("k"), 1)
	if !ok || string(got.Val) != "v1" {
		t.Fatalf("Get(k, maxSeqno=1) = (%+v,%v), want v1", got, ok)
	}

	got, ok = m.Get([]byte("k"), 2)
	if !ok || string(got.Val) != "v2" {
		t.Fatalf("Get(k, maxSeqno=2) = (%+v,%v), want v2", got, ok)
	}

	got, ok = m.Get([]byte("k"), 10)
	if !ok || string(got.Val) != "v2" {
		t.Fatalf("Get(k, maxSeqno=10) = (%+v,%v), want v2", got, ok)
	}

	if _, ok := m.Get([]byte("missing"), 10); ok {
		t.Fatalf("expected missing key to be absent")
	}
}

func TestAllIsSortedKeyAscSeqnoDesc(t *testing.T) {
	m := New()
	m.Put(value.New([]byte("b"), []byte("1"), 1))
	m.Put(value.New([]byte("a"), []byte("1"), 1))
	m.Put(value.New([]byte("a"), []byte("2"), 2))

	var keys []string
	var seqnos []uint64
	for v := range m.All() {
		keys = append(keys, string(v.Key))
		seqnos = append(seqnos, v.Seqno)
	}

	wantKeys := []string{"a", "a", "b"}
	wantSeqnos := []uint64{2, 1, 1}

	for i := range wantKeys {
		if keys[i] != wantKeys[i] || seqnos[i] != wantSeqnos[i] {
			t.Fatalf("All()[%d] = (%s,%d), want (%s,%d)", i, keys[i], seqnos[i], wantKeys[i], wantSeqnos[i])
		}
	}
}

func TestTombstoneVisibility(t *testing.T) {
	m := New()
	m.Put(value.New([]byte("k"), []byte("v"), 1))
	m.Put(value.NewTombstone([]byte("k"), 2))

	got, ok := m.Get([]byte("k"), 5)
	if !ok || !got.IsTombstone {
		t.Fatalf("expected tombstone to be the visible version, got %+v ok=%v", got, ok)
	}

	got, ok = m.Get([]byte("k"), 1)
	if !ok || got.IsTombstone {
		t.Fatalf("expected pre-tombstone version visible at seqno=1, got %+v ok=%v", got, ok)
	}
}
