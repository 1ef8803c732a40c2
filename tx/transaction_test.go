package tx

import (
	"errors"
	"testing"

	"github.com/fjall-rs/fjall-go/internal/oracle"
)

func TestWriteTransactionReadYourOwnWrites(t *testing.T) {
	ks := openTestKeyspace(t)
	ks.OpenPartition("default")

	wt := ks.WriteTx()
	wt.Insert("default", []byte("k"), []byte("v1"))

	got, ok, err := wt.Get("default", []byte("k"))
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get within write tx = (%s,%v,%v), want v1 (read-your-own-writes)", got, ok, err)
	}

	wt.Remove("default", []byte("k"))
	if _, ok, _ := wt.Get("default", []byte("k")); ok {
		t.Fatalf("expected key to read as absent after buffered Remove")
	}
}

func TestWriteTransactionCommitPublishesWrites(t *testing.T) {
	ks := openTestKeyspace(t)
	p, _ := ks.OpenPartition("default")

	wt := ks.WriteTx()
	wt.Insert("default", []byte("a"), []byte("1"))
	wt.Insert("default", []byte("b"), []byte("2"))
	if err := wt.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for k, want := range map[string]string{"a": "1", "b": "2"} {
		got, ok, err := p.Get([]byte(k))
		if err != nil || !ok || string(got) != want {
			t.Fatalf("Get(%q) = (%s,%v,%v), want %s", k, got, ok, err, want)
		}
	}
}

func TestWriteTransactionRollbackDiscardsWrites(t *testing.T) {
	ks := openTestKeyspace(t)
	p, _ := ks.OpenPartition("default")

	wt := ks.WriteTx()
	wt.Insert("default", []byte("a"), []byte("1"))
	wt.Rollback()

	if _, ok, _ := p.Get([]byte("a")); ok {
		t.Fatalf("expected rolled-back write not to be visible")
	}
}

func TestReadTransactionSnapshotIsStable(t *testing.T) {
	ks := openTestKeyspace(t)
	p, _ := ks.OpenPartition("default")
	p.Insert([]byte("k"), []byte("before"))

	rt := ks.ReadTx()
	defer rt.Close()

	p.Insert([]byte("k"), []byte("after"))

	got, ok, err := rt.Get("default", []byte("k"))
	if err != nil || !ok || string(got) != "before" {
		t.Fatalf("Get through stable read tx = (%s,%v,%v), want before", got, ok, err)
	}

	got2, _, _ := p.Get([]byte("k"))
	if string(got2) != "after" {
		t.Fatalf("direct Get after write = %s, want after", got2)
	}
}

func TestSerializableWriteTransactionDetectsConflict(t *testing.T) {
	ks := openTestKeyspace(t, WithIsolation(Serializable))
	p, _ := ks.OpenPartition("default")
	p.Insert([]byte("k"), []byte("0"))

	wt := ks.WriteTx()
	if _, _, err := wt.Get("default", []byte("k")); err != nil {
		t.Fatalf("Get: %v", err)
	}
	wt.Insert("default", []byte("k"), []byte("1"))

	// A concurrent writer commits a conflicting change to the same key
	// while wt is still open.
	if err := p.Insert([]byte("k"), []byte("concurrent")); err != nil {
		t.Fatalf("concurrent Insert: %v", err)
	}

	if err := wt.Commit(); !errors.Is(err, oracle.ErrConflict) {
		t.Fatalf("Commit() = %v, want oracle.ErrConflict", err)
	}
}

func TestSerializableWriteTransactionDisjointKeysDoNotConflict(t *testing.T) {
	ks := openTestKeyspace(t, WithIsolation(Serializable))
	p, _ := ks.OpenPartition("default")
	p.Insert([]byte("k1"), []byte("0"))
	p.Insert([]byte("k2"), []byte("0"))

	wt := ks.WriteTx()
	if _, _, err := wt.Get("default", []byte("k1")); err != nil {
		t.Fatalf("Get: %v", err)
	}
	wt.Insert("default", []byte("k1"), []byte("1"))

	if err := p.Insert([]byte("k2"), []byte("concurrent")); err != nil {
		t.Fatalf("concurrent Insert: %v", err)
	}

	if err := wt.Commit(); err != nil {
		t.Fatalf("Commit() = %v, want nil (disjoint keys)", err)
	}
}

func TestSerializableCommitWithNoReadsNeverConflicts(t *testing.T) {
	ks := openTestKeyspace(t, WithIsolation(Serializable))
	p, _ := ks.OpenPartition("default")
	p.Insert([]byte("k"), []byte("0"))

	wt := ks.WriteTx()
	wt.Insert("default", []byte("unrelated"), []byte("1"))

	// Concurrent write to k is irrelevant: wt never read k, so its
	// (empty) read-set cannot intersect it.
	if err := p.Insert([]byte("k"), []byte("concurrent")); err != nil {
		t.Fatalf("concurrent Insert: %v", err)
	}

	if err := wt.Commit(); err != nil {
		t.Fatalf("Commit() = %v, want nil (transaction never read the conflicting key)", err)
	}
}
