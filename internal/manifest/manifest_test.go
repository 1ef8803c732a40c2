package manifest

import "testing"

func TestAddListRemoveSegment(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if err := m.AddSegment("default", 0, "seg-1", []byte("meta-1")); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := m.AddSegment("default", 0, "seg-2", []byte("meta-2")); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	ids, err := m.ListSegments("default", 0)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(ids))
	}

	if err := m.RemoveSegment("default", 0, "seg-1"); err != nil {
		t.Fatalf("RemoveSegment: %v", err)
	}
	ids, err = m.ListSegments("default", 0)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(ids) != 1 || ids[0] != "seg-2" {
		t.Fatalf("expected only seg-2 remaining, got %v", ids)
	}
}

func TestDeletePartition(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if err := m.AddSegment("p", 0, "seg-1", nil); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := m.DeletePartition("p"); err != nil {
		t.Fatalf("DeletePartition: %v", err)
	}

	ids, err := m.ListSegments("p", 0)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no segments after delete, got %v", ids)
	}
}
