package journal

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fjall-rs/fjall-go/internal/value"
)

func TestConcurrentAppendsSurviveReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, 4, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := Record{
				Partition: "default",
				Value:     value.New([]byte(fmt.Sprintf("k-%d", i)), []byte(fmt.Sprintf("v-%d", i)), uint64(i)),
			}
			if err := w.Append(rec, Buffer); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(dir)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	seen := map[string]bool{}
	for rec := range r.All() {
		seen[string(rec.Value.Key)] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d records, got %d", n, len(seen))
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	w.Close()

	rec := Record{Partition: "default", Value: value.New([]byte("a"), []byte("1"), 1)}
	if err := w.Append(rec, Buffer); err == nil {
		t.Fatalf("expected error appending after close")
	}
}
