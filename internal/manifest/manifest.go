// Package manifest persists the segment listing and level assignment for
// every partition in a keyspace (spec §6: "a manifest (segment listing
// and levels)"). It is backed by bbolt: one bucket per partition, one
// nested bucket per level, segment directory name -> metadata bytes.
package manifest

import (
	"fmt"
	"path/filepath"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// FileName is the manifest database's file name within a keyspace
// directory.
const FileName = "manifest.db"

// Manifest is the durable record of which segments exist, and at which
// level, for every partition.
type Manifest struct {
	db *bolt.DB
}

// Open opens (creating if absent) the manifest database inside dir.
func Open(dir string) (*Manifest, error) {
	db, err := bolt.Open(filepath.Join(dir, FileName), 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: open: %w", err)
	}
	return &Manifest{db: db}, nil
}

func levelBucketName(level int) []byte {
	return []byte(strconv.Itoa(level))
}

// AddSegment registers a segment at (partition, level), storing meta as
// an opaque blob (typically the segment's JSON metadata).
func (m *Manifest) AddSegment(partition string, level int, segmentID string, meta []byte) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		pb, err := tx.CreateBucketIfNotExists([]byte(partition))
		if err != nil {
			return err
		}
		lb, err := pb.CreateBucketIfNotExists(levelBucketName(level))
		if err != nil {
			return err
		}
		return lb.Put([]byte(segmentID), meta)
	})
}

// RemoveSegment removes a segment's manifest entry, e.g. after
// compaction has superseded it.
func (m *Manifest) RemoveSegment(partition string, level int, segmentID string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		pb := tx.Bucket([]byte(partition))
		if pb == nil {
			return nil
		}
		lb := pb.Bucket(levelBucketName(level))
		if lb == nil {
			return nil
		}
		return lb.Delete([]byte(segmentID))
	})
}

// ListSegments returns every segment ID registered at (partition, level).
func (m *Manifest) ListSegments(partition string, level int) ([]string, error) {
	var ids []string
	err := m.db.View(func(tx *bolt.Tx) error {
		pb := tx.Bucket([]byte(partition))
		if pb == nil {
			return nil
		}
		lb := pb.Bucket(levelBucketName(level))
		if lb == nil {
			return nil
		}
		return lb.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// DeletePartition drops every manifest entry for partition.
func (m *Manifest) DeletePartition(partition string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(partition)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(partition))
	})
}

// ListPartitions returns every partition with at least one manifest
// bucket (i.e. every partition that has ever held a segment).
func (m *Manifest) ListPartitions() ([]string, error) {
	var names []string
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// Close releases the underlying database file.
func (m *Manifest) Close() error {
	return m.db.Close()
}
