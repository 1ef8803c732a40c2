// Package memtable is the active, in-memory, MVCC-ordered table that
// buffers writes between journal append and segment flush. It adapts the
// teacher's generic skip list (memtable/skip_list.go) to this engine's
// fixed key type: every record is a value.Value ordered by
// (key ASC, seqno DESC), so that for a fixed key, newer versions are
// found first — exactly the order a segment.Writer expects its input in.
package memtable

import (
	"iter"
	"math/rand"

	"github.com/fjall-rs/fjall-go/internal/value"
)

const maxLevel = 32

type node struct {
	rec     value.Value
	forward []*node
}

// Memtable is a skip list of value.Value records ordered by
// (key ASC, seqno DESC).
type Memtable struct {
	head        *node
	levels      int
	size        int
	approxBytes uint64
}

// New returns an empty memtable.
func New() *Memtable {
	return &Memtable{
		head:   &node{forward: make([]*node, 1)},
		levels: -1,
	}
}

func randomLevel() int {
	level := 0
	for rand.Int31()&1 == 0 && level < maxLevel {
		level++
	}
	return level
}

func (m *Memtable) growHead(level int) {
	forward := make([]*node, level+1)
	copy(forward, m.head.forward)
	m.head = &node{forward: forward}
	m.levels = level
}

// Put inserts v. Unlike a plain ordered map, a second Put for the same
// key does not overwrite: each (key, seqno) pair is a distinct MVCC
// version, and ordering keeps the newest version first.
func (m *Memtable) Put(v value.Value) {
	newLevel := randomLevel()
	if newLevel > m.levels {
		m.growHead(newLevel)
	}

	updates := make([]*node, m.levels+1)
	x := m.head
	for level := m.levels; level >= 0; level-- {
		for x.forward[level] != nil && value.Less(x.forward[level].rec, v) {
			x = x.forward[level]
		}
		updates[level] = x
	}

	newNode := &node{rec: v, forward: make([]*node, newLevel+1)}
	for level := 0; level <= newLevel; level++ {
		newNode.forward[level] = updates[level].forward[level]
		updates[level].forward[level] = newNode
	}

	m.size++
	m.approxBytes += uint64(v.Size())
}

// Get returns the freshest version of key with seqno <= maxSeqno, i.e.
// the version visible to a reader holding a snapshot at maxSeqno.
func (m *Memtable) Get(key []byte, maxSeqno value.SeqNo) (value.Value, bool) {
	probe := value.Value{Key: key, Seqno: maxSeqno}

	x := m.head
	for level := m.levels; level >= 0; level-- {
		for x.forward[level] != nil && value.Less(x.forward[level].rec, probe) {
			x = x.forward[level]
		}
	}

	cand := x.forward[0]
	if cand != nil && string(cand.rec.Key) == string(key) && cand.rec.Seqno <= maxSeqno {
		return cand.rec, true
	}
	return value.Value{}, false
}

// Len returns the number of distinct (key, seqno) versions stored.
func (m *Memtable) Len() int { return m.size }

// ApproxBytes returns an approximate accounting of buffered record bytes,
// used by the flush trigger.
func (m *Memtable) ApproxBytes() uint64 { return m.approxBytes }

// All iterates every version in (key ASC, seqno DESC) order — exactly
// the order segment.Writer requires.
func (m *Memtable) All() iter.Seq[value.Value] {
	return func(yield func(value.Value) bool) {
		for x := m.head.forward[0]; x != nil; x = x.forward[0] {
			if !yield(x.rec) {
				return
			}
		}
	}
}
