package oracle

import "sync"

// FairMutex is a ticket lock: waiters are admitted in the exact order
// they arrived. The original engine's write_serialize_lock is documented
// as a FairMutex specifically to drain in-flight commits in commit
// order, not to provide mutual exclusion against readers — no pack
// dependency supplies a ticket lock, so it is implemented directly here.
type FairMutex struct {
	mu         sync.Mutex
	cond       *sync.Cond
	nextTicket uint64
	nowServing uint64
}

// NewFairMutex returns an unlocked FairMutex.
func NewFairMutex() *FairMutex {
	m := &FairMutex{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Lock blocks until every waiter that arrived before this call has
// unlocked at least once.
func (m *FairMutex) Lock() {
	m.mu.Lock()
	ticket := m.nextTicket
	m.nextTicket++
	for ticket != m.nowServing {
		m.cond.Wait()
	}
	m.mu.Unlock()
}

// Unlock admits the next waiter in arrival order.
func (m *FairMutex) Unlock() {
	m.mu.Lock()
	m.nowServing++
	m.cond.Broadcast()
	m.mu.Unlock()
}
