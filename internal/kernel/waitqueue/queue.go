// Package waitqueue implements the priority-ordered waiting-thread queue
// shared by every kernel synchronization primitive.
//
// Ordering:
//   - OrderPriority: lower numeric priority dequeues first; equal priorities
//     dequeue in arrival order
//   - OrderFIFO: arrival order only
//
// Arrival order is an explicit monotonically increasing sequence number used
// as the secondary key, so ties never depend on heap layout.
//
// Performance:
//   - Push / Pop: O(log n)
//   - Remove / Find: O(n) scan, then O(log n) fix-up
//
// Waiter counts per primitive are small in practice, so the linear scans are
// a scalability concern rather than a correctness one.
//
// Thread Safety: NOT safe for concurrent use. Every Queue is owned by one
// primitive and only touched under that primitive's lock.
package waitqueue

import (
	"container/heap"
	"sort"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// Order selects how waiters are released.
type Order uint8

const (
	// OrderPriority releases by numeric priority, FIFO among equals.
	OrderPriority Order = iota
	// OrderFIFO releases strictly in arrival order.
	OrderFIFO
)

// String returns the string representation of an Order.
func (o Order) String() string {
	switch o {
	case OrderPriority:
		return "priority"
	case OrderFIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

type entryState uint8

const (
	stateQueued entryState = iota
	stateWoken
	stateRemoved
)

// Entry is one waiting thread (WaitingThreadData).
//
// Layout:
//   - Thread: non-owning reference to the waiting thread
//   - Priority: priority captured at enqueue time
//   - Payload: primitive-specific wait data
//   - seq: arrival sequence number (secondary sort key)
//   - index: heap position, -1 once the entry left the queue
//   - state: queued / woken / removed; set once under the owner's lock
//   - ready: closed exactly once when the entry is woken
type Entry struct {
	Thread   *thread.ThreadState
	Priority int32
	Payload  Payload

	seq   uint64
	index int
	state entryState
	err   error
	ready chan struct{}
}

// Ready returns a channel closed when the entry is woken.
func (e *Entry) Ready() <-chan struct{} {
	return e.ready
}

// Woken reports whether a waker consumed this entry.
func (e *Entry) Woken() bool {
	return e.state == stateWoken
}

// Err returns the result the waker delivered (nil for a normal wake).
func (e *Entry) Err() error {
	return e.err
}

// Queued reports whether the entry is still waiting in its queue.
func (e *Entry) Queued() bool {
	return e.state == stateQueued
}

// wake marks the entry consumed and releases its thread.
func (e *Entry) wake(err error) {
	if e.state == stateWoken {
		panic("waitqueue: entry woken twice")
	}
	e.state = stateWoken
	e.err = err
	close(e.ready)
}

// Queue is the WaitingThreadQueue.
//
// Invariant: at most one entry per thread. A thread is blocked while its
// entry is queued, so a second Push for the same thread is an emulator
// defect and panics.
type Queue struct {
	order   Order
	nextSeq uint64
	h       entryHeap
}

// New creates an empty queue with the given release order.
func New(order Order) *Queue {
	q := &Queue{order: order}
	q.h.order = order
	return q
}

// Order returns the release order the queue was created with.
func (q *Queue) Order() Order {
	return q.order
}

// Len returns the number of queued waiters.
func (q *Queue) Len() int {
	return len(q.h.entries)
}

// Push enqueues t with the given priority and payload.
func (q *Queue) Push(t *thread.ThreadState, priority int32, p Payload) *Entry {
	if q.Find(t) != nil {
		panic("waitqueue: thread " + t.ID.String() + " queued twice")
	}
	e := &Entry{
		Thread:   t,
		Priority: priority,
		Payload:  p,
		seq:      q.nextSeq,
		ready:    make(chan struct{}),
	}
	q.nextSeq++
	heap.Push(&q.h, e)
	return e
}

// Peek returns the next waiter to be released without removing it.
func (q *Queue) Peek() *Entry {
	if len(q.h.entries) == 0 {
		return nil
	}
	return q.h.entries[0]
}

// Pop removes and returns the next waiter to be released, or nil.
// The entry is not woken; the caller decides the outcome with Wake.
func (q *Queue) Pop() *Entry {
	if len(q.h.entries) == 0 {
		return nil
	}
	e := heap.Pop(&q.h).(*Entry)
	return e
}

// PopLive pops the next waiter whose thread is still alive. Waiters of
// exited threads encountered on the way are released with ErrThreadExited.
func (q *Queue) PopLive() *Entry {
	for {
		e := q.Pop()
		if e == nil {
			return nil
		}
		if e.Thread.Alive() {
			return e
		}
		e.wake(kerr.ErrThreadExited)
	}
}

// Wake removes e from the queue if it is still there and releases its
// thread with err (nil for a successful wait).
func (q *Queue) Wake(e *Entry, err error) {
	if e.index >= 0 && e.state == stateQueued {
		heap.Remove(&q.h, e.index)
	}
	e.wake(err)
}

// Remove takes t's entry out of the queue without waking it. It is a no-op
// returning false when t is not queued.
func (q *Queue) Remove(t *thread.ThreadState) bool {
	e := q.Find(t)
	if e == nil {
		return false
	}
	return q.RemoveEntry(e)
}

// RemoveEntry takes e out of the queue without waking it (timeout or
// cancellation path). Returns false if e already left the queue.
func (q *Queue) RemoveEntry(e *Entry) bool {
	if e.state != stateQueued || e.index < 0 {
		return false
	}
	heap.Remove(&q.h, e.index)
	e.state = stateRemoved
	return true
}

// Find returns t's entry, or nil.
func (q *Queue) Find(t *thread.ThreadState) *Entry {
	for _, e := range q.h.entries {
		if e.Thread == t {
			return e
		}
	}
	return nil
}

// FindID returns the entry of the thread with the given UID, or nil.
func (q *Queue) FindID(id uid.UID) *Entry {
	for _, e := range q.h.entries {
		if e.Thread.ID == id {
			return e
		}
	}
	return nil
}

// Sorted returns the queued entries in release order. The slice is a copy;
// waking entries while iterating over it is safe.
func (q *Queue) Sorted() []*Entry {
	out := make([]*Entry, len(q.h.entries))
	copy(out, q.h.entries)
	sort.Slice(out, func(i, j int) bool { return q.h.before(out[i], out[j]) })
	return out
}

// Prune releases every waiter whose thread has exited with ErrThreadExited.
// Returns the number of pruned entries.
func (q *Queue) Prune() int {
	n := 0
	for _, e := range q.Sorted() {
		if !e.Thread.Alive() {
			q.Wake(e, kerr.ErrThreadExited)
			n++
		}
	}
	return n
}

// WakeAll releases every waiter with err and returns how many were woken.
func (q *Queue) WakeAll(err error) int {
	n := 0
	for e := q.Pop(); e != nil; e = q.Pop() {
		e.wake(err)
		n++
	}
	return n
}

// entryHeap implements heap.Interface over queued entries.
type entryHeap struct {
	order   Order
	entries []*Entry
}

func (h *entryHeap) before(a, b *Entry) bool {
	if h.order == OrderPriority && a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

func (h *entryHeap) Len() int { return len(h.entries) }

func (h *entryHeap) Less(i, j int) bool {
	return h.before(h.entries[i], h.entries[j])
}

func (h *entryHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *entryHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	h.entries = old[:n-1]
	return e
}
