// Package syncprim implements the guest kernel synchronization primitives:
// semaphores, recursive mutexes, event flags and condition variables.
//
// Each primitive embeds a Primitive: UID, attributes, a bounded name, its own
// lock and the WaitingThreadQueue it exclusively owns. Every counter and the
// queue change only under that lock. The registry's structural lock is a
// separate tier and is never held here.
//
// Blocking Protocol:
//
//	p.mu.Lock()
//	if condition satisfied { update counters; unlock; return }
//	e := p.waiters.Push(thread, priority, payload)
//	p.mu.Unlock()
//	waitqueue.Await(...)  // host-level block, no spinning
//
// Wakers hold p.mu, update the counters on the waiter's behalf (semaphore
// units, mutex ownership, event flag clearing) and then release the entry.
// A woken thread therefore never re-checks the condition: the state it waited
// for was already handed to it.
//
// Deletion Policy:
//
// Deleting a primitive with waiters force-wakes all of them with
// kerr.ErrWaitDeleted. Afterwards every call on the stale handle returns
// kerr.ErrInvalidHandle.
package syncprim
