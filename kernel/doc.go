// Package kernel provides the guest kernel synchronization layer of a
// console emulator: a UID-keyed registry of semaphores, recursive mutexes,
// event flags, condition variables and timers, on which emulated guest
// threads block and wake each other.
//
// # Quick Start
//
//	s := kernel.New(kernel.DefaultConfig())
//	main, _ := s.CreateThread("main", 160)
//
//	id, _ := s.CreateMutex("render", 0, 0, kernel.NoOwner)
//	m, _ := s.FindMutex(id)
//	if err := m.Lock(ctx, main, kernel.Forever); err != nil {
//		return err
//	}
//	defer m.Unlock(main)
//
// # API Overview
//
// The package provides:
//   - Registry: [New], [State]; create/find/open/delete per object kind
//   - Threads: [Thread] handles from State.CreateThread
//   - Primitives: [Semaphore], [Mutex], [EventFlag], [Condvar], [Timer]
//   - Errors: [ErrInvalidHandle], [ErrTimeout], [ErrWaitDeleted] and the
//     rest of the taxonomy, matched with errors.Is
//   - Configuration: [DefaultConfig], [LoadConfig]
//   - Version information: [GetInfo], [Version]
//
// # Waiting
//
// Every blocking call takes a context, the calling guest thread and a
// timeout. [Forever] blocks until woken, [NoWait] polls and fails with
// [ErrWouldBlock], and a positive duration fails with [ErrTimeout] once it
// passes. A woken waiter never needs to re-check a semaphore value or a
// mutex owner: the waker has already performed the transfer on its behalf.
// Condvar waits are the exception (mesa semantics) and callers re-check
// their predicate.
//
// Waiters are released lowest priority value first, in arrival order among
// equal priorities, or purely in arrival order when the object was created
// with [AttrThreadFIFO].
//
// # Deletion
//
// Deleting an object wakes every thread blocked on it with
// [ErrWaitDeleted]. Later calls through a handle fetched earlier fail with
// [ErrInvalidHandle].
package kernel
