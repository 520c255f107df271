// Package thread implements the guest thread reference used by the kernel
// synchronization primitives.
//
// One host goroutine executes each emulated guest thread. ThreadState is what
// a primitive sees of that thread:
//   - ID: stable identity for queue comparisons and targeted wakes
//   - Priority: read when the thread enqueues itself as a waiter
//   - Block: the host-level blocking wait (no spinning)
//   - Alive/Exit: liveness check for the non-owning references held by
//     waiting queues
//
// Thread lifetime is owned by the kernel registry; primitives never keep a
// thread alive, they only test Alive before handing it ownership.
package thread
