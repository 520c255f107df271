// Package uid allocates process-wide unique identifiers for kernel objects.
//
// Every kernel object (semaphores, mutexes, threads, memory blocks, modules)
// draws its identifier from one shared Allocator so that a UID names exactly
// one object for the lifetime of the registry.
//
// Allocation Model:
//   - Monotonic atomic counter, lock-free
//   - UIDs are never reused (unlike a TID pool, there is no free list)
//   - Zero is reserved as the "no object" value
//
// Thread Safety: All methods are safe for concurrent calls.
package uid

import (
	"strconv"
	"sync/atomic"
)

// UID is an opaque signed identifier naming a kernel object.
type UID int32

// Invalid is the zero UID. It never names an object.
const Invalid UID = 0

// String returns the UID in the 0x-prefixed hexadecimal form guest
// debuggers print.
func (u UID) String() string {
	return "0x" + strconv.FormatUint(uint64(uint32(u)), 16)
}

// Allocator hands out strictly increasing UIDs.
//
// Layout:
//   - next: last UID handed out (0 before the first allocation)
//
// Example:
//
//	var a uid.Allocator
//	first := a.Next()  // 1
//	second := a.Next() // 2
type Allocator struct {
	next atomic.Int32
}

// Next returns a fresh UID.
//
// Exhausting the 31-bit UID space is an emulator defect, not a guest
// condition, so Next panics instead of wrapping into reused values.
func (a *Allocator) Next() UID {
	v := a.next.Add(1)
	if v <= 0 {
		panic("uid: identifier space exhausted")
	}
	return UID(v)
}

// Last returns the most recently allocated UID, or Invalid if none.
func (a *Allocator) Last() UID {
	return UID(a.next.Load())
}
