package waitqueue

// Payload is the primitive-specific part of a waiter.
//
// It is a closed sum type: exactly one of *MutexWait, *SemaphoreWait,
// *EventFlagWait, *CondvarWait or *TimerWait. Primitives select the variant
// they enqueued with a type assertion and never read any other.
type Payload interface {
	payload()
}

// MutexWait is the payload of a thread blocked in a mutex lock.
type MutexWait struct {
	// LockCount is the recursion depth the waiter takes over on hand-off.
	LockCount int32
}

// SemaphoreWait is the payload of a thread blocked in a semaphore wait.
type SemaphoreWait struct {
	// Count is the number of units the waiter needs.
	Count int32
}

// EventFlagWait is the payload of a thread blocked in an event flag wait.
type EventFlagWait struct {
	// Pattern is the set of requested bits.
	Pattern uint32

	// Mode selects AND/OR matching and optional clearing. The encoding is
	// owned by the event flag implementation.
	Mode uint32

	// Matched receives the flag pattern observed when the wait was
	// satisfied. Written by the waker under the primitive lock.
	Matched uint32
}

// CondvarWait is the (empty) payload of a thread blocked on a condvar.
type CondvarWait struct{}

// TimerWait is the (empty) payload of a thread blocked on a timer.
type TimerWait struct{}

func (*MutexWait) payload()     {}
func (*SemaphoreWait) payload() {}
func (*EventFlagWait) payload() {}
func (*CondvarWait) payload()   {}
func (*TimerWait) payload()     {}
