package syncprim

import (
	"context"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
	"github.com/kolkov/kernelsync/internal/kernel/waitqueue"
)

// Semaphore is a counting semaphore with a bounded maximum.
//
// Invariant: 0 <= val <= max at every point where mu is released.
type Semaphore struct {
	Primitive

	max     int32
	val     int32
	initial int32
}

// SemaphoreInfo is a point-in-time view of a semaphore.
type SemaphoreInfo struct {
	UID     uid.UID
	Name    string
	Attr    Attr
	Value   int32
	Max     int32
	Waiters int
}

// NewSemaphore creates a semaphore holding initCount units out of maxCount.
func NewSemaphore(id uid.UID, name string, attr Attr, initCount, maxCount int32) (*Semaphore, error) {
	if maxCount <= 0 || initCount < 0 || initCount > maxCount {
		return nil, kerr.Wrap("sema_create", id, kerr.ErrInvalidArgument)
	}
	s := &Semaphore{max: maxCount, val: initCount, initial: initCount}
	s.init(id, name, attr)
	return s, nil
}

// Signal returns n units to the semaphore and wakes waiters whose
// requirement the new value satisfies, in release order.
//
// Past the maximum the value saturates, unless the semaphore was created
// with AttrNoSaturate, in which case nothing changes and ErrOverflow is
// returned.
func (s *Semaphore) Signal(n int32) error {
	const op = "sema_signal"
	if n <= 0 {
		return kerr.Wrap(op, s.UID, kerr.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return kerr.Wrap(op, s.UID, kerr.ErrInvalidHandle)
	}

	if int64(s.val)+int64(n) > int64(s.max) {
		if s.attr.Has(AttrNoSaturate) {
			return kerr.Wrap(op, s.UID, kerr.ErrOverflow)
		}
		s.val = s.max
	} else {
		s.val += n
	}

	s.wakeLocked()
	return nil
}

// wakeLocked hands units to waiters in release order. A waiter whose
// requirement exceeds the remaining value is skipped, not waited for, so a
// later smaller request can still be served.
func (s *Semaphore) wakeLocked() {
	s.waiters.Prune()
	for _, e := range s.waiters.Sorted() {
		if s.val == 0 {
			return
		}
		w := e.Payload.(*waitqueue.SemaphoreWait)
		if w.Count <= s.val {
			s.val -= w.Count
			s.waiters.Wake(e, nil)
		}
	}
}

// Wait takes n units, blocking t until they are available.
//
// When Wait returns nil the units are already deducted: the signaler
// decremented the value on the waiter's behalf before waking it.
//
// Errors: ErrWouldBlock (timeout == NoWait and val < n), ErrTimeout,
// ErrWaitDeleted, ErrWaitCanceled, ErrThreadExited, ErrInvalidArgument
// (n <= 0 or n > max), ErrInvalidHandle.
func (s *Semaphore) Wait(ctx context.Context, t *thread.ThreadState, n int32, timeout time.Duration) error {
	const op = "sema_wait"
	if n <= 0 || n > s.max {
		return kerr.Wrap(op, s.UID, kerr.ErrInvalidArgument)
	}

	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return kerr.Wrap(op, s.UID, kerr.ErrInvalidHandle)
	}
	if s.val >= n {
		s.val -= n
		s.mu.Unlock()
		return nil
	}
	if timeout == waitqueue.NoWait {
		s.mu.Unlock()
		return kerr.Wrap(op, s.UID, kerr.ErrWouldBlock)
	}
	if err := CheckWaiter(t); err != nil {
		s.mu.Unlock()
		return kerr.Wrap(op, s.UID, err)
	}
	e := s.enqueueLocked(t, &waitqueue.SemaphoreWait{Count: n})
	s.mu.Unlock()

	return kerr.Wrap(op, s.UID, s.await(ctx, e, timeout))
}

// Poll takes n units without blocking.
func (s *Semaphore) Poll(n int32) error {
	return s.Wait(context.Background(), nil, n, waitqueue.NoWait)
}

// Cancel releases every waiter with ErrWaitCanceled and sets the value to
// setCount. A negative setCount restores the initial value. Returns the
// number of waiters released.
func (s *Semaphore) Cancel(setCount int32) (int, error) {
	const op = "sema_cancel"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return 0, kerr.Wrap(op, s.UID, kerr.ErrInvalidHandle)
	}
	if setCount > s.max {
		return 0, kerr.Wrap(op, s.UID, kerr.ErrInvalidArgument)
	}
	if setCount < 0 {
		setCount = s.initial
	}
	n := s.waiters.WakeAll(kerr.ErrWaitCanceled)
	s.val = setCount
	return n, nil
}

// Value returns the current number of available units.
func (s *Semaphore) Value() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}

// Max returns the maximum value.
func (s *Semaphore) Max() int32 {
	return s.max
}

// Info returns a snapshot of the semaphore.
func (s *Semaphore) Info() SemaphoreInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SemaphoreInfo{
		UID:     s.UID,
		Name:    s.name,
		Attr:    s.attr,
		Value:   s.val,
		Max:     s.max,
		Waiters: s.waiters.Len(),
	}
}
