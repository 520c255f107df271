package syncprim

import (
	"context"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
	"github.com/kolkov/kernelsync/internal/kernel/waitqueue"
)

// TargetType selects which condvar waiters a signal releases.
type TargetType uint8

const (
	// TargetAny releases the single next waiter in release order.
	TargetAny TargetType = iota
	// TargetSpecific releases only the waiter with a given thread UID.
	TargetSpecific
	// TargetAll releases every waiter.
	TargetAll
)

// String returns the string representation of a TargetType.
func (t TargetType) String() string {
	switch t {
	case TargetAny:
		return "any"
	case TargetSpecific:
		return "specific"
	case TargetAll:
		return "all"
	default:
		return "unknown"
	}
}

// SignalTarget describes the waiters a condvar signal releases.
type SignalTarget struct {
	Type     TargetType
	ThreadID uid.UID // TargetSpecific only
}

// SignalAny targets the next waiter.
func SignalAny() SignalTarget { return SignalTarget{Type: TargetAny} }

// SignalThread targets the waiter running as thread id.
func SignalThread(id uid.UID) SignalTarget {
	return SignalTarget{Type: TargetSpecific, ThreadID: id}
}

// SignalAll targets every waiter.
func SignalAll() SignalTarget { return SignalTarget{Type: TargetAll} }

// Condvar is a condition variable bound to one Mutex at creation.
//
// Wait is mesa-style: a released waiter re-acquires the mutex like any other
// locker, so another thread may own the mutex in between and the caller
// must re-check its predicate.
//
// Lock order: condvar lock, then mutex lock. The mutex never takes the
// condvar lock.
type Condvar struct {
	Primitive

	// mutex is a non-owning reference; its Deleted state is the liveness
	// check.
	mutex *Mutex
}

// CondvarInfo is a point-in-time view of a condvar.
type CondvarInfo struct {
	UID     uid.UID
	Name    string
	Attr    Attr
	Mutex   uid.UID
	Waiters int
}

// NewCondvar creates a condvar associated with m.
func NewCondvar(id uid.UID, name string, attr Attr, m *Mutex) (*Condvar, error) {
	if m == nil {
		return nil, kerr.Wrap("cond_create", id, kerr.ErrInvalidArgument)
	}
	c := &Condvar{mutex: m}
	c.init(id, name, attr)
	return c, nil
}

// Mutex returns the associated mutex.
func (c *Condvar) Mutex() *Mutex {
	return c.mutex
}

// Wait releases the associated mutex (all recursion levels) and blocks t on
// the condvar. Whatever the outcome of the wait, the mutex is re-acquired
// with the original depth before Wait returns, unless the mutex was
// deleted or t exited meanwhile.
//
// The waiter is queued on the condvar before the mutex is released, so a
// signal issued by the next mutex holder cannot be lost.
func (c *Condvar) Wait(ctx context.Context, t *thread.ThreadState, timeout time.Duration) error {
	const op = "cond_wait"
	if err := CheckWaiter(t); err != nil {
		return kerr.Wrap(op, c.UID, err)
	}

	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return kerr.Wrap(op, c.UID, kerr.ErrInvalidHandle)
	}
	m := c.mutex
	if timeout == waitqueue.NoWait {
		c.mu.Unlock()
		return kerr.Wrap(op, c.UID, kerr.ErrWouldBlock)
	}
	e := c.enqueueLocked(t, &waitqueue.CondvarWait{})
	depth, err := m.releaseAll(t)
	if err != nil {
		c.waiters.RemoveEntry(e)
		c.mu.Unlock()
		return kerr.Wrap(op, c.UID, err)
	}
	c.mu.Unlock()

	waitErr := c.await(ctx, e, timeout)

	// Re-acquisition is not abandoned on caller cancellation: the caller
	// expects to hold the mutex again. Thread exit still aborts it.
	lockErr := m.lock(context.WithoutCancel(ctx), t, depth, waitqueue.Forever)

	if waitErr != nil {
		return kerr.Wrap(op, c.UID, waitErr)
	}
	return kerr.Wrap(op, m.UID, lockErr)
}

// Signal releases the waiters selected by target and returns how many were
// released. A TargetSpecific signal for a thread that is not waiting is a
// no-op.
func (c *Condvar) Signal(target SignalTarget) (int, error) {
	const op = "cond_signal"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleted {
		return 0, kerr.Wrap(op, c.UID, kerr.ErrInvalidHandle)
	}

	switch target.Type {
	case TargetAny:
		e := c.waiters.PopLive()
		if e == nil {
			return 0, nil
		}
		c.waiters.Wake(e, nil)
		return 1, nil
	case TargetSpecific:
		e := c.waiters.FindID(target.ThreadID)
		if e == nil {
			return 0, nil
		}
		c.waiters.Wake(e, nil)
		return 1, nil
	case TargetAll:
		c.waiters.Prune()
		return c.waiters.WakeAll(nil), nil
	default:
		return 0, kerr.Wrap(op, c.UID, kerr.ErrInvalidArgument)
	}
}

// Info returns a snapshot of the condvar.
func (c *Condvar) Info() CondvarInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CondvarInfo{
		UID:     c.UID,
		Name:    c.name,
		Attr:    c.attr,
		Mutex:   c.mutex.UID,
		Waiters: c.waiters.Len(),
	}
}
