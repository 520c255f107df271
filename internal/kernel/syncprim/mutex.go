package syncprim

import (
	"context"
	"math"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
	"github.com/kolkov/kernelsync/internal/kernel/waitqueue"
)

// Mutex is a recursive mutex with direct ownership hand-off.
//
// Invariant: lockCount > 0 iff owner != nil. Only the owner changes
// lockCount, except on hand-off where the unlocking owner installs the
// woken waiter as the new owner before anyone else can observe the mutex
// free.
type Mutex struct {
	Primitive

	owner     *thread.ThreadState
	lockCount int32
}

// MutexInfo is a point-in-time view of a mutex.
type MutexInfo struct {
	UID       uid.UID
	Name      string
	Attr      Attr
	Owner     uid.UID
	LockCount int32
	Waiters   int
}

// NewMutex creates a mutex. With initCount > 0 the mutex starts owned by
// owner with that recursion depth.
func NewMutex(id uid.UID, name string, attr Attr, initCount int32, owner *thread.ThreadState) (*Mutex, error) {
	if initCount < 0 || (initCount > 0 && owner == nil) {
		return nil, kerr.Wrap("mutex_create", id, kerr.ErrInvalidArgument)
	}
	m := &Mutex{}
	m.init(id, name, attr)
	if initCount > 0 {
		m.owner = owner
		m.lockCount = initCount
	}
	return m, nil
}

// Lock acquires the mutex for t.
//
//   - free: t becomes owner with depth 1
//   - owned by t: depth grows by one
//   - owned by another thread: t blocks; when Lock returns nil the previous
//     owner has already transferred ownership to t
func (m *Mutex) Lock(ctx context.Context, t *thread.ThreadState, timeout time.Duration) error {
	return kerr.Wrap("mutex_lock", m.UID, m.lock(ctx, t, 1, timeout))
}

// TryLock acquires the mutex without blocking.
func (m *Mutex) TryLock(t *thread.ThreadState) error {
	return m.Lock(context.Background(), t, waitqueue.NoWait)
}

func (m *Mutex) lock(ctx context.Context, t *thread.ThreadState, count int32, timeout time.Duration) error {
	if err := CheckWaiter(t); err != nil {
		return err
	}

	m.mu.Lock()
	if m.deleted {
		m.mu.Unlock()
		return kerr.ErrInvalidHandle
	}

	switch m.owner {
	case nil:
		m.owner = t
		m.lockCount = count
		m.mu.Unlock()
		return nil
	case t:
		if int64(m.lockCount)+int64(count) > math.MaxInt32 {
			m.mu.Unlock()
			return kerr.ErrOverflow
		}
		m.lockCount += count
		m.mu.Unlock()
		return nil
	}

	if timeout == waitqueue.NoWait {
		m.mu.Unlock()
		return kerr.ErrWouldBlock
	}
	e := m.enqueueLocked(t, &waitqueue.MutexWait{LockCount: count})
	m.mu.Unlock()

	return m.await(ctx, e, timeout)
}

// Unlock releases one level of recursion held by t. When the depth reaches
// zero ownership passes directly to the next waiter, if any.
func (m *Mutex) Unlock(t *thread.ThreadState) error {
	return kerr.Wrap("mutex_unlock", m.UID, m.unlock(t, 1))
}

func (m *Mutex) unlock(t *thread.ThreadState, count int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted {
		return kerr.ErrInvalidHandle
	}
	if m.owner == nil || m.owner != t {
		return kerr.ErrNotOwner
	}
	if count <= 0 || count > m.lockCount {
		return kerr.ErrInvalidArgument
	}
	m.lockCount -= count
	if m.lockCount == 0 {
		m.handOffLocked()
	}
	return nil
}

// releaseAll drops every level of recursion t holds and returns the depth
// so that a condvar wait can restore it.
func (m *Mutex) releaseAll(t *thread.ThreadState) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted {
		return 0, kerr.ErrInvalidHandle
	}
	if m.owner == nil || m.owner != t {
		return 0, kerr.ErrNotOwner
	}
	depth := m.lockCount
	m.lockCount = 0
	m.handOffLocked()
	return depth, nil
}

// handOffLocked transfers ownership to the highest-priority live waiter,
// or frees the mutex. Caller holds m.mu and lockCount is zero.
func (m *Mutex) handOffLocked() {
	e := m.waiters.PopLive()
	if e == nil {
		m.owner = nil
		return
	}
	w := e.Payload.(*waitqueue.MutexWait)
	m.owner = e.Thread
	m.lockCount = w.LockCount
	m.waiters.Wake(e, nil)
}

// Owner returns the owning thread, or nil when the mutex is free.
func (m *Mutex) Owner() *thread.ThreadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// LockCount returns the owner's recursion depth (0 when free).
func (m *Mutex) LockCount() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockCount
}

// Info returns a snapshot of the mutex.
func (m *Mutex) Info() MutexInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := MutexInfo{
		UID:       m.UID,
		Name:      m.name,
		Attr:      m.attr,
		LockCount: m.lockCount,
		Waiters:   m.waiters.Len(),
	}
	if m.owner != nil {
		info.Owner = m.owner.ID
	}
	return info
}
