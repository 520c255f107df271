package thread

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// Status is the scheduling status of a guest thread as observed by the
// synchronization primitives.
type Status int32

const (
	// StatusRunning indicates the thread is executing guest code.
	StatusRunning Status = iota
	// StatusWaiting indicates the thread is blocked inside a primitive.
	StatusWaiting
	// StatusExited indicates the thread has been torn down.
	StatusExited
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusWaiting:
		return "waiting"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ThreadState represents one emulated guest thread.
//
// Each guest thread runs on its own host goroutine. The primitives only need
// a stable identity, a readable priority and a way to park the goroutine
// until it is woken, canceled or its deadline passes.
//
// Layout:
//   - ID: UID assigned by the registry (stable identity for queue lookups)
//   - Name: Guest-visible thread name
//   - priority: Current priority (lower value runs first)
//   - status: Running / Waiting / Exited
//   - waitingOn: UID of the primitive the thread is blocked in (0 if none)
//
// Invariant: status == StatusWaiting iff waitingOn != uid.Invalid, except
// transiently inside Block.
type ThreadState struct {
	// ID is the thread's UID. Queue membership compares threads by pointer,
	// ID is what guest calls name a thread by (e.g. condvar Specific).
	ID uid.UID

	// Name is the guest-visible thread name, kept for debugging.
	Name string

	priority  atomic.Int32
	status    atomic.Int32
	waitingOn atomic.Int32

	// ctx is canceled by Exit so that a thread blocked in any primitive
	// returns ErrThreadExited.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a runnable ThreadState.
//
// Example:
//
//	t := thread.New(0x41, "main", 160)
//	// t.Priority() == 160, t.Alive() == true
func New(id uid.UID, name string, priority int32) *ThreadState {
	ctx, cancel := context.WithCancel(context.Background())
	t := &ThreadState{
		ID:     id,
		Name:   name,
		ctx:    ctx,
		cancel: cancel,
	}
	t.priority.Store(priority)
	return t
}

// Priority returns the current priority. Lower values are served first.
func (t *ThreadState) Priority() int32 {
	return t.priority.Load()
}

// SetPriority changes the thread priority. Waiters already queued keep the
// priority they were enqueued with.
func (t *ThreadState) SetPriority(p int32) {
	t.priority.Store(p)
}

// Status returns the current scheduling status.
func (t *ThreadState) Status() Status {
	return Status(t.status.Load())
}

// WaitingOn returns the UID of the primitive the thread is blocked in, or
// uid.Invalid when it is not waiting.
func (t *ThreadState) WaitingOn() uid.UID {
	return uid.UID(t.waitingOn.Load())
}

// Alive reports whether the thread has not exited. This is the liveness
// check waiters use on their non-owning thread reference.
func (t *ThreadState) Alive() bool {
	return t.ctx.Err() == nil
}

// Exit tears the thread down. Any wait the thread is blocked in returns
// ErrThreadExited. Exit is idempotent.
func (t *ThreadState) Exit() {
	t.status.Store(int32(StatusExited))
	t.cancel()
}

// Block parks the calling goroutine until ready is closed, the timeout
// elapses, ctx is canceled or the thread exits.
//
// Timeout semantics:
//   - timeout < 0: wait forever
//   - timeout == 0: do not wait, returns ErrTimeout unless ready is closed
//   - timeout > 0: deadline relative to now
//
// A closed ready channel always wins: if the waker got there first the wait
// succeeded, whatever else fired in the meantime.
//
// Returns:
//   - nil: ready was closed
//   - kerr.ErrTimeout, kerr.ErrWaitCanceled or kerr.ErrThreadExited
func (t *ThreadState) Block(ctx context.Context, on uid.UID, ready <-chan struct{}, timeout time.Duration) error {
	t.waitingOn.Store(int32(on))
	t.status.CompareAndSwap(int32(StatusRunning), int32(StatusWaiting))
	defer func() {
		t.waitingOn.Store(int32(uid.Invalid))
		t.status.CompareAndSwap(int32(StatusWaiting), int32(StatusRunning))
	}()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ready:
		return nil
	default:
	}

	select {
	case <-ready:
		return nil
	case <-expired:
		return kerr.ErrTimeout
	case <-ctx.Done():
		return kerr.ErrWaitCanceled
	case <-t.ctx.Done():
		return kerr.ErrThreadExited
	}
}
