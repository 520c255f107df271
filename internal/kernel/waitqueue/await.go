package waitqueue

import (
	"context"
	"sync"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// Timeout values accepted by every blocking kernel call.
const (
	// Forever blocks until woken, canceled or the thread exits.
	Forever time.Duration = -1

	// NoWait makes a call fail with ErrWouldBlock instead of blocking.
	NoWait time.Duration = 0
)

// Await blocks e's thread until the entry is woken, then settles the race
// between the waker and the timeout/cancel paths under the owner's lock.
//
// The caller must have pushed e onto q while holding mu and must have
// released mu before calling Await. On return mu is released again.
//
// Whichever side takes mu first decides the outcome:
//   - waker first: the entry is marked woken, Await returns the waker's
//     result even if the deadline also fired
//   - timeout/cancel first: the entry is removed from q, a later waker
//     never sees it, Await returns the blocking error
//
// Example:
//
//	p.mu.Lock()
//	e := p.waiters.Push(t, t.Priority(), &waitqueue.SemaphoreWait{Count: n})
//	p.mu.Unlock()
//	err := waitqueue.Await(ctx, &p.mu, p.waiters, e, p.UID, timeout)
func Await(ctx context.Context, mu sync.Locker, q *Queue, e *Entry, on uid.UID, timeout time.Duration) error {
	blockErr := e.Thread.Block(ctx, on, e.Ready(), timeout)

	mu.Lock()
	defer mu.Unlock()

	if e.Woken() {
		return e.Err()
	}
	q.RemoveEntry(e)
	return blockErr
}
