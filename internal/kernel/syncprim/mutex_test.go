package syncprim

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/waitqueue"
)

func newMutex(t *testing.T, attr Attr) *Mutex {
	t.Helper()
	m, err := NewMutex(0x100, "mtx", attr, 0, nil)
	if err != nil {
		t.Fatalf("NewMutex() error: %v", err)
	}
	return m
}

// verifyOwner checks owner and depth together.
func verifyOwner(t *testing.T, m *Mutex, owner *thread.ThreadState, depth int32) {
	t.Helper()
	if got := m.Owner(); got != owner {
		t.Errorf("Owner() = %v, want %v", got, owner)
	}
	if got := m.LockCount(); got != depth {
		t.Errorf("LockCount() = %d, want %d", got, depth)
	}
}

// TestNewMutex tests creation arguments.
func TestNewMutex(t *testing.T) {
	a := newThread(t, 1, 100)

	tests := []struct {
		name      string
		initCount int32
		owner     *thread.ThreadState
		wantErr   error
	}{
		{"free", 0, nil, nil},
		{"owned", 3, a, nil},
		{"negative count", -1, nil, kerr.ErrInvalidArgument},
		{"count without owner", 1, nil, kerr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMutex(0x100, "m", 0, tt.initCount, tt.owner)
			wantErr(t, "NewMutex()", err, tt.wantErr)
			if tt.wantErr == nil {
				verifyOwner(t, m, tt.owner, tt.initCount)
			}
		})
	}
}

// TestMutex_Recursive tests recursive depth accounting.
func TestMutex_Recursive(t *testing.T) {
	m := newMutex(t, 0)
	a := newThread(t, 1, 100)
	ctx := context.Background()

	for i := int32(1); i <= 3; i++ {
		wantErr(t, "Lock()", m.Lock(ctx, a, waitqueue.Forever), nil)
		verifyOwner(t, m, a, i)
	}
	for i := int32(2); i >= 0; i-- {
		wantErr(t, "Unlock()", m.Unlock(a), nil)
		if i == 0 {
			verifyOwner(t, m, nil, 0)
		} else {
			verifyOwner(t, m, a, i)
		}
	}
	wantErr(t, "Unlock(free)", m.Unlock(a), kerr.ErrNotOwner)
}

// TestMutex_NotOwner tests unlock by a thread that does not hold the mutex.
func TestMutex_NotOwner(t *testing.T) {
	m := newMutex(t, 0)
	a := newThread(t, 1, 100)
	b := newThread(t, 2, 100)

	wantErr(t, "TryLock(a)", m.TryLock(a), nil)
	wantErr(t, "Unlock(b)", m.Unlock(b), kerr.ErrNotOwner)
	wantErr(t, "TryLock(b)", m.TryLock(b), kerr.ErrWouldBlock)
	verifyOwner(t, m, a, 1)
}

// TestMutex_HandOffNoIntervention tests that the unlocking owner installs
// the waiter as owner so a third thread cannot take the mutex in between.
func TestMutex_HandOffNoIntervention(t *testing.T) {
	m := newMutex(t, 0)
	a := newThread(t, 1, 100)
	b := newThread(t, 2, 100)
	c := newThread(t, 3, 100)
	ctx := context.Background()

	wantErr(t, "Lock(a)", m.Lock(ctx, a, waitqueue.Forever), nil)
	bDone := async(func() error { return m.Lock(ctx, b, waitqueue.Forever) })
	waitQueued(t, &m.Primitive, b)

	wantErr(t, "Unlock(a)", m.Unlock(a), nil)

	// B owns the mutex before its goroutine has even resumed.
	verifyOwner(t, m, b, 1)
	wantErr(t, "TryLock(c)", m.TryLock(c), kerr.ErrWouldBlock)

	wantErr(t, "Lock(b)", recv(t, bDone), nil)
	wantErr(t, "Unlock(b)", m.Unlock(b), nil)
	wantErr(t, "TryLock(c) after release", m.TryLock(c), nil)
}

// TestMutex_HandOffByPriority tests that the best-priority waiter wins.
func TestMutex_HandOffByPriority(t *testing.T) {
	tests := []struct {
		name string
		attr Attr
		want int // index into waiters
	}{
		{"priority", 0, 1},
		{"fifo", AttrThreadFIFO, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMutex(t, tt.attr)
			a := newThread(t, 1, 100)
			waiters := []*thread.ThreadState{newThread(t, 2, 50), newThread(t, 3, 10)}
			ctx := context.Background()

			wantErr(t, "Lock(a)", m.Lock(ctx, a, waitqueue.Forever), nil)
			done := make([]<-chan error, len(waiters))
			for i, w := range waiters {
				done[i] = async(func() error { return m.Lock(ctx, w, waitqueue.Forever) })
				waitQueued(t, &m.Primitive, w)
			}

			wantErr(t, "Unlock(a)", m.Unlock(a), nil)
			winner := waiters[tt.want]
			verifyOwner(t, m, winner, 1)
			wantErr(t, "winner Lock()", recv(t, done[tt.want]), nil)

			loser := 1 - tt.want
			verifyPending(t, done[loser])
			wantErr(t, "Unlock(winner)", m.Unlock(winner), nil)
			wantErr(t, "loser Lock()", recv(t, done[loser]), nil)
			verifyOwner(t, m, waiters[loser], 1)
		})
	}
}

// TestMutex_ExclusiveOwnership tests that at most one thread is inside the
// critical section across many concurrent lock/unlock rounds.
func TestMutex_ExclusiveOwnership(t *testing.T) {
	const (
		threads = 8
		rounds  = 200
	)
	m := newMutex(t, 0)
	ctx := context.Background()

	var (
		inside  atomic.Int32
		counter int
		wg      sync.WaitGroup
		errs    = make(chan error, threads)
	)
	for i := 0; i < threads; i++ {
		th := newThread(t, uidFor(i), int32(100+i%4))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				if err := m.Lock(ctx, th, waitqueue.Forever); err != nil {
					errs <- err
					return
				}
				if n := inside.Add(1); n != 1 {
					t.Errorf("%d threads inside the critical section", n)
				}
				if m.LockCount() != 1 {
					t.Errorf("LockCount() inside = %d, want 1", m.LockCount())
				}
				counter++
				inside.Add(-1)
				if err := m.Unlock(th); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("lock/unlock error: %v", err)
	}

	if counter != threads*rounds {
		t.Errorf("counter = %d, want %d", counter, threads*rounds)
	}
	verifyOwner(t, m, nil, 0)
}

// TestMutex_Timeout tests a bounded wait.
func TestMutex_Timeout(t *testing.T) {
	m := newMutex(t, 0)
	a := newThread(t, 1, 100)
	b := newThread(t, 2, 100)

	wantErr(t, "TryLock(a)", m.TryLock(a), nil)
	err := m.Lock(context.Background(), b, 10*time.Millisecond)
	wantErr(t, "Lock(b)", err, kerr.ErrTimeout)
	if m.Waiters() != 0 {
		t.Errorf("Waiters() after timeout = %d, want 0", m.Waiters())
	}

	// The timed-out waiter must not receive ownership later.
	wantErr(t, "Unlock(a)", m.Unlock(a), nil)
	verifyOwner(t, m, nil, 0)
}

// TestMutex_WaiterExits tests that an exited waiter is skipped.
func TestMutex_WaiterExits(t *testing.T) {
	m := newMutex(t, 0)
	a := newThread(t, 1, 100)
	b := newThread(t, 2, 10)
	c := newThread(t, 3, 50)
	ctx := context.Background()

	wantErr(t, "TryLock(a)", m.TryLock(a), nil)
	bDone := async(func() error { return m.Lock(ctx, b, waitqueue.Forever) })
	waitQueued(t, &m.Primitive, b)
	cDone := async(func() error { return m.Lock(ctx, c, waitqueue.Forever) })
	waitQueued(t, &m.Primitive, c)

	b.Exit()
	wantErr(t, "Lock(b)", recv(t, bDone), kerr.ErrThreadExited)

	wantErr(t, "Unlock(a)", m.Unlock(a), nil)
	wantErr(t, "Lock(c)", recv(t, cDone), nil)
	verifyOwner(t, m, c, 1)
}

// TestMutex_Delete tests the force-wake deletion policy.
func TestMutex_Delete(t *testing.T) {
	m := newMutex(t, 0)
	a := newThread(t, 1, 100)
	b := newThread(t, 2, 100)
	ctx := context.Background()

	wantErr(t, "TryLock(a)", m.TryLock(a), nil)
	bDone := async(func() error { return m.Lock(ctx, b, waitqueue.Forever) })
	waitQueued(t, &m.Primitive, b)

	if n := m.Delete(); n != 1 {
		t.Errorf("Delete() = %d, want 1", n)
	}
	wantErr(t, "Lock(b)", recv(t, bDone), kerr.ErrWaitDeleted)
	wantErr(t, "Unlock(a)", m.Unlock(a), kerr.ErrInvalidHandle)
	wantErr(t, "TryLock(b)", m.TryLock(b), kerr.ErrInvalidHandle)
	if !m.Deleted() {
		t.Error("Deleted() = false after Delete")
	}
	if n := m.Delete(); n != 0 {
		t.Errorf("second Delete() = %d, want 0", n)
	}
}

// TestMutex_Info tests the snapshot.
func TestMutex_Info(t *testing.T) {
	a := newThread(t, 1, 100)
	m, err := NewMutex(0x100, "a_rather_long_mutex_name_exceeding_limit", AttrOpenable, 2, a)
	if err != nil {
		t.Fatalf("NewMutex() error: %v", err)
	}

	info := m.Info()
	if info.Owner != a.ID || info.LockCount != 2 || info.Waiters != 0 {
		t.Errorf("Info() = %+v, want owner %s depth 2", info, a.ID)
	}
	if len(info.Name) != MaxNameLength {
		t.Errorf("Info().Name length = %d, want %d", len(info.Name), MaxNameLength)
	}
	if !m.Openable() {
		t.Error("Openable() = false, want true")
	}
}
