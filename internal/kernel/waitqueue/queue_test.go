package waitqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// newThreads creates one thread per priority, with UIDs 1..n.
func newThreads(t *testing.T, prios ...int32) []*thread.ThreadState {
	t.Helper()
	out := make([]*thread.ThreadState, len(prios))
	for i, p := range prios {
		out[i] = thread.New(uid.UID(i+1), "t", p)
	}
	return out
}

// verifyPopOrder pops every entry and checks the thread UIDs.
func verifyPopOrder(t *testing.T, q *Queue, want ...uid.UID) {
	t.Helper()
	for i, id := range want {
		e := q.Pop()
		if e == nil {
			t.Fatalf("Pop() #%d = nil, want thread %s", i, id)
		}
		if e.Thread.ID != id {
			t.Errorf("Pop() #%d = thread %s, want %s", i, e.Thread.ID, id)
		}
	}
	if e := q.Pop(); e != nil {
		t.Errorf("Pop() after drain = thread %s, want nil", e.Thread.ID)
	}
}

// TestQueue_PriorityOrder tests lower value first, FIFO among equals.
func TestQueue_PriorityOrder(t *testing.T) {
	tests := []struct {
		name  string
		prios []int32
		want  []uid.UID
	}{
		{"mixed with tie", []int32{5, 1, 5, 3}, []uid.UID{2, 4, 1, 3}},
		{"all equal", []int32{7, 7, 7}, []uid.UID{1, 2, 3}},
		{"descending", []int32{9, 8, 7, 6}, []uid.UID{4, 3, 2, 1}},
		{"single", []int32{0}, []uid.UID{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(OrderPriority)
			for _, th := range newThreads(t, tt.prios...) {
				q.Push(th, th.Priority(), &CondvarWait{})
			}
			if q.Len() != len(tt.prios) {
				t.Fatalf("Len() = %d, want %d", q.Len(), len(tt.prios))
			}
			verifyPopOrder(t, q, tt.want...)
		})
	}
}

// TestQueue_FIFOOrder tests that OrderFIFO ignores priority.
func TestQueue_FIFOOrder(t *testing.T) {
	q := New(OrderFIFO)
	for _, th := range newThreads(t, 5, 1, 5, 3) {
		q.Push(th, th.Priority(), &CondvarWait{})
	}
	verifyPopOrder(t, q, 1, 2, 3, 4)
}

// TestQueue_PriorityCapturedAtPush tests that later priority changes do not
// reorder queued waiters.
func TestQueue_PriorityCapturedAtPush(t *testing.T) {
	q := New(OrderPriority)
	th := newThreads(t, 10, 20)
	q.Push(th[0], th[0].Priority(), &CondvarWait{})
	q.Push(th[1], th[1].Priority(), &CondvarWait{})

	th[1].SetPriority(1)
	verifyPopOrder(t, q, 1, 2)
}

// TestQueue_Remove tests removal and the absent-thread no-op.
func TestQueue_Remove(t *testing.T) {
	q := New(OrderPriority)
	th := newThreads(t, 3, 1, 2, 0)
	for _, x := range th[:3] {
		q.Push(x, x.Priority(), &CondvarWait{})
	}

	if !q.Remove(th[1]) {
		t.Fatal("Remove(queued) = false, want true")
	}
	if q.Remove(th[1]) {
		t.Error("Remove(already removed) = true, want false")
	}
	if q.Remove(th[3]) {
		t.Error("Remove(never queued) = true, want false")
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
	verifyPopOrder(t, q, 3, 1)
}

// TestQueue_PushTwicePanics tests the one-entry-per-thread invariant.
func TestQueue_PushTwicePanics(t *testing.T) {
	q := New(OrderPriority)
	th := newThreads(t, 1)[0]
	q.Push(th, 1, &CondvarWait{})

	defer func() {
		if recover() == nil {
			t.Error("second Push did not panic")
		}
	}()
	q.Push(th, 1, &CondvarWait{})
}

// TestQueue_Sorted tests the release-order copy and Peek.
func TestQueue_Sorted(t *testing.T) {
	q := New(OrderPriority)
	for _, th := range newThreads(t, 4, 2, 4, 1) {
		q.Push(th, th.Priority(), &CondvarWait{})
	}

	want := []uid.UID{4, 2, 1, 3}
	got := q.Sorted()
	if len(got) != len(want) {
		t.Fatalf("Sorted() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Thread.ID != want[i] {
			t.Errorf("Sorted()[%d] = %s, want %s", i, got[i].Thread.ID, want[i])
		}
	}
	if p := q.Peek(); p == nil || p.Thread.ID != 4 {
		t.Errorf("Peek() = %v, want thread 4", p)
	}
	if q.Len() != 4 {
		t.Errorf("Len() after Sorted/Peek = %d, want 4", q.Len())
	}
}

// TestQueue_FindID tests lookup by thread UID.
func TestQueue_FindID(t *testing.T) {
	q := New(OrderPriority)
	th := newThreads(t, 1, 2)
	q.Push(th[0], 1, &CondvarWait{})
	q.Push(th[1], 2, &CondvarWait{})

	if e := q.FindID(2); e == nil || e.Thread != th[1] {
		t.Errorf("FindID(2) = %v, want thread 2", e)
	}
	if e := q.FindID(99); e != nil {
		t.Errorf("FindID(99) = %v, want nil", e)
	}
}

// TestQueue_WakeAndWakeAll tests that woken entries leave the queue with the
// delivered result.
func TestQueue_WakeAndWakeAll(t *testing.T) {
	q := New(OrderPriority)
	th := newThreads(t, 1, 2, 3)
	entries := make([]*Entry, len(th))
	for i, x := range th {
		entries[i] = q.Push(x, x.Priority(), &CondvarWait{})
	}

	q.Wake(entries[1], nil)
	if !entries[1].Woken() || entries[1].Err() != nil {
		t.Errorf("Wake(nil): Woken=%v Err=%v, want true <nil>", entries[1].Woken(), entries[1].Err())
	}
	select {
	case <-entries[1].Ready():
	default:
		t.Error("Ready() not closed after Wake")
	}
	if q.Len() != 2 {
		t.Errorf("Len() after Wake = %d, want 2", q.Len())
	}

	if n := q.WakeAll(kerr.ErrWaitDeleted); n != 2 {
		t.Errorf("WakeAll() = %d, want 2", n)
	}
	for _, i := range []int{0, 2} {
		if !errors.Is(entries[i].Err(), kerr.ErrWaitDeleted) {
			t.Errorf("entry %d Err() = %v, want ErrWaitDeleted", i, entries[i].Err())
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() after WakeAll = %d, want 0", q.Len())
	}
}

// TestQueue_PopLiveSkipsExited tests that dead threads are released with
// ErrThreadExited and skipped.
func TestQueue_PopLiveSkipsExited(t *testing.T) {
	q := New(OrderPriority)
	th := newThreads(t, 1, 2, 3)
	entries := make([]*Entry, len(th))
	for i, x := range th {
		entries[i] = q.Push(x, x.Priority(), &CondvarWait{})
	}
	th[0].Exit()
	th[1].Exit()

	e := q.PopLive()
	if e == nil || e.Thread != th[2] {
		t.Fatalf("PopLive() = %v, want thread 3", e)
	}
	for i := 0; i < 2; i++ {
		if !errors.Is(entries[i].Err(), kerr.ErrThreadExited) {
			t.Errorf("entry %d Err() = %v, want ErrThreadExited", i, entries[i].Err())
		}
	}
	if q.PopLive() != nil {
		t.Error("PopLive() on empty queue != nil")
	}
}

// TestQueue_Prune tests removal of exited waiters in place.
func TestQueue_Prune(t *testing.T) {
	q := New(OrderFIFO)
	th := newThreads(t, 1, 1, 1)
	for _, x := range th {
		q.Push(x, x.Priority(), &CondvarWait{})
	}
	th[1].Exit()

	if n := q.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	verifyPopOrder(t, q, 1, 3)
}

// TestAwait_Timeout tests that an expired wait leaves the queue.
func TestAwait_Timeout(t *testing.T) {
	var mu sync.Mutex
	q := New(OrderPriority)
	th := newThreads(t, 1)[0]

	mu.Lock()
	e := q.Push(th, 1, &CondvarWait{})
	mu.Unlock()

	err := Await(context.Background(), &mu, q, e, 0x10, 10*time.Millisecond)
	if !errors.Is(err, kerr.ErrTimeout) {
		t.Fatalf("Await() = %v, want ErrTimeout", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after timeout = %d, want 0", q.Len())
	}
	if e.Queued() || e.Woken() {
		t.Errorf("entry state after timeout: Queued=%v Woken=%v, want false false", e.Queued(), e.Woken())
	}
}

// TestAwait_Woken tests the waker result reaching the waiter.
func TestAwait_Woken(t *testing.T) {
	var mu sync.Mutex
	q := New(OrderPriority)
	th := newThreads(t, 1)[0]

	mu.Lock()
	e := q.Push(th, 1, &CondvarWait{})
	mu.Unlock()

	go func() {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		q.Wake(q.Pop(), kerr.ErrWaitCanceled)
		mu.Unlock()
	}()

	err := Await(context.Background(), &mu, q, e, 0x10, Forever)
	if !errors.Is(err, kerr.ErrWaitCanceled) {
		t.Errorf("Await() = %v, want ErrWaitCanceled", err)
	}
}

// TestAwait_Canceled tests caller context cancellation.
func TestAwait_Canceled(t *testing.T) {
	var mu sync.Mutex
	q := New(OrderPriority)
	th := newThreads(t, 1)[0]

	mu.Lock()
	e := q.Push(th, 1, &CondvarWait{})
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Await(ctx, &mu, q, e, 0x10, Forever); !errors.Is(err, kerr.ErrWaitCanceled) {
		t.Errorf("Await() = %v, want ErrWaitCanceled", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after cancel = %d, want 0", q.Len())
	}
}

// TestOrder_String tests Order names.
func TestOrder_String(t *testing.T) {
	tests := []struct {
		order Order
		want  string
	}{
		{OrderPriority, "priority"},
		{OrderFIFO, "fifo"},
		{Order(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.order.String(); got != tt.want {
			t.Errorf("Order(%d).String() = %q, want %q", tt.order, got, tt.want)
		}
	}
}
