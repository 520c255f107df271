package syncprim

import (
	"context"
	"sync"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
	"github.com/kolkov/kernelsync/internal/kernel/waitqueue"
)

// MaxNameLength is the longest kernel object name the guest ABI stores.
// Longer names are truncated.
const MaxNameLength = 31

// Attr is the attribute bitmask passed to a create call.
type Attr uint32

const (
	// AttrThreadFIFO releases waiters in arrival order instead of by
	// priority.
	AttrThreadFIFO Attr = 0x0001

	// AttrNoSaturate makes a semaphore signal that would exceed the maximum
	// fail with ErrOverflow instead of clamping.
	AttrNoSaturate Attr = 0x0004

	// AttrClearOnWake makes an event flag clear the bits an AND-mode waiter
	// was satisfied with.
	AttrClearOnWake Attr = 0x0010

	// AttrOpenable allows the object to be found by name.
	AttrOpenable Attr = 0x0080
)

// Has reports whether all bits of f are set.
func (a Attr) Has(f Attr) bool {
	return a&f == f
}

// BoundName truncates name to MaxNameLength bytes.
func BoundName(name string) string {
	if len(name) > MaxNameLength {
		return name[:MaxNameLength]
	}
	return name
}

// Primitive is the state shared by every synchronization primitive.
//
// Layout:
//   - UID: Registry identifier (copied here for diagnostics)
//   - attr: Attribute bitmask fixed at creation
//   - name: Bounded guest-visible name
//   - mu: Per-object lock guarding counters, waiters and deleted
//   - waiters: Queue owned exclusively by this primitive
//   - deleted: Set once by Delete; later calls return ErrInvalidHandle
type Primitive struct {
	UID uid.UID

	attr Attr
	name string

	mu      sync.Mutex
	waiters *waitqueue.Queue
	deleted bool
}

func (p *Primitive) init(id uid.UID, name string, attr Attr) {
	p.UID = id
	p.attr = attr
	p.name = BoundName(name)
	order := waitqueue.OrderPriority
	if attr.Has(AttrThreadFIFO) {
		order = waitqueue.OrderFIFO
	}
	p.waiters = waitqueue.New(order)
}

// Name returns the bounded object name.
func (p *Primitive) Name() string {
	return p.name
}

// Attr returns the creation attributes.
func (p *Primitive) Attr() Attr {
	return p.attr
}

// Openable reports whether the object may be found by name.
func (p *Primitive) Openable() bool {
	return p.attr.Has(AttrOpenable)
}

// Waiters returns the number of threads blocked on the primitive.
func (p *Primitive) Waiters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters.Len()
}

// IsWaiting reports whether t is queued on the primitive.
func (p *Primitive) IsWaiting(t *thread.ThreadState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters.Find(t) != nil
}

// Deleted reports whether Delete has been called.
func (p *Primitive) Deleted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleted
}

// Delete invalidates the primitive and force-wakes every waiter with
// ErrWaitDeleted. Returns the number of waiters woken. Deleting twice is a
// no-op returning 0.
func (p *Primitive) Delete() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return 0
	}
	p.deleted = true
	return p.waiters.WakeAll(kerr.ErrWaitDeleted)
}

// CancelWait releases t from the primitive with ErrWaitCanceled. It is a
// no-op returning false when t is not waiting here.
func (p *Primitive) CancelWait(t *thread.ThreadState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.waiters.Find(t)
	if e == nil {
		return false
	}
	p.waiters.Wake(e, kerr.ErrWaitCanceled)
	return true
}

// enqueueLocked queues t with its current priority. Caller holds p.mu.
func (p *Primitive) enqueueLocked(t *thread.ThreadState, payload waitqueue.Payload) *waitqueue.Entry {
	return p.waiters.Push(t, t.Priority(), payload)
}

// await blocks on an entry pushed by enqueueLocked. Caller must have
// released p.mu.
func (p *Primitive) await(ctx context.Context, e *waitqueue.Entry, timeout time.Duration) error {
	return waitqueue.Await(ctx, &p.mu, p.waiters, e, p.UID, timeout)
}

// CheckWaiter validates the thread of a potentially blocking call: nil is
// ErrInvalidArgument, an exited thread is ErrThreadExited.
func CheckWaiter(t *thread.ThreadState) error {
	if t == nil {
		return kerr.ErrInvalidArgument
	}
	if !t.Alive() {
		return kerr.ErrThreadExited
	}
	return nil
}
