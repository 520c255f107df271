package syncprim

import (
	"context"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
	"github.com/kolkov/kernelsync/internal/kernel/waitqueue"
)

// Event flag wait modes. WaitAnd and WaitOr select the match rule; the
// clear bits may be OR-ed into either.
const (
	// WaitAnd is satisfied when every requested bit is set.
	WaitAnd uint32 = 0x0
	// WaitOr is satisfied when any requested bit is set.
	WaitOr uint32 = 0x1
	// WaitClearAll clears every flag when the wait is satisfied.
	WaitClearAll uint32 = 0x2
	// WaitClearPattern clears the requested bits when the wait is satisfied.
	WaitClearPattern uint32 = 0x4

	waitModeMask = WaitOr | WaitClearAll | WaitClearPattern
)

// EventFlag is a 32-bit flag word threads wait on with AND/OR masks.
type EventFlag struct {
	Primitive

	flags uint32
}

// EventFlagInfo is a point-in-time view of an event flag.
type EventFlagInfo struct {
	UID     uid.UID
	Name    string
	Attr    Attr
	Flags   uint32
	Waiters int
}

// NewEventFlag creates an event flag with the initial bit pattern.
func NewEventFlag(id uid.UID, name string, attr Attr, initPattern uint32) *EventFlag {
	f := &EventFlag{flags: initPattern}
	f.init(id, name, attr)
	return f
}

// matches reports whether flags satisfy a wait for pattern under mode.
func matches(flags, pattern, mode uint32) bool {
	if mode&WaitOr != 0 {
		return flags&pattern != 0
	}
	return flags&pattern == pattern
}

// consumeLocked applies the clear rules of a satisfied wait.
//
// The attribute only clears for AND-mode waiters, whose satisfied bits are
// exactly their pattern. The per-wait clear modes apply to either mode.
func (f *EventFlag) consumeLocked(pattern, mode uint32) {
	switch {
	case mode&WaitClearAll != 0:
		f.flags = 0
	case mode&WaitClearPattern != 0:
		f.flags &^= pattern
	case mode&WaitOr == 0 && f.attr.Has(AttrClearOnWake):
		f.flags &^= pattern
	}
}

// Set ORs bits into the flags and releases, in release order, every waiter
// the flags now satisfy. Clearing done for one waiter happens before the
// next candidate is evaluated.
func (f *EventFlag) Set(bits uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted {
		return kerr.Wrap("evf_set", f.UID, kerr.ErrInvalidHandle)
	}
	f.flags |= bits
	f.waiters.Prune()
	for _, e := range f.waiters.Sorted() {
		w := e.Payload.(*waitqueue.EventFlagWait)
		if !matches(f.flags, w.Pattern, w.Mode) {
			continue
		}
		w.Matched = f.flags
		f.consumeLocked(w.Pattern, w.Mode)
		f.waiters.Wake(e, nil)
	}
	return nil
}

// Clear removes bits from the flags. No waiter is woken.
func (f *EventFlag) Clear(bits uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted {
		return kerr.Wrap("evf_clear", f.UID, kerr.ErrInvalidHandle)
	}
	f.flags &^= bits
	return nil
}

// Wait blocks t until the flags satisfy pattern under mode. It returns the
// flag pattern observed at the moment the wait was satisfied, before any
// clearing.
func (f *EventFlag) Wait(ctx context.Context, t *thread.ThreadState, pattern, mode uint32, timeout time.Duration) (uint32, error) {
	const op = "evf_wait"
	if pattern == 0 || mode&^waitModeMask != 0 {
		return 0, kerr.Wrap(op, f.UID, kerr.ErrInvalidArgument)
	}

	f.mu.Lock()
	if f.deleted {
		f.mu.Unlock()
		return 0, kerr.Wrap(op, f.UID, kerr.ErrInvalidHandle)
	}
	if matches(f.flags, pattern, mode) {
		out := f.flags
		f.consumeLocked(pattern, mode)
		f.mu.Unlock()
		return out, nil
	}
	if timeout == waitqueue.NoWait {
		out := f.flags
		f.mu.Unlock()
		return out, kerr.Wrap(op, f.UID, kerr.ErrWouldBlock)
	}
	if err := CheckWaiter(t); err != nil {
		f.mu.Unlock()
		return 0, kerr.Wrap(op, f.UID, err)
	}
	w := &waitqueue.EventFlagWait{Pattern: pattern, Mode: mode}
	e := f.enqueueLocked(t, w)
	f.mu.Unlock()

	if err := f.await(ctx, e, timeout); err != nil {
		return 0, kerr.Wrap(op, f.UID, err)
	}
	return w.Matched, nil
}

// Poll checks the flags without blocking.
func (f *EventFlag) Poll(pattern, mode uint32) (uint32, error) {
	return f.Wait(context.Background(), nil, pattern, mode, waitqueue.NoWait)
}

// Cancel sets the flags to pattern and releases every waiter with
// ErrWaitCanceled. Returns the number of waiters released.
func (f *EventFlag) Cancel(pattern uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted {
		return 0, kerr.Wrap("evf_cancel", f.UID, kerr.ErrInvalidHandle)
	}
	f.flags = pattern
	return f.waiters.WakeAll(kerr.ErrWaitCanceled), nil
}

// Flags returns the current bit pattern.
func (f *EventFlag) Flags() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

// Info returns a snapshot of the event flag.
func (f *EventFlag) Info() EventFlagInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return EventFlagInfo{
		UID:     f.UID,
		Name:    f.name,
		Attr:    f.attr,
		Flags:   f.flags,
		Waiters: f.waiters.Len(),
	}
}
