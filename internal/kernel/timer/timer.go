// Package timer implements the guest kernel's waitable timer.
//
// A Timer is a small state machine driven by externally supplied clock
// ticks; this package never generates ticks itself.
//
// States and transitions:
//
//	Stopped --Start--> Started --Elapse(interval passed)--> Fired
//	Fired --(repeats && ResetAutomatic)--> Started   (re-armed from the fire tick)
//	Fired --Reset--> Started                         (explicit, ResetManual)
//	any   --Stop--> Stopped
//
// A one-shot timer (repeats == false) never re-arms by itself.
//
// Behaviours fixed at creation:
//   - ThreadBehaviour: waiters released FIFO or by priority
//   - NotifyBehaviour: NotifyAll releases every waiter on each fire and a
//     Fired timer satisfies new waits at once; NotifyOnlyWake accumulates one
//     signal per fire and each released waiter consumes one, like a
//     semaphore
//   - ResetBehaviour: ResetManual keeps Fired until Reset; ResetAutomatic
//     re-arms repeating timers immediately
package timer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/syncprim"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
	"github.com/kolkov/kernelsync/internal/kernel/waitqueue"
)

// Phase is the timer state.
type Phase uint8

const (
	// Stopped: not counting.
	Stopped Phase = iota
	// Started: counting towards the next fire.
	Started
	// Fired: the interval elapsed and the timer has not been re-armed.
	Fired
)

// String returns the string representation of a Phase.
func (p Phase) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case Started:
		return "started"
	case Fired:
		return "fired"
	default:
		return "unknown"
	}
}

// ThreadBehaviour selects the waiter release order.
type ThreadBehaviour uint8

const (
	// ThreadFIFO releases waiters in arrival order.
	ThreadFIFO ThreadBehaviour = iota
	// ThreadPriority releases waiters by priority, FIFO among equals.
	ThreadPriority
)

// NotifyBehaviour selects how many waiters a fire releases.
type NotifyBehaviour uint8

const (
	// NotifyAll releases every waiter on each fire.
	NotifyAll NotifyBehaviour = iota
	// NotifyOnlyWake releases one waiter per accumulated signal.
	NotifyOnlyWake
)

// ResetBehaviour selects what happens after a fire.
type ResetBehaviour uint8

const (
	// ResetManual keeps a fired timer Fired until Reset.
	ResetManual ResetBehaviour = iota
	// ResetAutomatic re-arms a repeating timer on every fire.
	ResetAutomatic
)

// Attributes are fixed at creation.
type Attributes struct {
	Openable bool            `yaml:"openable"`
	Thread   ThreadBehaviour `yaml:"thread"`
	Notify   NotifyBehaviour `yaml:"notify"`
	Reset    ResetBehaviour  `yaml:"reset"`
}

// Bits packs the attributes into one word for name-conflict comparison.
func (a Attributes) Bits() uint32 {
	var b uint32
	if a.Openable {
		b |= uint32(syncprim.AttrOpenable)
	}
	return b | uint32(a.Thread)<<8 | uint32(a.Notify)<<12 | uint32(a.Reset)<<16
}

// Timer is the TimerState.
//
// Layout:
//   - mu: Per-timer lock, guards everything below
//   - waiters: Queue ordered by the ThreadBehaviour
//   - phase: Stopped / Started / Fired
//   - interval, repeats: Event configuration (SetEvent)
//   - base: Tick at which the current period started
//   - signals: Unconsumed fires (NotifyOnlyWake)
//   - fires: Total fires since creation
type Timer struct {
	UID uid.UID

	name  string
	attrs Attributes

	mu       sync.Mutex
	waiters  *waitqueue.Queue
	phase    Phase
	repeats  bool
	interval uint64
	base     uint64
	signals  uint32
	fires    uint64
	deleted  bool
}

// Info is a point-in-time view of a timer.
type Info struct {
	UID      uid.UID
	Name     string
	Phase    Phase
	Repeats  bool
	Interval uint64
	Base     uint64
	Signals  uint32
	Fires    uint64
	Waiters  int
}

// New creates a stopped timer with no event configured.
func New(id uid.UID, name string, attrs Attributes) *Timer {
	order := waitqueue.OrderFIFO
	if attrs.Thread == ThreadPriority {
		order = waitqueue.OrderPriority
	}
	return &Timer{
		UID:     id,
		name:    syncprim.BoundName(name),
		attrs:   attrs,
		waiters: waitqueue.New(order),
	}
}

// Name returns the bounded timer name.
func (t *Timer) Name() string { return t.name }

// Attributes returns the creation attributes.
func (t *Timer) Attributes() Attributes { return t.attrs }

// Openable reports whether the timer may be found by name.
func (t *Timer) Openable() bool { return t.attrs.Openable }

// SetEvent configures the fire interval in ticks and whether the timer
// repeats. The phase is unchanged.
func (t *Timer) SetEvent(interval uint64, repeats bool) error {
	const op = "timer_set_event"
	if interval == 0 {
		return kerr.Wrap(op, t.UID, kerr.ErrInvalidArgument)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return kerr.Wrap(op, t.UID, kerr.ErrInvalidHandle)
	}
	t.interval = interval
	t.repeats = repeats
	return nil
}

// Start arms a stopped timer at tick now. It returns whether the timer was
// already started, in which case nothing changes.
func (t *Timer) Start(now uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return false, kerr.Wrap("timer_start", t.UID, kerr.ErrInvalidHandle)
	}
	if t.phase != Stopped {
		return true, nil
	}
	t.phase = Started
	t.base = now
	return false, nil
}

// Stop moves the timer to Stopped from any phase and returns whether it was
// started. Pending signals are kept until Reset.
func (t *Timer) Stop() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return false, kerr.Wrap("timer_stop", t.UID, kerr.ErrInvalidHandle)
	}
	was := t.phase != Stopped
	t.phase = Stopped
	return was, nil
}

// Reset drops pending signals and, unless stopped, re-arms the timer from
// tick now.
func (t *Timer) Reset(now uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return kerr.Wrap("timer_reset", t.UID, kerr.ErrInvalidHandle)
	}
	t.signals = 0
	if t.phase != Stopped {
		t.phase = Started
		t.base = now
	}
	return nil
}

// Elapse advances the timer to tick now and returns how many times it
// fired. Driven by the external tick source.
//
// A re-arming timer that missed several periods fires once per missed
// period in a single step: the base moves by whole intervals and waiters
// are released once.
func (t *Timer) Elapse(now uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted || t.interval == 0 || t.phase != Started || now < t.base {
		return 0
	}
	periods := (now - t.base) / t.interval
	if periods == 0 {
		return 0
	}

	if !t.repeats || t.attrs.Reset != ResetAutomatic {
		t.fireLocked(1)
		return 1
	}
	t.fireLocked(periods)
	t.phase = Started
	t.base += periods * t.interval
	return int(periods)
}

// fireLocked records n fires and releases waiters once.
func (t *Timer) fireLocked(n uint64) {
	t.phase = Fired
	t.fires += n
	t.waiters.Prune()

	switch t.attrs.Notify {
	case NotifyAll:
		t.waiters.WakeAll(nil)
	case NotifyOnlyWake:
		if n > uint64(math.MaxUint32-t.signals) {
			t.signals = math.MaxUint32
		} else {
			t.signals += uint32(n)
		}
		for t.signals > 0 {
			e := t.waiters.PopLive()
			if e == nil {
				break
			}
			t.signals--
			t.waiters.Wake(e, nil)
		}
	}
}

// Wait blocks th until the timer fires.
//
// Satisfied immediately when the timer is Fired (NotifyAll) or holds a
// pending signal (NotifyOnlyWake, consuming it).
func (t *Timer) Wait(ctx context.Context, th *thread.ThreadState, timeout time.Duration) error {
	const op = "timer_wait"
	t.mu.Lock()
	if t.deleted {
		t.mu.Unlock()
		return kerr.Wrap(op, t.UID, kerr.ErrInvalidHandle)
	}
	switch t.attrs.Notify {
	case NotifyAll:
		if t.phase == Fired {
			t.mu.Unlock()
			return nil
		}
	case NotifyOnlyWake:
		if t.signals > 0 {
			t.signals--
			t.mu.Unlock()
			return nil
		}
	}
	if timeout == waitqueue.NoWait {
		t.mu.Unlock()
		return kerr.Wrap(op, t.UID, kerr.ErrWouldBlock)
	}
	if err := syncprim.CheckWaiter(th); err != nil {
		t.mu.Unlock()
		return kerr.Wrap(op, t.UID, err)
	}
	e := t.waiters.Push(th, th.Priority(), &waitqueue.TimerWait{})
	t.mu.Unlock()

	return kerr.Wrap(op, t.UID, waitqueue.Await(ctx, &t.mu, t.waiters, e, t.UID, timeout))
}

// Delete invalidates the timer and releases every waiter with
// ErrWaitDeleted.
func (t *Timer) Delete() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return 0
	}
	t.deleted = true
	return t.waiters.WakeAll(kerr.ErrWaitDeleted)
}

// Time returns the ticks elapsed in the current period, 0 when stopped.
func (t *Timer) Time(now uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == Stopped || now < t.base {
		return 0
	}
	return now - t.base
}

// Phase returns the current phase.
func (t *Timer) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// IsStarted reports whether the timer is Started or Fired.
func (t *Timer) IsStarted() bool {
	return t.Phase() != Stopped
}

// Info returns a snapshot of the timer.
func (t *Timer) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		UID:      t.UID,
		Name:     t.name,
		Phase:    t.phase,
		Repeats:  t.repeats,
		Interval: t.interval,
		Base:     t.base,
		Signals:  t.signals,
		Fires:    t.fires,
		Waiters:  t.waiters.Len(),
	}
}
