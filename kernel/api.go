// Package kernel provides the public API of the guest kernel
// synchronization layer.
//
// See doc.go for detailed documentation and examples.
package kernel

import (
	"github.com/kolkov/kernelsync/internal/kernel/config"
	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/state"
	"github.com/kolkov/kernelsync/internal/kernel/syncprim"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/timer"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
	"github.com/kolkov/kernelsync/internal/kernel/waitqueue"
)

// Registry and object handles.
type (
	// State is the kernel object registry.
	State = state.State

	// UID identifies a kernel object. The zero value is never allocated.
	UID = uid.UID

	// Thread is a guest thread handle.
	Thread = thread.ThreadState

	Semaphore = syncprim.Semaphore
	Mutex     = syncprim.Mutex
	EventFlag = syncprim.EventFlag
	Condvar   = syncprim.Condvar
	Timer     = timer.Timer

	// Attr is the attribute bitmask accepted by the create calls.
	Attr = syncprim.Attr

	// TimerAttributes are the behaviours fixed at timer creation.
	TimerAttributes = timer.Attributes

	// SignalTarget selects the condvar waiters a signal releases.
	SignalTarget = syncprim.SignalTarget

	// Snapshot is a diagnostic view of the registry.
	Snapshot = state.Snapshot

	// Config is the kernel configuration.
	Config = config.Config

	// Error carries the failing operation and object UID of a kernel error.
	Error = kerr.Error
)

// NoOwner creates a mutex without an initial owner.
const NoOwner = uid.Invalid

// Guest thread priority bounds. Lower values are released first.
const (
	MinPriority = config.MinPriority
	MaxPriority = config.MaxPriority
)

// Timeouts accepted by every blocking call.
const (
	// Forever blocks until woken.
	Forever = waitqueue.Forever

	// NoWait polls and fails with ErrWouldBlock instead of blocking.
	NoWait = waitqueue.NoWait
)

// Object attributes.
const (
	AttrThreadFIFO  = syncprim.AttrThreadFIFO
	AttrNoSaturate  = syncprim.AttrNoSaturate
	AttrClearOnWake = syncprim.AttrClearOnWake
	AttrOpenable    = syncprim.AttrOpenable
)

// Event flag wait modes.
const (
	WaitAnd          = syncprim.WaitAnd
	WaitOr           = syncprim.WaitOr
	WaitClearAll     = syncprim.WaitClearAll
	WaitClearPattern = syncprim.WaitClearPattern
)

// Timer behaviours.
const (
	TimerThreadFIFO     = timer.ThreadFIFO
	TimerThreadPriority = timer.ThreadPriority
	TimerNotifyAll      = timer.NotifyAll
	TimerNotifyOnlyWake = timer.NotifyOnlyWake
	TimerResetManual    = timer.ResetManual
	TimerResetAutomatic = timer.ResetAutomatic
)

// Errors returned by kernel calls, wrapped in *Error. Match with errors.Is.
var (
	ErrInvalidHandle   = kerr.ErrInvalidHandle
	ErrNotOwner        = kerr.ErrNotOwner
	ErrTimeout         = kerr.ErrTimeout
	ErrWouldBlock      = kerr.ErrWouldBlock
	ErrOverflow        = kerr.ErrOverflow
	ErrAlreadyExists   = kerr.ErrAlreadyExists
	ErrAttrMismatch    = kerr.ErrAttrMismatch
	ErrWaitDeleted     = kerr.ErrWaitDeleted
	ErrWaitCanceled    = kerr.ErrWaitCanceled
	ErrThreadExited    = kerr.ErrThreadExited
	ErrInvalidArgument = kerr.ErrInvalidArgument
)

// New creates an empty registry.
//
// Example:
//
//	s := kernel.New(kernel.DefaultConfig())
//	defer fmt.Println(s.Snapshot().LastUID)
func New(cfg Config) *State {
	return state.New(cfg)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file, applies KERNELSYNC_*
// environment overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// SignalAny targets the next condvar waiter in release order.
func SignalAny() SignalTarget { return syncprim.SignalAny() }

// SignalThread targets the condvar waiter running as thread id.
func SignalThread(id UID) SignalTarget { return syncprim.SignalThread(id) }

// SignalAll targets every condvar waiter.
func SignalAll() SignalTarget { return syncprim.SignalAll() }
