// Package state implements the kernel object registry (KernelState).
//
// The registry maps UIDs to every kernel object: synchronization primitives,
// timers, guest threads, TLS slot tables, memory block records, loaded
// modules, loaded sysmodules and exported NIDs. All of them draw their UIDs
// from one shared allocator.
//
// Locking (two tiers, never conflated):
//   - s.mu, the structural lock, guards map membership only
//   - each primitive's own lock guards its counters and waiting queue
//
// Find copies the handle out under s.mu and returns before the caller does
// anything with it, so no guest thread ever blocks while holding s.mu.
// Delete removes the handle from its map under s.mu, then force-wakes the
// object's waiters under the object's own lock. Holders that still reference
// a deleted object (a condvar's mutex, a handle fetched earlier) see
// ErrInvalidHandle on their next call; the memory is reclaimed once the last
// of them drops it.
//
// Example:
//
//	s := state.New(config.Default())
//	main, _ := s.CreateThread("main", 160)
//	id, _ := s.CreateSemaphore("frames", 0, 0, 4)
//	sema, _ := s.FindSemaphore(id)
//	err := sema.Wait(ctx, main, 1, waitqueue.Forever)
package state

import (
	"io"
	"log"
	"os"
	"sync"

	"github.com/kolkov/kernelsync/internal/kernel/config"
	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/syncprim"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/timer"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// State is the KernelState registry.
type State struct {
	// mu is the structural lock. It guards the maps below, never the
	// objects inside them.
	mu sync.Mutex

	semaphores table[*syncprim.Semaphore]
	mutexes    table[*syncprim.Mutex]
	lwmutexes  table[*syncprim.Mutex]
	eventflags table[*syncprim.EventFlag]
	condvars   table[*syncprim.Condvar]
	lwcondvars table[*syncprim.Condvar]
	timers     table[*timer.Timer]

	threads map[uid.UID]*thread.ThreadState

	// tls maps thread UID -> slot -> guest address.
	tls map[uid.UID]map[uint32]uint32

	blocks           map[uid.UID]BlockInfo
	modules          map[uid.UID]ModuleInfo
	loadedSysmodules []uint32
	exportNIDs       map[uint32]uint32

	baseTick uint64
	lastTick uint64

	firmware string
	uids     uid.Allocator
	log      *log.Logger
}

// New creates an empty registry for cfg. Diagnostics go to stderr when
// cfg.Verbose is set and are discarded otherwise.
func New(cfg config.Config) *State {
	out := io.Discard
	if cfg.Verbose {
		out = os.Stderr
	}
	return &State{
		semaphores: newTable[*syncprim.Semaphore]("semaphore"),
		mutexes:    newTable[*syncprim.Mutex]("mutex"),
		lwmutexes:  newTable[*syncprim.Mutex]("lwmutex"),
		eventflags: newTable[*syncprim.EventFlag]("eventflag"),
		condvars:   newTable[*syncprim.Condvar]("condvar"),
		lwcondvars: newTable[*syncprim.Condvar]("lwcondvar"),
		timers:     newTable[*timer.Timer]("timer"),
		threads:    make(map[uid.UID]*thread.ThreadState),
		tls:        make(map[uid.UID]map[uint32]uint32),
		blocks:     make(map[uid.UID]BlockInfo),
		modules:    make(map[uid.UID]ModuleInfo),
		exportNIDs: make(map[uint32]uint32),
		firmware:   cfg.Firmware,
		log:        log.New(out, "kernel: ", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetOutput redirects registry diagnostics.
func (s *State) SetOutput(w io.Writer) {
	s.log.SetOutput(w)
}

// NextUID allocates a UID from the shared space. Non-synchronization
// objects managed outside this package (e.g. by a memory allocator) draw
// from here so that UIDs stay unique across every kernel object.
func (s *State) NextUID() uid.UID {
	return s.uids.Next()
}

// LastUID returns the most recently allocated UID.
func (s *State) LastUID() uid.UID {
	return s.uids.Last()
}

// Firmware returns the emulated firmware version.
func (s *State) Firmware() string {
	return s.firmware
}

// SetBaseTick records the clock tick the emulated system booted at.
func (s *State) SetBaseTick(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseTick = tick
}

// BaseTick returns the boot clock tick.
func (s *State) BaseTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseTick
}

// logf writes a diagnostic line.
func (s *State) logf(format string, args ...any) {
	s.log.Printf(format, args...)
}

// object is what the generic tables need from a registered kernel object.
type object interface {
	Name() string
	Openable() bool
}

// table is one UID -> object map. Callers hold State.mu.
type table[T object] struct {
	kind    string
	objects map[uid.UID]T
}

func newTable[T object](kind string) table[T] {
	return table[T]{kind: kind, objects: make(map[uid.UID]T)}
}

// byName returns the openable object named name. Caller holds State.mu.
func (tb *table[T]) byName(name string) (uid.UID, T, bool) {
	for id, o := range tb.objects {
		if o.Openable() && o.Name() == name {
			return id, o, true
		}
	}
	var zero T
	return uid.Invalid, zero, false
}

// create allocates a UID, builds the object and inserts it, all under the
// structural lock. build must not block.
//
// Creating an openable object whose name is taken by another openable
// object of the same kind fails with ErrAlreadyExists when the attributes
// match and ErrAttrMismatch otherwise.
func create[T object](s *State, tb *table[T], op, name string, openable bool, bits uint32,
	bitsOf func(T) uint32, build func(id uid.UID) (T, error)) (uid.UID, T, error) {
	var zero T
	name = syncprim.BoundName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if openable {
		if _, existing, ok := tb.byName(name); ok {
			if bitsOf(existing) == bits {
				return uid.Invalid, zero, kerr.Wrap(op, uid.Invalid, kerr.ErrAlreadyExists)
			}
			return uid.Invalid, zero, kerr.Wrap(op, uid.Invalid, kerr.ErrAttrMismatch)
		}
	}

	id := s.uids.Next()
	obj, err := build(id)
	if err != nil {
		return uid.Invalid, zero, kerr.Wrap(op, id, err)
	}
	tb.objects[id] = obj
	s.logf("created %s %s %q", tb.kind, id, name)
	return id, obj, nil
}

// find copies a handle out under the structural lock.
func find[T object](s *State, tb *table[T], op string, id uid.UID) (T, error) {
	s.mu.Lock()
	obj, ok := tb.objects[id]
	s.mu.Unlock()
	if !ok {
		var zero T
		return zero, kerr.Wrap(op, id, kerr.ErrInvalidHandle)
	}
	return obj, nil
}

// open resolves an openable object by name.
func open[T object](s *State, tb *table[T], op, name string) (uid.UID, error) {
	s.mu.Lock()
	id, _, ok := tb.byName(syncprim.BoundName(name))
	s.mu.Unlock()
	if !ok {
		return uid.Invalid, kerr.Wrap(op, uid.Invalid, kerr.ErrInvalidHandle)
	}
	return id, nil
}

// remove erases id from its map under the structural lock and returns the
// handle so the caller can tear the object down outside that lock.
func remove[T object](s *State, tb *table[T], op string, id uid.UID) (T, error) {
	s.mu.Lock()
	obj, ok := tb.objects[id]
	delete(tb.objects, id)
	s.mu.Unlock()
	if !ok {
		var zero T
		return zero, kerr.Wrap(op, id, kerr.ErrInvalidHandle)
	}
	return obj, nil
}

// handles copies every handle of a table under the structural lock.
func handles[T object](s *State, tb *table[T]) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(tb.objects))
	for _, o := range tb.objects {
		out = append(out, o)
	}
	return out
}
