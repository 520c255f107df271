package state

import (
	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/syncprim"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

func semaphoreBits(s *syncprim.Semaphore) uint32 { return uint32(s.Attr()) }
func mutexBits(m *syncprim.Mutex) uint32         { return uint32(m.Attr()) }
func eventFlagBits(f *syncprim.EventFlag) uint32 { return uint32(f.Attr()) }
func condvarBits(c *syncprim.Condvar) uint32     { return uint32(c.Attr()) }

// ============================================================================
// Semaphores
// ============================================================================

// CreateSemaphore registers a semaphore holding initCount of maxCount units.
func (s *State) CreateSemaphore(name string, attr syncprim.Attr, initCount, maxCount int32) (uid.UID, error) {
	id, _, err := create(s, &s.semaphores, "sema_create", name, attr.Has(syncprim.AttrOpenable), uint32(attr),
		semaphoreBits, func(id uid.UID) (*syncprim.Semaphore, error) {
			return syncprim.NewSemaphore(id, name, attr, initCount, maxCount)
		})
	return id, err
}

// FindSemaphore returns the semaphore registered as id.
func (s *State) FindSemaphore(id uid.UID) (*syncprim.Semaphore, error) {
	return find(s, &s.semaphores, "sema_find", id)
}

// OpenSemaphore resolves an openable semaphore by name.
func (s *State) OpenSemaphore(name string) (uid.UID, error) {
	return open(s, &s.semaphores, "sema_open", name)
}

// DeleteSemaphore unregisters the semaphore and wakes its waiters with
// ErrWaitDeleted.
func (s *State) DeleteSemaphore(id uid.UID) error {
	sema, err := remove(s, &s.semaphores, "sema_delete", id)
	if err != nil {
		return err
	}
	s.logf("deleted semaphore %s, %d waiters woken", id, sema.Delete())
	return nil
}

// ============================================================================
// Mutexes
// ============================================================================

// CreateMutex registers a mutex. With initCount > 0 it starts owned by the
// thread registered as owner.
func (s *State) CreateMutex(name string, attr syncprim.Attr, initCount int32, owner uid.UID) (uid.UID, error) {
	return s.createMutex(&s.mutexes, "mutex_create", name, attr, initCount, owner)
}

// CreateLwMutex registers a lightweight mutex. Lightweight mutexes live in
// their own table but behave exactly like mutexes.
func (s *State) CreateLwMutex(name string, attr syncprim.Attr, initCount int32, owner uid.UID) (uid.UID, error) {
	return s.createMutex(&s.lwmutexes, "lwmutex_create", name, attr, initCount, owner)
}

func (s *State) createMutex(tb *table[*syncprim.Mutex], op, name string, attr syncprim.Attr, initCount int32, owner uid.UID) (uid.UID, error) {
	id, _, err := create(s, tb, op, name, attr.Has(syncprim.AttrOpenable), uint32(attr),
		mutexBits, func(id uid.UID) (*syncprim.Mutex, error) {
			var t *thread.ThreadState
			if initCount > 0 {
				var ok bool
				if t, ok = s.threads[owner]; !ok {
					return nil, kerr.ErrInvalidHandle
				}
			}
			return syncprim.NewMutex(id, name, attr, initCount, t)
		})
	return id, err
}

// FindMutex returns the mutex registered as id.
func (s *State) FindMutex(id uid.UID) (*syncprim.Mutex, error) {
	return find(s, &s.mutexes, "mutex_find", id)
}

// FindLwMutex returns the lightweight mutex registered as id.
func (s *State) FindLwMutex(id uid.UID) (*syncprim.Mutex, error) {
	return find(s, &s.lwmutexes, "lwmutex_find", id)
}

// OpenMutex resolves an openable mutex by name.
func (s *State) OpenMutex(name string) (uid.UID, error) {
	return open(s, &s.mutexes, "mutex_open", name)
}

// DeleteMutex unregisters the mutex and wakes its waiters with
// ErrWaitDeleted. Condvars bound to it fail their next wait with
// ErrInvalidHandle.
func (s *State) DeleteMutex(id uid.UID) error {
	m, err := remove(s, &s.mutexes, "mutex_delete", id)
	if err != nil {
		return err
	}
	s.logf("deleted mutex %s, %d waiters woken", id, m.Delete())
	return nil
}

// DeleteLwMutex unregisters a lightweight mutex.
func (s *State) DeleteLwMutex(id uid.UID) error {
	m, err := remove(s, &s.lwmutexes, "lwmutex_delete", id)
	if err != nil {
		return err
	}
	s.logf("deleted lwmutex %s, %d waiters woken", id, m.Delete())
	return nil
}

// ============================================================================
// Event flags
// ============================================================================

// CreateEventFlag registers an event flag with the initial bit pattern.
func (s *State) CreateEventFlag(name string, attr syncprim.Attr, initPattern uint32) (uid.UID, error) {
	id, _, err := create(s, &s.eventflags, "evf_create", name, attr.Has(syncprim.AttrOpenable), uint32(attr),
		eventFlagBits, func(id uid.UID) (*syncprim.EventFlag, error) {
			return syncprim.NewEventFlag(id, name, attr, initPattern), nil
		})
	return id, err
}

// FindEventFlag returns the event flag registered as id.
func (s *State) FindEventFlag(id uid.UID) (*syncprim.EventFlag, error) {
	return find(s, &s.eventflags, "evf_find", id)
}

// OpenEventFlag resolves an openable event flag by name.
func (s *State) OpenEventFlag(name string) (uid.UID, error) {
	return open(s, &s.eventflags, "evf_open", name)
}

// DeleteEventFlag unregisters the event flag and wakes its waiters with
// ErrWaitDeleted.
func (s *State) DeleteEventFlag(id uid.UID) error {
	f, err := remove(s, &s.eventflags, "evf_delete", id)
	if err != nil {
		return err
	}
	s.logf("deleted eventflag %s, %d waiters woken", id, f.Delete())
	return nil
}

// ============================================================================
// Condition variables
// ============================================================================

// CreateCondvar registers a condvar bound to the mutex registered as mutex.
func (s *State) CreateCondvar(name string, attr syncprim.Attr, mutex uid.UID) (uid.UID, error) {
	return s.createCondvar(&s.condvars, &s.mutexes, "cond_create", name, attr, mutex)
}

// CreateLwCondvar registers a lightweight condvar bound to a lightweight
// mutex.
func (s *State) CreateLwCondvar(name string, attr syncprim.Attr, lwmutex uid.UID) (uid.UID, error) {
	return s.createCondvar(&s.lwcondvars, &s.lwmutexes, "lwcond_create", name, attr, lwmutex)
}

func (s *State) createCondvar(tb *table[*syncprim.Condvar], mutexes *table[*syncprim.Mutex], op, name string,
	attr syncprim.Attr, mutex uid.UID) (uid.UID, error) {
	id, _, err := create(s, tb, op, name, attr.Has(syncprim.AttrOpenable), uint32(attr),
		condvarBits, func(id uid.UID) (*syncprim.Condvar, error) {
			m, ok := mutexes.objects[mutex]
			if !ok {
				return nil, kerr.ErrInvalidHandle
			}
			return syncprim.NewCondvar(id, name, attr, m)
		})
	return id, err
}

// FindCondvar returns the condvar registered as id.
func (s *State) FindCondvar(id uid.UID) (*syncprim.Condvar, error) {
	return find(s, &s.condvars, "cond_find", id)
}

// FindLwCondvar returns the lightweight condvar registered as id.
func (s *State) FindLwCondvar(id uid.UID) (*syncprim.Condvar, error) {
	return find(s, &s.lwcondvars, "lwcond_find", id)
}

// OpenCondvar resolves an openable condvar by name.
func (s *State) OpenCondvar(name string) (uid.UID, error) {
	return open(s, &s.condvars, "cond_open", name)
}

// DeleteCondvar unregisters the condvar and wakes its waiters with
// ErrWaitDeleted. Woken waiters still re-acquire the mutex.
func (s *State) DeleteCondvar(id uid.UID) error {
	c, err := remove(s, &s.condvars, "cond_delete", id)
	if err != nil {
		return err
	}
	s.logf("deleted condvar %s, %d waiters woken", id, c.Delete())
	return nil
}

// DeleteLwCondvar unregisters a lightweight condvar.
func (s *State) DeleteLwCondvar(id uid.UID) error {
	c, err := remove(s, &s.lwcondvars, "lwcond_delete", id)
	if err != nil {
		return err
	}
	s.logf("deleted lwcondvar %s, %d waiters woken", id, c.Delete())
	return nil
}
