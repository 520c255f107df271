package state

import (
	"github.com/kolkov/kernelsync/internal/kernel/timer"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

func timerBits(t *timer.Timer) uint32 { return t.Attributes().Bits() }

// CreateTimer registers a stopped timer.
func (s *State) CreateTimer(name string, attrs timer.Attributes) (uid.UID, error) {
	id, _, err := create(s, &s.timers, "timer_create", name, attrs.Openable, attrs.Bits(),
		timerBits, func(id uid.UID) (*timer.Timer, error) {
			return timer.New(id, name, attrs), nil
		})
	return id, err
}

// FindTimer returns the timer registered as id.
func (s *State) FindTimer(id uid.UID) (*timer.Timer, error) {
	return find(s, &s.timers, "timer_find", id)
}

// OpenTimer resolves an openable timer by name.
func (s *State) OpenTimer(name string) (uid.UID, error) {
	return open(s, &s.timers, "timer_open", name)
}

// DeleteTimer unregisters the timer and wakes its waiters with
// ErrWaitDeleted.
func (s *State) DeleteTimer(id uid.UID) error {
	t, err := remove(s, &s.timers, "timer_delete", id)
	if err != nil {
		return err
	}
	s.logf("deleted timer %s, %d waiters woken", id, t.Delete())
	return nil
}

// AdvanceTimers feeds clock tick now to every registered timer and returns
// the total number of fires. Ticks earlier than the last one seen are
// ignored.
func (s *State) AdvanceTimers(now uint64) int {
	s.mu.Lock()
	if now < s.lastTick {
		s.mu.Unlock()
		return 0
	}
	s.lastTick = now
	s.mu.Unlock()

	fired := 0
	for _, t := range handles(s, &s.timers) {
		fired += t.Elapse(now)
	}
	return fired
}

// LastTick returns the most recent tick passed to AdvanceTimers.
func (s *State) LastTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}
