package state

import (
	"sort"

	"github.com/kolkov/kernelsync/internal/kernel/config"
	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/thread"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// WaitingThread reports one blocked guest thread.
type WaitingThread struct {
	Thread    uid.UID `yaml:"thread"`
	Name      string  `yaml:"name"`
	WaitingOn uid.UID `yaml:"waiting_on"`
}

// CreateThread registers a guest thread.
func (s *State) CreateThread(name string, priority int32) (*thread.ThreadState, error) {
	const op = "thread_create"
	if priority < config.MinPriority || priority > config.MaxPriority {
		return nil, kerr.Wrap(op, uid.Invalid, kerr.ErrInvalidArgument)
	}

	s.mu.Lock()
	id := s.uids.Next()
	t := thread.New(id, name, priority)
	s.threads[id] = t
	s.mu.Unlock()

	s.logf("created thread %s %q priority %d", id, name, priority)
	return t, nil
}

// FindThread returns the thread registered as id.
func (s *State) FindThread(id uid.UID) (*thread.ThreadState, error) {
	s.mu.Lock()
	t, ok := s.threads[id]
	s.mu.Unlock()
	if !ok {
		return nil, kerr.Wrap("thread_find", id, kerr.ErrInvalidHandle)
	}
	return t, nil
}

// ExitThread unregisters the thread and drops its TLS slots. A blocked wait
// of that thread returns ErrThreadExited and takes its entry off the queue.
func (s *State) ExitThread(id uid.UID) error {
	s.mu.Lock()
	t, ok := s.threads[id]
	delete(s.threads, id)
	delete(s.tls, id)
	s.mu.Unlock()
	if !ok {
		return kerr.Wrap("thread_exit", id, kerr.ErrInvalidHandle)
	}

	t.Exit()
	s.logf("thread %s %q exited", id, t.Name)
	return nil
}

// Threads returns every registered thread ordered by UID.
func (s *State) Threads() []*thread.ThreadState {
	s.mu.Lock()
	out := make([]*thread.ThreadState, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WaitingThreads lists the threads currently blocked and the UID each one
// waits on, ordered by thread UID.
func (s *State) WaitingThreads() []WaitingThread {
	var out []WaitingThread
	for _, t := range s.Threads() {
		if t.Status() != thread.StatusWaiting {
			continue
		}
		out = append(out, WaitingThread{Thread: t.ID, Name: t.Name, WaitingOn: t.WaitingOn()})
	}
	return out
}

// SetTLS stores a thread-local slot value for the thread registered as id.
func (s *State) SetTLS(id uid.UID, slot, addr uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return kerr.Wrap("tls_set", id, kerr.ErrInvalidHandle)
	}
	slots, ok := s.tls[id]
	if !ok {
		slots = make(map[uint32]uint32)
		s.tls[id] = slots
	}
	slots[slot] = addr
	return nil
}

// TLS returns a thread-local slot value.
func (s *State) TLS(id uid.UID, slot uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.tls[id][slot]
	return addr, ok
}
