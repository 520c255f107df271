package state

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kolkov/kernelsync/internal/kernel/syncprim"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// ObjectSummary is one registered object in a Snapshot.
type ObjectSummary struct {
	UID     uid.UID `yaml:"uid"`
	Kind    string  `yaml:"kind"`
	Name    string  `yaml:"name,omitempty"`
	Waiters int     `yaml:"waiters"`
	Detail  string  `yaml:"detail,omitempty"`
}

// Snapshot is a diagnostic view of the registry.
//
// Membership is read under the structural lock; each object's counters are
// read afterwards under its own lock, so the view is consistent per object
// but not across objects.
type Snapshot struct {
	Firmware   string          `yaml:"firmware"`
	LastUID    uid.UID         `yaml:"last_uid"`
	BaseTick   uint64          `yaml:"base_tick"`
	LastTick   uint64          `yaml:"last_tick"`
	Threads    int             `yaml:"threads"`
	Waiting    []WaitingThread `yaml:"waiting,omitempty"`
	Objects    []ObjectSummary `yaml:"objects"`
	Blocks     int             `yaml:"blocks"`
	Modules    int             `yaml:"modules"`
	Sysmodules []uint32        `yaml:"sysmodules,omitempty"`
	Exports    int             `yaml:"exports"`
}

// Snapshot captures the registry.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Firmware: s.firmware,
		LastUID:  s.uids.Last(),
		BaseTick: s.baseTick,
		LastTick: s.lastTick,
		Threads:  len(s.threads),
		Blocks:   len(s.blocks),
		Modules:  len(s.modules),
		Exports:  len(s.exportNIDs),
	}
	s.mu.Unlock()

	snap.Waiting = s.WaitingThreads()
	snap.Sysmodules = s.Sysmodules()

	for _, o := range handles(s, &s.semaphores) {
		i := o.Info()
		snap.Objects = append(snap.Objects, ObjectSummary{
			UID: i.UID, Kind: "semaphore", Name: i.Name, Waiters: i.Waiters,
			Detail: fmt.Sprintf("value=%d/%d", i.Value, i.Max),
		})
	}
	for kind, tb := range map[string]*table[*syncprim.Mutex]{"mutex": &s.mutexes, "lwmutex": &s.lwmutexes} {
		for _, o := range handles(s, tb) {
			i := o.Info()
			snap.Objects = append(snap.Objects, ObjectSummary{
				UID: i.UID, Kind: kind, Name: i.Name, Waiters: i.Waiters,
				Detail: fmt.Sprintf("owner=%s depth=%d", i.Owner, i.LockCount),
			})
		}
	}
	for _, o := range handles(s, &s.eventflags) {
		i := o.Info()
		snap.Objects = append(snap.Objects, ObjectSummary{
			UID: i.UID, Kind: "eventflag", Name: i.Name, Waiters: i.Waiters,
			Detail: fmt.Sprintf("flags=%#x", i.Flags),
		})
	}
	for kind, tb := range map[string]*table[*syncprim.Condvar]{"condvar": &s.condvars, "lwcondvar": &s.lwcondvars} {
		for _, o := range handles(s, tb) {
			i := o.Info()
			snap.Objects = append(snap.Objects, ObjectSummary{
				UID: i.UID, Kind: kind, Name: i.Name, Waiters: i.Waiters,
				Detail: fmt.Sprintf("mutex=%s", i.Mutex),
			})
		}
	}
	for _, o := range handles(s, &s.timers) {
		i := o.Info()
		snap.Objects = append(snap.Objects, ObjectSummary{
			UID: i.UID, Kind: "timer", Name: i.Name, Waiters: i.Waiters,
			Detail: fmt.Sprintf("phase=%s fires=%d", i.Phase, i.Fires),
		})
	}

	sort.Slice(snap.Objects, func(i, j int) bool { return snap.Objects[i].UID < snap.Objects[j].UID })
	return snap
}

// YAML renders the snapshot.
func (sn Snapshot) YAML() ([]byte, error) {
	data, err := yaml.Marshal(sn)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal snapshot: %w", err)
	}
	return data, nil
}
