package state

import (
	"sort"

	"github.com/kolkov/kernelsync/internal/kernel/kerr"
	"github.com/kolkov/kernelsync/internal/kernel/syncprim"
	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

// BlockInfo records a guest memory block.
type BlockInfo struct {
	Name    string `yaml:"name"`
	Address uint32 `yaml:"address"`
	Size    uint32 `yaml:"size"`
}

// ModuleInfo records a loaded guest module.
type ModuleInfo struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// RegisterBlock records a memory block under a fresh UID.
func (s *State) RegisterBlock(b BlockInfo) uid.UID {
	b.Name = syncprim.BoundName(b.Name)
	s.mu.Lock()
	id := s.uids.Next()
	s.blocks[id] = b
	s.mu.Unlock()
	return id
}

// FindBlock returns the memory block registered as id.
func (s *State) FindBlock(id uid.UID) (BlockInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return BlockInfo{}, kerr.Wrap("block_find", id, kerr.ErrInvalidHandle)
	}
	return b, nil
}

// FreeBlock forgets a memory block.
func (s *State) FreeBlock(id uid.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[id]; !ok {
		return kerr.Wrap("block_free", id, kerr.ErrInvalidHandle)
	}
	delete(s.blocks, id)
	return nil
}

// RegisterModule records a loaded module under a fresh UID.
func (s *State) RegisterModule(m ModuleInfo) uid.UID {
	s.mu.Lock()
	id := s.uids.Next()
	s.modules[id] = m
	s.mu.Unlock()
	s.logf("loaded module %s %q from %s", id, m.Name, m.Path)
	return id
}

// FindModule returns the module registered as id.
func (s *State) FindModule(id uid.UID) (ModuleInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	if !ok {
		return ModuleInfo{}, kerr.Wrap("module_find", id, kerr.ErrInvalidHandle)
	}
	return m, nil
}

// UnloadModule forgets a module.
func (s *State) UnloadModule(id uid.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[id]; !ok {
		return kerr.Wrap("module_unload", id, kerr.ErrInvalidHandle)
	}
	delete(s.modules, id)
	return nil
}

// LoadSysmodule marks a system module as loaded. It returns false when the
// module was already loaded.
func (s *State) LoadSysmodule(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loaded := range s.loadedSysmodules {
		if loaded == id {
			return false
		}
	}
	s.loadedSysmodules = append(s.loadedSysmodules, id)
	return true
}

// Sysmodules returns the loaded system module IDs in ascending order.
func (s *State) Sysmodules() []uint32 {
	s.mu.Lock()
	out := append([]uint32(nil), s.loadedSysmodules...)
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetExport binds an exported function NID to its guest address.
func (s *State) SetExport(nid, addr uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exportNIDs[nid] = addr
}

// ResolveExport returns the guest address bound to nid.
func (s *State) ResolveExport(nid uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.exportNIDs[nid]
	return addr, ok
}
