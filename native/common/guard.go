package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module has been administratively halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects an operation when its module is paused. A nil view or empty
// module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switch is a concurrency-safe PauseView the daemon toggles at runtime.
type Switch struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewSwitch() *Switch {
	return &Switch{paused: make(map[string]bool)}
}

func (s *Switch) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

func (s *Switch) Pause(module string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[module] = true
}

func (s *Switch) Resume(module string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, module)
}
