package common

import (
	"errors"
	"sync/atomic"
)

var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause state consulted before every state-changing
// module entry point. Read-only queries ignore it.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSwitch is a process-wide pause toggle satisfying PauseView; every
// module name reports the same state.
type PauseSwitch struct {
	paused atomic.Bool
}

// Pause halts all state-changing entry points guarded by the switch.
func (s *PauseSwitch) Pause() { s.paused.Store(true) }

// Resume re-enables state-changing entry points.
func (s *PauseSwitch) Resume() { s.paused.Store(false) }

// IsPaused implements PauseView.
func (s *PauseSwitch) IsPaused(string) bool { return s.paused.Load() }
