package common

import "errors"

// ErrModulePaused is returned when a call reaches a module whose service-wide
// switch has been flipped off.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the operator-controlled pause switches. Campaign-level
// pause lives on each instance; this guard covers whole module families.
type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
