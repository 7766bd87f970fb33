// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"fmt"
	"sync"
)

// Phase is a stage of the boot lifecycle.
type Phase string

const (
	// PhaseLoading covers settings load and workspace scaffolding.
	PhaseLoading Phase = "Loading"
	// PhaseProvisioning covers installer and hook work.
	PhaseProvisioning Phase = "Provisioning"
	// PhaseConfiguringRuntime covers the server runtime config write.
	PhaseConfiguringRuntime Phase = "ConfiguringRuntime"
	// PhaseServing means the server owns the process. Terminal.
	PhaseServing Phase = "Serving"
	// PhaseFailed means a step failed and the boot stopped. Terminal.
	PhaseFailed Phase = "Failed"
)

// String returns the phase name.
func (p Phase) String() string { return string(p) }

// StateMachine manages phase transitions for a boot.
// It ensures that transitions follow the boot lifecycle.
type StateMachine struct {
	mu    sync.RWMutex
	phase Phase
}

// NewStateMachine returns a machine in the given phase. An empty phase
// starts at Loading.
func NewStateMachine(initial Phase) *StateMachine {
	if initial == "" {
		initial = PhaseLoading
	}
	return &StateMachine{phase: initial}
}

// Phase returns the current phase.
func (sm *StateMachine) Phase() Phase {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.phase
}

// Transition attempts to move the phase to target.
// It returns an error if the transition is invalid.
func (sm *StateMachine) Transition(target Phase) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !isValidTransition(sm.phase, target) {
		return fmt.Errorf("invalid phase transition: %s -> %s", sm.phase, target)
	}

	sm.phase = target
	return nil
}

// isValidTransition defines the permitted phase edges. The happy path is
// strictly forward; any non-terminal phase may move to Failed.
func isValidTransition(current, target Phase) bool {
	if current == target {
		return true
	}

	switch current {
	case PhaseLoading:
		return target == PhaseProvisioning || target == PhaseFailed
	case PhaseProvisioning:
		return target == PhaseConfiguringRuntime || target == PhaseFailed
	case PhaseConfiguringRuntime:
		return target == PhaseServing || target == PhaseFailed
	case PhaseServing, PhaseFailed:
		// Terminal. A boot that reached Serving belongs to the server
		// process; a failed boot stays failed.
		return false
	default:
		return false
	}
}
