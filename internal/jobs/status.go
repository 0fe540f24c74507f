package jobs

import "sync/atomic"

// RunStatus holds the flags shared by every background loop in the process.
// The zero value is alive and enabled.
type RunStatus struct {
	disabled atomic.Bool
	stopping atomic.Bool
}

// NewRunStatus returns an alive, enabled status.
func NewRunStatus() *RunStatus {
	return &RunStatus{}
}

// Disable pauses all loops without stopping them.
func (s *RunStatus) Disable() { s.disabled.Store(true) }

// Enable resumes paused loops.
func (s *RunStatus) Enable() { s.disabled.Store(false) }

// Disabled reports whether processing is paused.
func (s *RunStatus) Disabled() bool { return s.disabled.Load() }

// Shutdown marks the process as no longer alive. Loops exit before their
// next unit of work.
func (s *RunStatus) Shutdown() { s.stopping.Store(true) }

// Alive reports whether loops should keep running.
func (s *RunStatus) Alive() bool { return !s.stopping.Load() }
