package server

import "sync/atomic"

// Phase is the coarse lifecycle stage reported on /health.
type Phase string

const (
	PhaseStarting     Phase = "starting"
	PhaseRunning      Phase = "running"
	PhaseShuttingDown Phase = "shutting_down"
	PhaseStopped      Phase = "stopped"
)

// State is shared between the App and the health endpoints.
type State struct {
	phase atomic.Value
}

func NewState() *State {
	s := &State{}
	s.phase.Store(PhaseStarting)
	return s
}

func (s *State) Set(p Phase) { s.phase.Store(p) }

func (s *State) Phase() string { return string(s.phase.Load().(Phase)) }

// Ready is true only while running.
func (s *State) Ready() bool { return s.phase.Load().(Phase) == PhaseRunning }
