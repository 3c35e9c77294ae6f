package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: accept sessions, drain input lines
	PhaseUpdate               // 1: heartbeats, callouts, combat rounds
	PhaseOutput               // 2: message fan-out to sessions
	PhasePersist              // 3: periodic snapshot
	PhaseCleanup              // 4: reap dead sessions
)

// System is one phase-ordered unit of per-tick work.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Func adapts a plain function into a System.
func Func(phase Phase, fn func(dt time.Duration)) System {
	return funcSystem{phase: phase, fn: fn}
}

type funcSystem struct {
	phase Phase
	fn    func(dt time.Duration)
}

func (s funcSystem) Phase() Phase             { return s.phase }
func (s funcSystem) Update(dt time.Duration) { s.fn(dt) }
