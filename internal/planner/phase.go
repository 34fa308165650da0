package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wasteroute/internal/model"
)

type Phase string

const (
	PhaseIdle           Phase = "Idle"
	PhaseMatrixBuilding Phase = "MatrixBuilding"
	PhaseSolving        Phase = "Solving"
	PhaseSolved         Phase = "Solved"
	PhaseInfeasible     Phase = "Infeasible"
	PhaseTimedOut       Phase = "TimedOut"
)

var ErrIllegalTransition = errors.New("illegal phase transition")

var transitions = map[Phase][]Phase{
	PhaseIdle:           {PhaseMatrixBuilding},
	PhaseMatrixBuilding: {PhaseSolving},
	PhaseSolving:        {PhaseSolved, PhaseInfeasible, PhaseTimedOut},
	PhaseSolved:         {PhaseIdle},
	PhaseInfeasible:     {PhaseIdle},
	PhaseTimedOut:       {PhaseIdle},
}

func phaseForStatus(s model.Status) Phase {
	switch s {
	case model.StatusInfeasible:
		return PhaseInfeasible
	case model.StatusTimedOut:
		return PhaseTimedOut
	default:
		return PhaseSolved
	}
}

// PhaseEvent is emitted on every transition of a zone's solve.
type PhaseEvent struct {
	RunID  string    `json:"runId"`
	Zone   int       `json:"zone"`
	From   Phase     `json:"from"`
	To     Phase     `json:"to"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Observer receives phase events. Implementations must be safe for
// concurrent use when zones are solved in parallel.
type Observer interface {
	OnPhase(ctx context.Context, ev PhaseEvent)
}

type ObserverFunc func(ctx context.Context, ev PhaseEvent)

func (f ObserverFunc) OnPhase(ctx context.Context, ev PhaseEvent) { f(ctx, ev) }

// machine tracks one zone through Idle -> MatrixBuilding -> Solving -> terminal -> Idle.
type machine struct {
	mu    sync.Mutex
	runID string
	zone  int
	phase Phase
	obs   Observer
}

func newMachine(runID string, zone int, obs Observer) *machine {
	return &machine{runID: runID, zone: zone, phase: PhaseIdle, obs: obs}
}

func (m *machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *machine) transition(ctx context.Context, to Phase, detail string) error {
	m.mu.Lock()
	from := m.phase
	ok := false
	for _, p := range transitions[from] {
		if p == to {
			ok = true
			break
		}
	}
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	m.phase = to
	m.mu.Unlock()
	if m.obs != nil {
		m.obs.OnPhase(ctx, PhaseEvent{RunID: m.runID, Zone: m.zone, From: from, To: to, Detail: detail, At: time.Now().UTC()})
	}
	return nil
}
