package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

// Lightweight API surface for higher-level callers.

const (
	AlgoALNS   = "alns"
	AlgoGreedy = "greedy"

	DefaultTimeBudget      = 10 * time.Second
	DefaultMaxIterations   = 1000
	DefaultStallIterations = 200
	DefaultCooling         = 0.995
)

var (
	ErrInvalidProblem   = errors.New("invalid problem")
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrInfeasible is not returned by solvers (they report StatusInfeasible);
	// callers wrap it when surfacing an infeasible outcome.
	ErrInfeasible = errors.New("infeasible")
)

// Problem is a single-depot CVRP over a distance matrix. Node 0 is the depot.
type Problem struct {
	Dist       geo.Matrix
	Demand     []float64 // Demand[0] is ignored
	Vehicles   int
	Capacity   float64
	MaxRouteKm float64 // 0 means unlimited
}

type Options struct {
	Seed             int64
	TimeBudget       time.Duration
	MaxIterations    int
	StallIterations  int     // stop after this many iterations without a new best
	InitialTemp      float64 // 0 derives it from the initial cost
	Cooling          float64
	RemovalWeights   []float64 // [random, shaw]
	InsertionWeights []float64 // [greedy, regret2]
}

type Metrics struct {
	RemovalSelects        [2]int // random, shaw
	InsertSelects         [2]int // greedy, regret2
	Iterations            int
	Improvements          int
	AcceptedWorse         int
	InitialCost           float64
	BestCost              float64
	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	Elapsed               time.Duration
}

// Outcome is what a solver found. Plans has one entry per vehicle, each a
// visiting order of node indices without the depot.
type Outcome struct {
	Plans      [][]int
	Cost       float64 // total km including depot legs
	Unassigned []int
	Status     model.Status
	Reason     string // set when Status is Infeasible
	Metrics    Metrics
}

// Solver finds routes for a Problem within the Options' time budget. The
// returned error is reserved for malformed problems; infeasibility and
// timeouts are reported through Outcome.Status.
type Solver interface {
	Solve(ctx context.Context, p Problem, o Options) (Outcome, error)
}

// NewSolver returns the solver registered under name; empty selects ALNS.
func NewSolver(name string) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgoALNS:
		return ALNS{}, nil
	case AlgoGreedy:
		return Greedy{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
	}
}

func (p *Problem) validate() error {
	n := len(p.Dist)
	if n == 0 {
		return fmt.Errorf("%w: empty distance matrix", ErrInvalidProblem)
	}
	for i, row := range p.Dist {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidProblem, i, len(row), n)
		}
	}
	if len(p.Demand) != n {
		return fmt.Errorf("%w: %d demands for %d nodes", ErrInvalidProblem, len(p.Demand), n)
	}
	for i := 1; i < n; i++ {
		if p.Demand[i] < 0 || math.IsNaN(p.Demand[i]) {
			return fmt.Errorf("%w: demand of node %d is %v", ErrInvalidProblem, i, p.Demand[i])
		}
	}
	if p.Vehicles < 1 {
		return fmt.Errorf("%w: need at least one vehicle", ErrInvalidProblem)
	}
	if !(p.Capacity > 0) {
		return fmt.Errorf("%w: capacity must be > 0", ErrInvalidProblem)
	}
	if p.MaxRouteKm < 0 {
		return fmt.Errorf("%w: max route km must be >= 0", ErrInvalidProblem)
	}
	return nil
}

// quickInfeasible detects problems no search can fix.
func (p *Problem) quickInfeasible() string {
	total := 0.0
	for i := 1; i < len(p.Dist); i++ {
		if p.Demand[i] > p.Capacity+eps {
			return fmt.Sprintf("node %d demand %.2f exceeds vehicle capacity %.2f", i, p.Demand[i], p.Capacity)
		}
		if p.MaxRouteKm > 0 && p.Dist[0][i]+p.Dist[i][0] > p.MaxRouteKm+eps {
			return fmt.Sprintf("node %d round trip %.1f km exceeds max route %.1f km", i, p.Dist[0][i]+p.Dist[i][0], p.MaxRouteKm)
		}
		total += p.Demand[i]
	}
	if total > float64(p.Vehicles)*p.Capacity+eps {
		return fmt.Sprintf("total demand %.2f exceeds fleet capacity %.2f", total, float64(p.Vehicles)*p.Capacity)
	}
	return ""
}

func (o Options) withDefaults() Options {
	if o.TimeBudget <= 0 {
		o.TimeBudget = DefaultTimeBudget
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.StallIterations <= 0 {
		o.StallIterations = DefaultStallIterations
	}
	if o.Cooling <= 0 || o.Cooling >= 1 {
		o.Cooling = DefaultCooling
	}
	if len(o.RemovalWeights) != 2 {
		o.RemovalWeights = []float64{1, 1}
	}
	if len(o.InsertionWeights) != 2 {
		o.InsertionWeights = []float64{1, 1}
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

func deadlineFor(ctx context.Context, start time.Time, budget time.Duration) time.Time {
	deadline := start.Add(budget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

func expired(ctx context.Context, deadline time.Time) bool {
	return ctx.Err() != nil || !time.Now().Before(deadline)
}

func infeasibleOutcome(p *Problem, reason string, start time.Time) Outcome {
	var all []int
	for i := 1; i < len(p.Dist); i++ {
		all = append(all, i)
	}
	return Outcome{
		Plans:      make([][]int, p.Vehicles),
		Unassigned: all,
		Status:     model.StatusInfeasible,
		Reason:     reason,
		Metrics:    Metrics{Elapsed: time.Since(start)},
	}
}

// finish turns the incumbent into an Outcome.
func finish(s *solution, timedOut bool, m Metrics, start time.Time) Outcome {
	out := Outcome{
		Plans:   make([][]int, len(s.plans)),
		Cost:    s.totalKm(),
		Status:  model.StatusSolved,
		Metrics: m,
	}
	for i, pl := range s.plans {
		out.Plans[i] = append([]int{}, pl...)
	}
	switch {
	case len(s.unassigned) > 0:
		out.Unassigned = sortedCopy(s.unassigned)
		out.Status = model.StatusInfeasible
		out.Reason = fmt.Sprintf("%d nodes could not be placed within capacity and route limits", len(s.unassigned))
	case timedOut:
		out.Status = model.StatusTimedOut
	}
	out.Metrics.BestCost = out.Cost
	out.Metrics.Elapsed = time.Since(start)
	return out
}
