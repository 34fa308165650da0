package opt

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// ALNS is an adaptive large neighbourhood search with random/Shaw removal,
// greedy/regret-2 insertion and simulated-annealing acceptance.
type ALNS struct{}

// Solve runs ALNS until MaxIterations, StallIterations without a new best, or
// the time budget, whichever comes first. Running out of time reports the best
// complete incumbent as TimedOut.
func (ALNS) Solve(ctx context.Context, p Problem, o Options) (Outcome, error) {
	if err := p.validate(); err != nil {
		return Outcome{}, err
	}
	o = o.withDefaults()
	start := time.Now()
	deadline := deadlineFor(ctx, start, o.TimeBudget)
	if reason := p.quickInfeasible(); reason != "" {
		return infeasibleOutcome(&p, reason, start), nil
	}
	rng := rand.New(rand.NewSource(o.Seed))
	penalty := p.penalty()

	// seed solution via greedy assignment
	curr := greedySeed(&p)
	m := Metrics{InitialCost: curr.totalKm()}
	if expired(ctx, deadline) {
		return finish(&curr, true, m, start), nil
	}
	localSearch(&p, &curr)
	best := curr.clone()
	currCost := curr.cost(penalty)
	bestCost := currCost

	customers := len(p.Dist) - 1
	if customers < 2 && len(curr.unassigned) == 0 {
		return finish(&best, false, m, start), nil
	}
	maxRemove := customers / 5
	if maxRemove < 3 {
		maxRemove = 3
	}
	if maxRemove > customers {
		maxRemove = customers
	}

	// operator weights (removal + insertion)
	remW := []float64{o.RemovalWeights[0], o.RemovalWeights[1]}
	insW := []float64{o.InsertionWeights[0], o.InsertionWeights[1]}
	temp := o.InitialTemp
	if temp <= 0 {
		temp = 0.01 * currCost
		if temp <= 0 {
			temp = 1
		}
	}
	timedOut := false
	stall := 0
	for {
		if expired(ctx, deadline) {
			timedOut = true
			break
		}
		if m.Iterations >= o.MaxIterations || stall >= o.StallIterations {
			break
		}
		m.Iterations++
		k := 1 + rng.Intn(maxRemove)
		// select operators by roulette wheel
		op := selectOp(remW, rng)
		m.RemovalSelects[op]++
		ip := selectOp(insW, rng)
		m.InsertSelects[ip]++

		cand := curr.clone()
		var removed []int
		switch op {
		case 0:
			removed = pickRandomNodes(&cand, k, rng)
		case 1:
			removed = shawRemoval(&p, &cand, k, rng)
		}
		// unplaced nodes get another chance every iteration
		pending := append(removed, cand.unassigned...)
		cand.removeNodes(&p, pending)
		switch ip {
		case 0:
			greedyInsert(&p, &cand, pending)
		case 1:
			regretInsert(&p, &cand, pending)
		}
		localSearch(&p, &cand)

		candCost := cand.cost(penalty)
		delta := candCost - currCost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			if delta >= 0 {
				m.AcceptedWorse++
			}
			curr, currCost = cand, candCost
			if candCost < bestCost-eps {
				best = cand.clone()
				bestCost = candCost
				remW[op] += 0.1
				insW[ip] += 0.1
				m.Improvements++
				stall = 0
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				stall++
			}
		} else {
			// slight penalty for non-acceptance
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			stall++
		}
		temp *= o.Cooling
	}
	m.FinalRemovalWeights = [2]float64{remW[0], remW[1]}
	m.FinalInsertionWeights = [2]float64{insW[0], insW[1]}
	return finish(&best, timedOut, m, start), nil
}

// penalty per unassigned node; larger than any single insertion can cost.
func (p *Problem) penalty() float64 {
	maxD := 0.0
	for _, row := range p.Dist {
		for _, d := range row {
			if d > maxD {
				maxD = d
			}
		}
	}
	return 10 * (2*maxD + 1)
}
