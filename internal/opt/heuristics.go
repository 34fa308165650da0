package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"
)

const eps = 1e-9

// solution tracks per-vehicle orders with cached load and km.
type solution struct {
	plans      [][]int
	load       []float64
	km         []float64
	unassigned []int
}

func newSolution(vehicles int) solution {
	return solution{
		plans: make([][]int, vehicles),
		load:  make([]float64, vehicles),
		km:    make([]float64, vehicles),
	}
}

func (s *solution) clone() solution {
	c := solution{
		plans:      make([][]int, len(s.plans)),
		load:       append([]float64(nil), s.load...),
		km:         append([]float64(nil), s.km...),
		unassigned: append([]int(nil), s.unassigned...),
	}
	for i, pl := range s.plans {
		c.plans[i] = append([]int(nil), pl...)
	}
	return c
}

func (s *solution) totalKm() float64 {
	t := 0.0
	for _, k := range s.km {
		t += k
	}
	return t
}

func (s *solution) cost(penalty float64) float64 {
	return s.totalKm() + penalty*float64(len(s.unassigned))
}

func (s *solution) assigned() []int {
	var out []int
	for _, pl := range s.plans {
		out = append(out, pl...)
	}
	return out
}

func (s *solution) recompute(p *Problem, vi int) {
	load := 0.0
	for _, x := range s.plans[vi] {
		load += p.Demand[x]
	}
	s.load[vi] = load
	s.km[vi] = p.Dist.RouteKm(s.plans[vi])
}

func (s *solution) insertAt(p *Problem, vi, pos, node int, delta float64) {
	pl := s.plans[vi]
	pl = append(pl, 0)
	copy(pl[pos+1:], pl[pos:])
	pl[pos] = node
	s.plans[vi] = pl
	s.load[vi] += p.Demand[node]
	s.km[vi] += delta
}

// removeNodes drops the given nodes from plans and the unassigned pool.
func (s *solution) removeNodes(p *Problem, removed []int) {
	if len(removed) == 0 {
		return
	}
	rm := make(map[int]bool, len(removed))
	for _, x := range removed {
		rm[x] = true
	}
	for vi, pl := range s.plans {
		kept := pl[:0]
		touched := false
		for _, x := range pl {
			if rm[x] {
				touched = true
				continue
			}
			kept = append(kept, x)
		}
		s.plans[vi] = kept
		if touched {
			s.recompute(p, vi)
		}
	}
	pool := s.unassigned[:0]
	for _, x := range s.unassigned {
		if !rm[x] {
			pool = append(pool, x)
		}
	}
	s.unassigned = pool
}

func (p *Problem) fits(load, km float64) bool {
	if load > p.Capacity+eps {
		return false
	}
	return p.MaxRouteKm <= 0 || km <= p.MaxRouteKm+eps
}

// insertDelta is the extra km of visiting node at position pos of plan.
func (p *Problem) insertDelta(plan []int, node, pos int) float64 {
	prev, next := 0, 0
	if pos > 0 {
		prev = plan[pos-1]
	}
	if pos < len(plan) {
		next = plan[pos]
	}
	d := p.Dist
	return d[prev][node] + d[node][next] - d[prev][next]
}

// bestPosition returns the cheapest feasible position of node in vehicle vi.
func (p *Problem) bestPosition(s *solution, vi, node int) (int, float64) {
	if s.load[vi]+p.Demand[node] > p.Capacity+eps {
		return -1, math.MaxFloat64
	}
	bestPos, bestDelta := -1, math.MaxFloat64
	for pos := 0; pos <= len(s.plans[vi]); pos++ {
		dl := p.insertDelta(s.plans[vi], node, pos)
		if dl < bestDelta && p.fits(s.load[vi]+p.Demand[node], s.km[vi]+dl) {
			bestPos, bestDelta = pos, dl
		}
	}
	return bestPos, bestDelta
}

// greedySeed builds routes round-robin, each vehicle taking the cheapest
// feasible node to append. Nodes left over go through regret insertion.
func greedySeed(p *Problem) solution {
	n := len(p.Dist)
	s := newSolution(p.Vehicles)
	used := make([]bool, n)
	used[0] = true
	for assigned := 0; assigned < n-1; {
		progress := false
		for vi := range s.plans {
			last := 0
			if l := len(s.plans[vi]); l > 0 {
				last = s.plans[vi][l-1]
			}
			bestIdx, bestDelta := -1, math.MaxFloat64
			for i := 1; i < n; i++ {
				if used[i] {
					continue
				}
				d := p.Dist[last][i] + p.Dist[i][0] - p.Dist[last][0]
				if d < bestDelta && p.fits(s.load[vi]+p.Demand[i], s.km[vi]+d) {
					bestIdx, bestDelta = i, d
				}
			}
			if bestIdx >= 0 {
				s.insertAt(p, vi, len(s.plans[vi]), bestIdx, bestDelta)
				used[bestIdx] = true
				assigned++
				progress = true
				if assigned == n-1 {
					break
				}
			}
		}
		if !progress {
			break
		}
	}
	var left []int
	for i := 1; i < n; i++ {
		if !used[i] {
			left = append(left, i)
		}
	}
	regretInsert(p, &s, left)
	return s
}

// greedyInsert repeatedly places the node with the cheapest feasible
// insertion. Nodes that fit nowhere go to the unassigned pool.
func greedyInsert(p *Problem, s *solution, nodes []int) {
	pending := append([]int(nil), nodes...)
	for len(pending) > 0 {
		bestNode, bestPlan, bestPos, bestDelta := -1, -1, -1, math.MaxFloat64
		for ni, x := range pending {
			for vi := range s.plans {
				pos, dl := p.bestPosition(s, vi, x)
				if pos >= 0 && dl < bestDelta {
					bestNode, bestPlan, bestPos, bestDelta = ni, vi, pos, dl
				}
			}
		}
		if bestNode < 0 {
			s.unassigned = append(s.unassigned, pending...)
			return
		}
		s.insertAt(p, bestPlan, bestPos, pending[bestNode], bestDelta)
		pending = append(pending[:bestNode], pending[bestNode+1:]...)
	}
}

// regretInsert places first the node whose best and second-best vehicle
// differ the most (regret-2).
func regretInsert(p *Problem, s *solution, nodes []int) {
	pending := append([]int(nil), nodes...)
	for len(pending) > 0 {
		bestNode, bestPlan, bestPos := -1, -1, -1
		bestRegret, bestDelta := -1.0, math.MaxFloat64
		for ni, x := range pending {
			best1, best2 := math.MaxFloat64, math.MaxFloat64
			bp, bpos := -1, -1
			for vi := range s.plans {
				pos, dl := p.bestPosition(s, vi, x)
				if pos < 0 {
					continue
				}
				if dl < best1 {
					best2 = best1
					best1, bp, bpos = dl, vi, pos
				} else if dl < best2 {
					best2 = dl
				}
			}
			if bp < 0 {
				continue
			}
			regret := best2 - best1
			if regret > bestRegret || (regret == bestRegret && best1 < bestDelta) {
				bestNode, bestPlan, bestPos = ni, bp, bpos
				bestRegret, bestDelta = regret, best1
			}
		}
		if bestNode < 0 {
			s.unassigned = append(s.unassigned, pending...)
			return
		}
		s.insertAt(p, bestPlan, bestPos, pending[bestNode], bestDelta)
		pending = append(pending[:bestNode], pending[bestNode+1:]...)
	}
}

func pickRandomNodes(s *solution, k int, rng *rand.Rand) []int {
	all := s.assigned()
	removed := make([]int, 0, k)
	for i := 0; i < k && len(all) > 0; i++ {
		j := rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// shawRemoval removes a random node plus the k-1 nodes closest to it.
func shawRemoval(p *Problem, s *solution, k int, rng *rand.Rand) []int {
	assigned := s.assigned()
	if len(assigned) == 0 {
		return nil
	}
	seed := assigned[rng.Intn(len(assigned))]
	rel := make([]int, 0, len(assigned)-1)
	for _, x := range assigned {
		if x != seed {
			rel = append(rel, x)
		}
	}
	sort.SliceStable(rel, func(i, j int) bool { return p.Dist[seed][rel[i]] < p.Dist[seed][rel[j]] })
	removed := []int{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i])
	}
	return removed
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}

// localSearch runs the improvement operators until none of them helps.
func localSearch(p *Problem, s *solution) {
	for pass := 0; pass < 50; pass++ {
		improved := twoOptImprove(p, s)
		if orOptImprove(p, s) {
			improved = true
		}
		if relocateImprove(p, s) {
			improved = true
		}
		if crossExchangeImprove(p, s) {
			improved = true
		}
		if !improved {
			return
		}
	}
}

// twoOptImprove reverses segments within each route while that shortens it.
func twoOptImprove(p *Problem, s *solution) bool {
	d := p.Dist
	changed := false
	for vi, pl := range s.plans {
		if len(pl) < 2 {
			continue
		}
		seq := make([]int, 0, len(pl)+2)
		seq = append(seq, 0)
		seq = append(seq, pl...)
		seq = append(seq, 0)
		improved := true
		for improved {
			improved = false
			for i := 1; i < len(seq)-2; i++ {
				for j := i + 1; j < len(seq)-1; j++ {
					a, b, c, e := seq[i-1], seq[i], seq[j], seq[j+1]
					if d[a][c]+d[b][e]-d[a][b]-d[c][e] < -eps {
						for x, y := i, j; x < y; x, y = x+1, y-1 {
							seq[x], seq[y] = seq[y], seq[x]
						}
						improved = true
						changed = true
					}
				}
			}
		}
		s.plans[vi] = append(pl[:0], seq[1:len(seq)-1]...)
		s.km[vi] = d.RouteKm(s.plans[vi])
	}
	return changed
}

// orOptImprove relocates single nodes within their own route.
func orOptImprove(p *Problem, s *solution) bool {
	d := p.Dist
	changed := false
	for vi := range s.plans {
		improved := true
		for improved {
			improved = false
			pl := s.plans[vi]
			n := len(pl)
			if n < 3 {
				break
			}
			at := func(i int) int {
				if i < 0 || i >= n {
					return 0
				}
				return pl[i]
			}
		search:
			for i := 0; i < n; i++ {
				x := pl[i]
				prev, next := at(i-1), at(i+1)
				gain := d[prev][x] + d[x][next] - d[prev][next]
				// candidate edge (at(j-1), at(j)) for j in [0,n]
				for j := 0; j <= n; j++ {
					if j == i || j == i+1 {
						continue
					}
					u, v := at(j-1), at(j)
					if d[u][x]+d[x][v]-d[u][v]-gain < -eps {
						moved := make([]int, 0, n)
						for k := 0; k <= n; k++ {
							if k == j {
								moved = append(moved, x)
							}
							if k < n && k != i {
								moved = append(moved, pl[k])
							}
						}
						s.plans[vi] = moved
						s.km[vi] = d.RouteKm(moved)
						improved = true
						changed = true
						break search
					}
				}
			}
		}
	}
	return changed
}

// relocateImprove moves single nodes to another route when that shortens
// the total and both routes stay feasible.
func relocateImprove(p *Problem, s *solution) bool {
	d := p.Dist
	m := len(s.plans)
	if m < 2 {
		return false
	}
	changed := false
	for a := 0; a < m; a++ {
		for i := 0; i < len(s.plans[a]); i++ {
			pa := s.plans[a]
			x := pa[i]
			prev, next := 0, 0
			if i > 0 {
				prev = pa[i-1]
			}
			if i+1 < len(pa) {
				next = pa[i+1]
			}
			gain := d[prev][x] + d[x][next] - d[prev][next]
			bestB, bestPos, bestDelta := -1, -1, gain-eps
			for b := 0; b < m; b++ {
				if b == a {
					continue
				}
				pos, dl := p.bestPosition(s, b, x)
				if pos >= 0 && dl < bestDelta {
					bestB, bestPos, bestDelta = b, pos, dl
				}
			}
			if bestB < 0 {
				continue
			}
			s.plans[a] = append(pa[:i], pa[i+1:]...)
			s.load[a] -= p.Demand[x]
			s.km[a] -= gain
			s.insertAt(p, bestB, bestPos, x, bestDelta)
			i--
			changed = true
		}
	}
	if changed {
		for vi := range s.plans {
			s.recompute(p, vi)
		}
	}
	return changed
}

// crossExchangeImprove swaps single nodes between routes if cost decreases and
// both routes stay feasible.
func crossExchangeImprove(p *Problem, s *solution) bool {
	d := p.Dist
	m := len(s.plans)
	if m < 2 {
		return false
	}
	nb := func(pl []int, i int) (int, int) {
		prev, next := 0, 0
		if i > 0 {
			prev = pl[i-1]
		}
		if i+1 < len(pl) {
			next = pl[i+1]
		}
		return prev, next
	}
	changed := false
	for a := 0; a < m; a++ {
		for b := a + 1; b < m; b++ {
			pa, pb := s.plans[a], s.plans[b]
			for i := 0; i < len(pa); i++ {
				for j := 0; j < len(pb); j++ {
					x, y := pa[i], pb[j]
					ap, an := nb(pa, i)
					bp, bn := nb(pb, j)
					da := d[ap][y] + d[y][an] - d[ap][x] - d[x][an]
					db := d[bp][x] + d[x][bn] - d[bp][y] - d[y][bn]
					if da+db >= -eps {
						continue
					}
					la := s.load[a] - p.Demand[x] + p.Demand[y]
					lb := s.load[b] - p.Demand[y] + p.Demand[x]
					if !p.fits(la, s.km[a]+da) || !p.fits(lb, s.km[b]+db) {
						continue
					}
					pa[i], pb[j] = y, x
					s.load[a], s.load[b] = la, lb
					s.km[a] += da
					s.km[b] += db
					changed = true
				}
			}
		}
	}
	if changed {
		for vi := range s.plans {
			s.recompute(p, vi)
		}
	}
	return changed
}

func sortedCopy(xs []int) []int {
	out := append([]int(nil), xs...)
	sort.Ints(out)
	return out
}

// Greedy builds routes with the round-robin nearest-feasible heuristic and
// polishes them with local search. It does not explore further.
type Greedy struct{}

func (Greedy) Solve(ctx context.Context, p Problem, o Options) (Outcome, error) {
	if err := p.validate(); err != nil {
		return Outcome{}, err
	}
	o = o.withDefaults()
	start := time.Now()
	deadline := deadlineFor(ctx, start, o.TimeBudget)
	if reason := p.quickInfeasible(); reason != "" {
		return infeasibleOutcome(&p, reason, start), nil
	}
	s := greedySeed(&p)
	m := Metrics{InitialCost: s.totalKm()}
	if expired(ctx, deadline) {
		return finish(&s, true, m, start), nil
	}
	localSearch(&p, &s)
	return finish(&s, false, m, start), nil
}
