package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wasteroute/internal/cluster"
	"wasteroute/internal/datagen"
	"wasteroute/internal/geo"
	"wasteroute/internal/logger"
	"wasteroute/internal/metrics"
	"wasteroute/internal/model"
	"wasteroute/internal/opt"
)

// DefaultMaxRouteKm is the per-vehicle distance limit the CLI and service start with.
const DefaultMaxRouteKm = 60.0

type Config struct {
	Road       geo.RoadModel
	TimeBudget time.Duration // per run; 0 uses the solver default
	MaxRouteKm float64       // default when a request leaves it unset; 0 is unlimited
	// Parallelism bounds concurrent zone solves. Values below 1 mean sequential.
	Parallelism int
}

// Request is one optimize call. It is passed by value and never retained.
type Request struct {
	RunID           string
	City            string
	PointCount      int
	CategoryMix     map[string]float64
	Points          []model.WastePoint // used instead of generating when non-empty
	Depot           *model.GeoPoint    // nil uses the city centre
	VehicleCount    int
	VehicleCapacity float64
	ZoneCount       int // 0 means one zone per vehicle
	MaxRouteKm      float64
	Seed            int64
	Algorithm       string
	Clusterer       string
	TimeBudget      time.Duration

	MaxIterations    int
	InitialTemp      float64
	Cooling          float64
	RemovalWeights   []float64
	InsertionWeights []float64
}

type Planner struct {
	gen      *datagen.Generator
	cfg      Config
	log      *zap.Logger
	observer Observer
	now      func() time.Time
}

func New(gen *datagen.Generator, cfg Config, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	// zero value means the default model; anything else non-positive fails in Plan
	if cfg.Road.Factor == 0 {
		cfg.Road.Factor = geo.DefaultRoadFactor
	}
	if cfg.Road.SpeedKph <= 0 {
		cfg.Road.SpeedKph = geo.DefaultSpeedKph
	}
	return &Planner{gen: gen, cfg: cfg, log: log, now: time.Now}
}

// WithObserver sets the receiver of phase events.
func (p *Planner) WithObserver(o Observer) *Planner {
	p.observer = o
	return p
}

func (p *Planner) Road() geo.RoadModel { return p.cfg.Road }

// Catalog returns the city catalog backing generation.
func (p *Planner) Catalog() *datagen.Catalog { return p.gen.Catalog }

// Generate exposes the point generator on its own.
func (p *Planner) Generate(req datagen.Request) ([]model.WastePoint, error) {
	pts, err := p.gen.Generate(req)
	if err != nil {
		return nil, err
	}
	if len(pts) > 0 {
		metrics.PointsGenerated.WithLabelValues(pts[0].City).Add(float64(len(pts)))
	}
	return pts, nil
}

func (p *Planner) normalize(req Request) (Request, error) {
	if req.VehicleCount < 1 {
		return req, invalid("vehicle count must be >= 1")
	}
	if !(req.VehicleCapacity > 0) {
		return req, invalid("vehicle capacity must be > 0")
	}
	if req.ZoneCount < 0 {
		return req, invalid("zone count must be >= 0")
	}
	if req.ZoneCount == 0 {
		req.ZoneCount = req.VehicleCount
	}
	if req.ZoneCount > req.VehicleCount {
		return req, invalid("zone count %d exceeds vehicle count %d", req.ZoneCount, req.VehicleCount)
	}
	if req.MaxRouteKm < 0 {
		return req, invalid("max route km must be >= 0")
	}
	if req.MaxRouteKm == 0 {
		req.MaxRouteKm = p.cfg.MaxRouteKm
	}
	if req.TimeBudget < 0 {
		return req, invalid("time budget must be >= 0")
	}
	if req.TimeBudget == 0 {
		req.TimeBudget = p.cfg.TimeBudget
	}
	if req.TimeBudget == 0 {
		req.TimeBudget = opt.DefaultTimeBudget
	}
	req.Algorithm = strings.ToLower(strings.TrimSpace(req.Algorithm))
	if req.Algorithm == "" {
		req.Algorithm = opt.AlgoALNS
	}
	if _, err := opt.NewSolver(req.Algorithm); err != nil {
		return req, err
	}
	if len(req.Points) == 0 && req.PointCount < 1 {
		return req, invalid("point count must be >= 1")
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	return req, nil
}

// Plan runs generation, clustering and per-zone routing. Infeasible zones
// fail the whole call with an *InfeasibleError; a zone that runs out of time
// marks the result TimedOut and keeps its best routes.
func (p *Planner) Plan(ctx context.Context, req Request) (res *model.PlanResult, err error) {
	defer logger.Time(ctx, p.log, "plan")(&err)
	if err := p.cfg.Road.Validate(); err != nil {
		return nil, err
	}
	req, err = p.normalize(req)
	if err != nil {
		return nil, err
	}
	log := p.log.With(zap.String("run_id", req.RunID), zap.String("algorithm", req.Algorithm))

	cityName := strings.TrimSpace(req.City)
	var depot model.GeoPoint
	if req.Depot != nil {
		depot = *req.Depot
	}
	if req.Depot == nil || len(req.Points) == 0 {
		city, err := p.gen.Catalog.Lookup(req.City)
		if err != nil {
			return nil, err
		}
		cityName = city.Name
		if req.Depot == nil {
			depot = city.Center
		}
	}
	if err := geo.Validate(depot); err != nil {
		return nil, fmt.Errorf("depot: %w", err)
	}

	points := req.Points
	if len(points) == 0 {
		points, err = p.Generate(datagen.Request{City: cityName, Count: req.PointCount, CategoryMix: req.CategoryMix, Seed: req.Seed})
		if err != nil {
			return nil, err
		}
	}
	locs := make([]model.GeoPoint, len(points))
	seen := make(map[string]bool, len(points))
	for i, pt := range points {
		locs[i] = pt.Location
		if pt.ID == "" || pt.ID == model.DepotID || seen[pt.ID] {
			return nil, invalid("point %d has empty, reserved or duplicate id %q", i, pt.ID)
		}
		seen[pt.ID] = true
		if pt.VolumeTons < 0 {
			return nil, invalid("point %s has negative volume", pt.ID)
		}
	}
	if err := geo.ValidateAll(locs); err != nil {
		return nil, err
	}
	if len(points) < req.ZoneCount || len(points) < req.VehicleCount {
		return nil, fmt.Errorf("%w: %d points for %d zones and %d vehicles", ErrInsufficientPoints, len(points), req.ZoneCount, req.VehicleCount)
	}

	cl, err := cluster.New(req.Clusterer, req.Seed, depot)
	if err != nil {
		return nil, err
	}
	labels, err := cl.Cluster(ctx, locs, req.ZoneCount)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	zones, members := buildZones(points, labels, req.ZoneCount)
	alloc := allocateVehicles(zones, req.VehicleCount)
	log.Info("zones built", zap.Int("points", len(points)), zap.Int("zones", len(zones)), zap.Ints("vehicles_per_zone", alloc))

	results, err := p.solveZones(ctx, req, depot, members, alloc, log)
	if err != nil {
		return nil, err
	}

	res = &model.PlanResult{
		RunID:           req.RunID,
		City:            cityName,
		Depot:           depot,
		Algorithm:       req.Algorithm,
		Status:          model.StatusSolved,
		VehicleCapacity: req.VehicleCapacity,
		Points:          points,
		Zones:           zones,
		CreatedAt:       p.now().UTC(),
	}
	vehicleNo := 0
	for z, zr := range results {
		if zr.outcome.Status == model.StatusInfeasible {
			metrics.PlanRuns.WithLabelValues(req.Algorithm, "infeasible").Inc()
			return nil, &InfeasibleError{ZoneID: z, Reason: zr.outcome.Reason}
		}
		if zr.outcome.Status == model.StatusTimedOut {
			res.Status = model.StatusTimedOut
		}
		for _, plan := range zr.outcome.Plans {
			vehicleNo++
			route := buildRoute(vehicleNo, z, plan, members[z], depot, zr.dist, p.cfg.Road, req.VehicleCapacity)
			res.Zones[z].Vehicles = append(res.Zones[z].Vehicles, route.VehicleID)
			res.Routes = append(res.Routes, route)
			res.TotalDistanceKm += route.DistanceKm
			res.TotalDurationMin += route.DurationMin
		}
		m := zr.outcome.Metrics
		res.Metrics.Iterations += m.Iterations
		res.Metrics.Improvements += m.Improvements
		res.Metrics.AcceptedWorse += m.AcceptedWorse
		res.Metrics.BestCost += m.BestCost
		if ms := m.Elapsed.Milliseconds(); ms > res.Metrics.ElapsedMs {
			res.Metrics.ElapsedMs = ms
		}
	}
	for _, pt := range points {
		res.TotalVolumeTons += pt.VolumeTons
	}
	metrics.PlanRuns.WithLabelValues(req.Algorithm, strings.ToLower(string(res.Status))).Inc()
	log.Info("plan finished", zap.String("status", string(res.Status)), zap.Float64("total_km", res.TotalDistanceKm))
	return res, nil
}

type zoneResult struct {
	dist    geo.Matrix
	outcome opt.Outcome
}

// solveZones builds each zone's matrix and runs the solver. Zones share no
// state, so they may run concurrently up to cfg.Parallelism.
func (p *Planner) solveZones(ctx context.Context, req Request, depot model.GeoPoint, members [][]model.WastePoint, alloc []int, log *zap.Logger) ([]zoneResult, error) {
	results := make([]zoneResult, len(members))
	par := p.cfg.Parallelism
	if par < 1 {
		par = 1
	}
	// every zone gets an equal slice of the run budget per wave of parallel solves
	waves := (len(members) + par - 1) / par
	budget := req.TimeBudget / time.Duration(waves)
	if budget <= 0 {
		budget = time.Nanosecond
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(par)
	for z := range members {
		g.Go(func() error {
			zr, err := p.solveZone(gctx, req, z, depot, members[z], alloc[z], budget, log)
			if err != nil {
				return fmt.Errorf("zone %d: %w", z, err)
			}
			results[z] = zr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Planner) solveZone(ctx context.Context, req Request, z int, depot model.GeoPoint, members []model.WastePoint, vehicles int, budget time.Duration, log *zap.Logger) (zoneResult, error) {
	m := newMachine(req.RunID, z, p.observer)
	if err := m.transition(ctx, PhaseMatrixBuilding, fmt.Sprintf("%d points", len(members))); err != nil {
		return zoneResult{}, err
	}
	locs := make([]model.GeoPoint, 0, len(members)+1)
	demand := make([]float64, 0, len(members)+1)
	locs = append(locs, depot)
	demand = append(demand, 0)
	for _, pt := range members {
		locs = append(locs, pt.Location)
		demand = append(demand, pt.VolumeTons)
	}
	dist, err := p.cfg.Road.Matrix(locs)
	if err != nil {
		return zoneResult{}, err
	}

	if err := m.transition(ctx, PhaseSolving, fmt.Sprintf("%d vehicles", vehicles)); err != nil {
		return zoneResult{}, err
	}
	solver, err := opt.NewSolver(req.Algorithm)
	if err != nil {
		return zoneResult{}, err
	}
	start := time.Now()
	out, err := solver.Solve(ctx, opt.Problem{
		Dist:       dist,
		Demand:     demand,
		Vehicles:   vehicles,
		Capacity:   req.VehicleCapacity,
		MaxRouteKm: req.MaxRouteKm,
	}, opt.Options{
		Seed:             req.Seed + int64(z),
		TimeBudget:       budget,
		MaxIterations:    req.MaxIterations,
		InitialTemp:      req.InitialTemp,
		Cooling:          req.Cooling,
		RemovalWeights:   req.RemovalWeights,
		InsertionWeights: req.InsertionWeights,
	})
	if err != nil {
		return zoneResult{}, err
	}
	metrics.SolveDuration.WithLabelValues(req.Algorithm, string(out.Status)).Observe(time.Since(start).Seconds())
	log.Debug("zone solved",
		zap.Int("zone", z),
		zap.String("status", string(out.Status)),
		zap.Float64("km", out.Cost),
		zap.Int("iterations", out.Metrics.Iterations),
	)

	if err := m.transition(ctx, phaseForStatus(out.Status), out.Reason); err != nil {
		return zoneResult{}, err
	}
	if err := m.transition(ctx, PhaseIdle, ""); err != nil {
		return zoneResult{}, err
	}
	return zoneResult{dist: dist, outcome: out}, nil
}

// IsUserError reports whether err stems from the caller's input rather than
// from the planner itself.
func IsUserError(err error) bool {
	c := Classify(err)
	return c != "internal" && c != "ok" && !errors.Is(err, context.Canceled)
}
