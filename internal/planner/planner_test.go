package planner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	polyline "github.com/twpayne/go-polyline"

	"wasteroute/internal/datagen"
	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

func newTestPlanner(par int) *Planner {
	return New(datagen.NewGenerator(datagen.DefaultCatalog()), Config{Road: geo.DefaultRoadModel(), Parallelism: par}, nil)
}

func baseRequest() Request {
	return Request{
		City:            "Hyderabad",
		PointCount:      40,
		VehicleCount:    5,
		VehicleCapacity: 60,
		ZoneCount:       3,
		Seed:            21,
		TimeBudget:      20 * time.Second,
		MaxIterations:   60,
	}
}

func assertCoverage(t *testing.T, res *model.PlanResult) {
	t.Helper()
	seen := map[string]int{}
	for _, r := range res.Routes {
		require.GreaterOrEqual(t, len(r.Sequence), 2)
		assert.Equal(t, model.DepotID, r.Sequence[0])
		assert.Equal(t, model.DepotID, r.Sequence[len(r.Sequence)-1])
		assert.LessOrEqual(t, r.LoadTons, r.CapacityTon+1e-9, "route %s overloaded", r.ID)
		for _, id := range r.Sequence[1 : len(r.Sequence)-1] {
			seen[id]++
		}
	}
	require.Len(t, seen, len(res.Points))
	for _, p := range res.Points {
		assert.Equal(t, 1, seen[p.ID], "point %s", p.ID)
	}
}

func TestPlanCoversEveryPointOnce(t *testing.T) {
	res, err := newTestPlanner(1).Plan(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StatusSolved, res.Status)
	assert.Equal(t, "Hyderabad", res.City)
	assert.Len(t, res.Routes, 5)
	assert.Len(t, res.Zones, 3)
	assertCoverage(t, res)

	vehicles := 0
	for _, z := range res.Zones {
		assert.NotEmpty(t, z.PointIDs)
		assert.NotEmpty(t, z.Vehicles)
		vehicles += len(z.Vehicles)
	}
	assert.Equal(t, 5, vehicles)

	sum := 0.0
	for _, r := range res.Routes {
		sum += r.DistanceKm
		if r.Stops > 0 {
			assert.Greater(t, r.DurationMin, 0.0)
		}
	}
	assert.InDelta(t, sum, res.TotalDistanceKm, 1e-6)
	assert.NotEmpty(t, res.RunID)
}

func TestTenPointsOneVehicle(t *testing.T) {
	req := baseRequest()
	req.PointCount = 10
	req.VehicleCount = 1
	req.ZoneCount = 0
	req.VehicleCapacity = 100
	res, err := newTestPlanner(1).Plan(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)
	r := res.Routes[0]
	assert.Len(t, r.Sequence, 12)
	assert.Equal(t, 10, r.Stops)
	assertCoverage(t, res)

	coords, _, err := polyline.DecodeCoords([]byte(r.Polyline))
	require.NoError(t, err)
	assert.Len(t, coords, 12)
	assert.InDelta(t, res.Depot.Lat, coords[0][0], 1e-5)
}

func TestCapacityBelowSmallestVolumeIsInfeasible(t *testing.T) {
	req := baseRequest()
	req.VehicleCapacity = 0.1
	_, err := newTestPlanner(1).Plan(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInfeasible))
	var ie *InfeasibleError
	require.ErrorAs(t, err, &ie)
	assert.NotEmpty(t, ie.Reason)
	assert.Equal(t, "infeasible", Classify(err))
}

func TestTinyBudgetReturnsTimedOut(t *testing.T) {
	req := baseRequest()
	req.TimeBudget = time.Nanosecond
	res, err := newTestPlanner(1).Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTimedOut, res.Status)
	assertCoverage(t, res)
}

func TestInvalidCoordinateInSuppliedPoints(t *testing.T) {
	req := baseRequest()
	req.VehicleCount, req.ZoneCount = 1, 1
	req.Points = []model.WastePoint{
		{ID: "A", Location: model.GeoPoint{Lat: 17.38, Lng: 78.48}, VolumeTons: 1},
		{ID: "B", Location: model.GeoPoint{Lat: math.NaN(), Lng: 78.48}, VolumeTons: 1},
	}
	_, err := newTestPlanner(1).Plan(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
	assert.Equal(t, "invalid_coordinate", Classify(err))

	req.Points = nil
	req.Depot = &model.GeoPoint{Lat: 200}
	_, err = newTestPlanner(1).Plan(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestInsufficientPoints(t *testing.T) {
	req := baseRequest()
	req.PointCount = 3
	_, err := newTestPlanner(1).Plan(context.Background(), req)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, "insufficient_points", Classify(err))
}

func TestInvalidRequests(t *testing.T) {
	cases := map[string]func(r *Request){
		"no vehicles":      func(r *Request) { r.VehicleCount = 0 },
		"zero capacity":    func(r *Request) { r.VehicleCapacity = 0 },
		"zones > vehicles": func(r *Request) { r.ZoneCount = 9 },
		"bad algorithm":    func(r *Request) { r.Algorithm = "ortools" },
		"no points":        func(r *Request) { r.PointCount = 0 },
		"bad clusterer":    func(r *Request) { r.Clusterer = "dbscan" },
	}
	for name, mutate := range cases {
		req := baseRequest()
		mutate(&req)
		_, err := newTestPlanner(1).Plan(context.Background(), req)
		require.Error(t, err, name)
		assert.Equal(t, "invalid_request", Classify(err), name)
	}
	req := baseRequest()
	req.City = "Gotham"
	_, err := newTestPlanner(1).Plan(context.Background(), req)
	assert.Equal(t, "unknown_city", Classify(err))
}

func TestSuppliedPointsWithDepot(t *testing.T) {
	req := Request{
		City:            "custom",
		Depot:           &model.GeoPoint{Lat: 26.91, Lng: 75.78},
		VehicleCount:    2,
		VehicleCapacity: 10,
		Seed:            4,
		Algorithm:       "greedy",
		Clusterer:       "sweep",
		Points: []model.WastePoint{
			{ID: "a", Location: model.GeoPoint{Lat: 26.92, Lng: 75.79}, VolumeTons: 2},
			{ID: "b", Location: model.GeoPoint{Lat: 26.93, Lng: 75.77}, VolumeTons: 3},
			{ID: "c", Location: model.GeoPoint{Lat: 26.90, Lng: 75.80}, VolumeTons: 1},
			{ID: "d", Location: model.GeoPoint{Lat: 26.89, Lng: 75.76}, VolumeTons: 4},
		},
	}
	res, err := newTestPlanner(1).Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "custom", res.City)
	assert.Equal(t, "greedy", res.Algorithm)
	assertCoverage(t, res)

	req.Points = append(req.Points, model.WastePoint{ID: "a", Location: model.GeoPoint{Lat: 26.9, Lng: 75.7}, VolumeTons: 1})
	_, err = newTestPlanner(1).Plan(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParallelMatchesSequential(t *testing.T) {
	seq, err := newTestPlanner(1).Plan(context.Background(), baseRequest())
	require.NoError(t, err)
	par, err := newTestPlanner(4).Plan(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.InDelta(t, seq.TotalDistanceKm, par.TotalDistanceKm, 1e-9)
	for i := range seq.Routes {
		assert.Equal(t, seq.Routes[i].Sequence, par.Routes[i].Sequence)
	}
}

func TestObserverSeesPhases(t *testing.T) {
	var mu sync.Mutex
	byZone := map[int][]Phase{}
	obs := ObserverFunc(func(_ context.Context, ev PhaseEvent) {
		mu.Lock()
		defer mu.Unlock()
		byZone[ev.Zone] = append(byZone[ev.Zone], ev.To)
	})
	req := baseRequest()
	req.RunID = "run-1"
	_, err := newTestPlanner(2).WithObserver(obs).Plan(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, byZone, 3)
	for z, phases := range byZone {
		assert.Equal(t, []Phase{PhaseMatrixBuilding, PhaseSolving, PhaseSolved, PhaseIdle}, phases, "zone %d", z)
	}
}

func TestNegativeRoadFactorFailsPlan(t *testing.T) {
	pl := New(datagen.NewGenerator(datagen.DefaultCatalog()), Config{Road: geo.RoadModel{Factor: -1.3}}, nil)
	_, err := pl.Plan(context.Background(), baseRequest())
	assert.ErrorIs(t, err, geo.ErrInvalidRoadFactor)

	// the zero value still means the default model
	assert.Equal(t, geo.DefaultRoadFactor, New(datagen.NewGenerator(datagen.DefaultCatalog()), Config{}, nil).Road().Factor)
}
