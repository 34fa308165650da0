package planner

import (
	"context"
	"errors"
	"testing"

	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

func TestAllocateVehicles(t *testing.T) {
	zones := []model.Zone{
		{ID: 0, PointIDs: []string{"a", "b", "c"}, VolumeTons: 30},
		{ID: 1, PointIDs: []string{"d"}, VolumeTons: 2},
		{ID: 2, PointIDs: []string{"e", "f"}, VolumeTons: 10},
	}
	got := allocateVehicles(zones, 6)
	want := []int{3, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alloc = %v, want %v", got, want)
		}
	}
	got = allocateVehicles(zones, 3)
	for i, n := range got {
		if n != 1 {
			t.Fatalf("zone %d got %d vehicles, want 1", i, n)
		}
	}
}

func TestBuildRouteEmptyPlan(t *testing.T) {
	r := buildRoute(2, 0, nil, nil, model.GeoPoint{Lat: 1, Lng: 1}, geo.Matrix{{0}}, geo.DefaultRoadModel(), 5)
	if r.ID != "R2" || r.VehicleID != "V2" {
		t.Fatalf("ids = %s/%s", r.ID, r.VehicleID)
	}
	if len(r.Sequence) != 2 || r.Sequence[0] != model.DepotID || r.Sequence[1] != model.DepotID {
		t.Fatalf("sequence = %v", r.Sequence)
	}
	if r.DistanceKm != 0 || r.Polyline != "" {
		t.Fatalf("empty route should have no distance or polyline: %+v", r)
	}
}

func TestMachineRejectsIllegalTransitions(t *testing.T) {
	m := newMachine("r", 0, nil)
	if err := m.transition(context.Background(), PhaseSolving, ""); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Idle -> Solving should fail, got %v", err)
	}
	steps := []Phase{PhaseMatrixBuilding, PhaseSolving, PhaseTimedOut, PhaseIdle}
	for _, s := range steps {
		if err := m.transition(context.Background(), s, ""); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if m.Phase() != PhaseIdle {
		t.Fatalf("phase = %s", m.Phase())
	}
	if err := m.transition(context.Background(), PhaseSolved, ""); err == nil {
		t.Fatalf("Idle -> Solved should fail")
	}
}
