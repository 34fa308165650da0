package geo

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasteroute/internal/model"
)

var (
	mumbai = model.GeoPoint{Lat: 19.0760, Lng: 72.8777}
	pune   = model.GeoPoint{Lat: 18.5204, Lng: 73.8567}
)

func TestHaversineKnownDistance(t *testing.T) {
	// Mumbai to Pune is roughly 120 km as the crow flies.
	d := Haversine(mumbai, pune)
	assert.InDelta(t, 120, d, 5)
}

func TestDistanceSymmetricAndZero(t *testing.T) {
	m := DefaultRoadModel()
	ab, err := m.Distance(mumbai, pune)
	require.NoError(t, err)
	ba, err := m.Distance(pune, mumbai)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)

	aa, err := m.Distance(mumbai, mumbai)
	require.NoError(t, err)
	assert.Zero(t, aa)

	assert.InDelta(t, Haversine(mumbai, pune)*1.3, ab, 1e-9)
}

func TestDistanceRejectsBadFactor(t *testing.T) {
	for _, f := range []float64{0, -1.3, math.NaN(), math.Inf(1)} {
		_, err := RoadModel{Factor: f}.Distance(mumbai, pune)
		assert.ErrorIs(t, err, ErrInvalidRoadFactor, "factor %v", f)
		_, err = RoadModel{Factor: f}.Matrix([]model.GeoPoint{mumbai, pune})
		assert.ErrorIs(t, err, ErrInvalidRoadFactor, "factor %v", f)
	}

	d, err := RoadModel{Factor: 1}.Distance(mumbai, pune)
	require.NoError(t, err)
	assert.InDelta(t, Haversine(mumbai, pune), d, 1e-9)
}

func TestValidateRejectsBadCoordinates(t *testing.T) {
	bad := []model.GeoPoint{
		{Lat: 91, Lng: 0},
		{Lat: -90.5, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: math.NaN(), Lng: 0},
		{Lat: 0, Lng: math.Inf(1)},
	}
	for _, p := range bad {
		err := Validate(p)
		if !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("expected ErrInvalidCoordinate for %+v, got %v", p, err)
		}
	}
	require.NoError(t, Validate(model.GeoPoint{Lat: 90, Lng: -180}))

	_, err := DefaultRoadModel().Distance(mumbai, model.GeoPoint{Lat: 100})
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestMatrixSymmetricZeroDiagonal(t *testing.T) {
	pts := []model.GeoPoint{mumbai, pune, {Lat: 19.2, Lng: 72.9}, {Lat: 18.9, Lng: 73.1}}
	mx, err := DefaultRoadModel().Matrix(pts)
	require.NoError(t, err)
	require.Equal(t, 4, mx.Size())
	for i := range mx {
		assert.Zero(t, mx[i][i])
		for j := range mx {
			assert.Equal(t, mx[i][j], mx[j][i])
			if i != j {
				assert.Greater(t, mx[i][j], 0.0)
			}
		}
	}
	// triangle inequality holds with a uniform factor
	for i := range mx {
		for j := range mx {
			for k := range mx {
				assert.LessOrEqual(t, mx[i][k], mx[i][j]+mx[j][k]+1e-9)
			}
		}
	}
}

func TestMatrixReportsIndex(t *testing.T) {
	_, err := DefaultRoadModel().Matrix([]model.GeoPoint{mumbai, {Lat: 0, Lng: 200}})
	var ce *CoordinateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Index)
}

func TestRouteKmAndTravelTime(t *testing.T) {
	mx := Matrix{
		{0, 2, 3},
		{2, 0, 4},
		{3, 4, 0},
	}
	assert.InDelta(t, 9.0, mx.RouteKm([]int{1, 2}), 1e-9)
	assert.Zero(t, mx.RouteKm(nil))

	m := RoadModel{SpeedKph: 20}
	assert.Equal(t, 30*time.Minute, m.TravelTime(10))
}
