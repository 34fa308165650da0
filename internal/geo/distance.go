package geo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/s2"

	"wasteroute/internal/model"
)

const (
	earthRadiusKm = 6371.0

	// DefaultRoadFactor inflates straight-line distance to approximate city road networks.
	DefaultRoadFactor = 1.3
	DefaultSpeedKph   = 25.0
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidRoadFactor = errors.New("road factor must be a positive finite number")
)

// CoordinateError reports which input point failed validation.
type CoordinateError struct {
	Index int // -1 when the point is not part of a list (e.g. the depot)
	Point model.GeoPoint
}

func (e *CoordinateError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid coordinate (%v, %v)", e.Point.Lat, e.Point.Lng)
	}
	return fmt.Sprintf("invalid coordinate at index %d: (%v, %v)", e.Index, e.Point.Lat, e.Point.Lng)
}

func (e *CoordinateError) Is(target error) bool { return target == ErrInvalidCoordinate }

// Validate rejects NaN, infinities and out-of-range latitude/longitude.
func Validate(p model.GeoPoint) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return &CoordinateError{Index: -1, Point: p}
	}
	if !s2.LatLngFromDegrees(p.Lat, p.Lng).IsValid() {
		return &CoordinateError{Index: -1, Point: p}
	}
	return nil
}

// ValidateAll checks every point and reports the first offending index.
func ValidateAll(points []model.GeoPoint) error {
	for i, p := range points {
		if err := Validate(p); err != nil {
			return &CoordinateError{Index: i, Point: p}
		}
	}
	return nil
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// RoadModel turns straight-line distance into an estimated road distance and drive time.
type RoadModel struct {
	Factor   float64
	SpeedKph float64
}

func DefaultRoadModel() RoadModel {
	return RoadModel{Factor: DefaultRoadFactor, SpeedKph: DefaultSpeedKph}
}

// Validate rejects a factor that is not a positive finite number.
func (m RoadModel) Validate() error {
	if !(m.Factor > 0) || math.IsInf(m.Factor, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRoadFactor, m.Factor)
	}
	return nil
}

// Distance is the adjusted road distance in km between two valid points.
func (m RoadModel) Distance(a, b model.GeoPoint) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}
	return Haversine(a, b) * m.Factor, nil
}

// TravelTime converts km to drive time at the model's average speed.
func (m RoadModel) TravelTime(km float64) time.Duration {
	speed := m.SpeedKph
	if speed <= 0 {
		speed = DefaultSpeedKph
	}
	return time.Duration(km / speed * float64(time.Hour))
}

// Matrix is a square, symmetric distance matrix in km with a zero diagonal.
type Matrix [][]float64

func (d Matrix) Size() int { return len(d) }

// RouteKm sums the legs depot -> order... -> depot, with node 0 as the depot.
func (d Matrix) RouteKm(order []int) float64 {
	if len(order) == 0 {
		return 0
	}
	total := d[0][order[0]]
	for i := 0; i+1 < len(order); i++ {
		total += d[order[i]][order[i+1]]
	}
	return total + d[order[len(order)-1]][0]
}

// Matrix builds the pairwise road distances between points.
func (m RoadModel) Matrix(points []model.GeoPoint) (Matrix, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateAll(points); err != nil {
		return nil, err
	}
	f := m.Factor
	n := len(points)
	out := make(Matrix, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := Haversine(points[i], points[j]) * f
			out[i][j] = d
			out[j][i] = d
		}
	}
	return out, nil
}
