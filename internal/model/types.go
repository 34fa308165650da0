package model

import (
	"strings"
	"time"
)

// Core domain types shared by the planner, the API and the exporters.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Category string

const (
	CategoryResidential  Category = "Residential"
	CategoryCommercial   Category = "Commercial"
	CategoryConstruction Category = "Construction"
	CategoryOrganic      Category = "Organic"
	// CategoryDepot only appears in export rows.
	CategoryDepot Category = "Depot"
)

// Categories lists the waste categories a point can carry, in display order.
var Categories = []Category{CategoryResidential, CategoryCommercial, CategoryConstruction, CategoryOrganic}

// ParseCategory matches a category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// WastePoint is a collection location. Values are never mutated after generation.
type WastePoint struct {
	ID             string    `json:"id"`
	City           string    `json:"city"`
	Location       GeoPoint  `json:"location"`
	Category       Category  `json:"category"`
	VolumeTons     float64   `json:"volumeTons"`
	Frequency      int       `json:"frequency,omitempty"` // pickups per week
	LastCollection time.Time `json:"lastCollection,omitempty"`
}

// DepotID marks the start and end of every route sequence.
const DepotID = "DEPOT"

type Zone struct {
	ID         int      `json:"id"`
	PointIDs   []string `json:"pointIds"`
	Centroid   GeoPoint `json:"centroid"`
	VolumeTons float64  `json:"volumeTons"`
	Vehicles   []string `json:"vehicles"`
}

type Route struct {
	ID          string   `json:"id"`
	VehicleID   string   `json:"vehicleId"`
	ZoneID      int      `json:"zoneId"`
	Sequence    []string `json:"sequence"`
	Stops       int      `json:"stops"`
	LoadTons    float64  `json:"loadTons"`
	CapacityTon float64  `json:"capacityTons"`
	DistanceKm  float64  `json:"distanceKm"`
	DurationMin float64  `json:"durationMin"`
	Polyline    string   `json:"polyline,omitempty"`
}

type Status string

const (
	StatusSolved     Status = "Solved"
	StatusInfeasible Status = "Infeasible"
	StatusTimedOut   Status = "TimedOut"
)

// SolveMetrics summarises the search effort across all zones of a run.
type SolveMetrics struct {
	Iterations    int     `json:"iterations"`
	Improvements  int     `json:"improvements"`
	AcceptedWorse int     `json:"acceptedWorse"`
	ElapsedMs     int64   `json:"elapsedMs"`
	BestCost      float64 `json:"bestCost"`
}

type PlanResult struct {
	RunID            string       `json:"runId"`
	City             string       `json:"city"`
	Depot            GeoPoint     `json:"depot"`
	Algorithm        string       `json:"algorithm"`
	Status           Status       `json:"status"`
	VehicleCapacity  float64      `json:"vehicleCapacityTons"`
	Points           []WastePoint `json:"points"`
	Zones            []Zone       `json:"zones"`
	Routes           []Route      `json:"routes"`
	TotalDistanceKm  float64      `json:"totalDistanceKm"`
	TotalDurationMin float64      `json:"totalDurationMin"`
	TotalVolumeTons  float64      `json:"totalVolumeTons"`
	Metrics          SolveMetrics `json:"metrics"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// PointByID indexes the result's points.
func (r *PlanResult) PointByID() map[string]WastePoint {
	out := make(map[string]WastePoint, len(r.Points))
	for _, p := range r.Points {
		out[p.ID] = p
	}
	return out
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	RunID           string    `json:"runId"`
	City            string    `json:"city"`
	Status          Status    `json:"status"`
	Algorithm       string    `json:"algorithm"`
	Points          int       `json:"points"`
	Vehicles        int       `json:"vehicles"`
	TotalDistanceKm float64   `json:"totalDistanceKm"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (r *PlanResult) Summary() RunSummary {
	return RunSummary{
		RunID:           r.RunID,
		City:            r.City,
		Status:          r.Status,
		Algorithm:       r.Algorithm,
		Points:          len(r.Points),
		Vehicles:        len(r.Routes),
		TotalDistanceKm: r.TotalDistanceKm,
		CreatedAt:       r.CreatedAt,
	}
}

// ExportRow is one line of the flat route table handed to presenters.
type ExportRow struct {
	RouteID   string   `json:"routeId"`
	VehicleID string   `json:"vehicleId"`
	StopOrder int      `json:"stopOrder"`
	PointID   string   `json:"pointId"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Category  Category `json:"category"`
	// VolumeTons is zero for depot rows.
	VolumeTons float64 `json:"volumeTons"`
}

// Request/response bodies.

type GenerateRequest struct {
	City        string             `json:"city" validate:"required"`
	Count       int                `json:"count" validate:"required,min=1"`
	CategoryMix map[string]float64 `json:"categoryMix,omitempty"`
	Seed        int64              `json:"seed,omitempty"`
}

// PointIn is a caller-supplied point. Coordinates are range-checked by the
// planner so they fail as invalid coordinates, like the depot.
type PointIn struct {
	ID         string  `json:"id" validate:"required"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Category   string  `json:"category,omitempty"`
	VolumeTons float64 `json:"volumeTons" validate:"gt=0"`
}

type OptimizeRequest struct {
	// RunID lets a client subscribe to run events before posting.
	RunID            string             `json:"runId,omitempty" validate:"omitempty,max=64"`
	City             string             `json:"city" validate:"required"`
	PointCount       int                `json:"pointCount" validate:"omitempty,min=1"`
	CategoryMix      map[string]float64 `json:"categoryMix,omitempty"`
	Points           []PointIn          `json:"points,omitempty" validate:"omitempty,dive"`
	Depot            *GeoPoint          `json:"depot,omitempty"`
	VehicleCount     int                `json:"vehicleCount" validate:"required,min=1"`
	VehicleCapacity  float64            `json:"vehicleCapacityTons" validate:"required,gt=0"`
	ZoneCount        int                `json:"zoneCount,omitempty" validate:"omitempty,min=1"`
	MaxRouteKm       float64            `json:"maxRouteKm,omitempty" validate:"omitempty,gt=0"`
	Seed             int64              `json:"seed,omitempty"`
	Algorithm        string             `json:"algorithm,omitempty"`
	Clusterer        string             `json:"clusterer,omitempty"`
	TimeBudgetMs     int                `json:"timeBudgetMs,omitempty"`
	MaxIterations    int                `json:"maxIterations,omitempty"`
	InitTemp         float64            `json:"initTemp,omitempty"`
	Cooling          float64            `json:"cooling,omitempty"`
	RemovalWeights   []float64          `json:"removalWeights,omitempty"`
	InsertionWeights []float64          `json:"insertionWeights,omitempty"`
}

type City struct {
	Name   string   `json:"name" yaml:"name"`
	Center GeoPoint `json:"center" yaml:"center"`
}

type Subscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url" validate:"required,url"`
	Events    []string  `json:"events" validate:"required,min=1"`
	Secret    string    `json:"secret,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
