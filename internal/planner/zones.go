package planner

import (
	"fmt"

	polyline "github.com/twpayne/go-polyline"

	"wasteroute/internal/cluster"
	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

// buildZones groups points by cluster label.
func buildZones(points []model.WastePoint, labels []int, k int) ([]model.Zone, [][]model.WastePoint) {
	members := make([][]model.WastePoint, k)
	for i, l := range labels {
		members[l] = append(members[l], points[i])
	}
	locs := make([]model.GeoPoint, len(points))
	for i, p := range points {
		locs[i] = p.Location
	}
	centroids := cluster.Centroids(locs, labels, k)
	zones := make([]model.Zone, k)
	for z := range zones {
		zones[z] = model.Zone{ID: z, Centroid: centroids[z]}
		for _, p := range members[z] {
			zones[z].PointIDs = append(zones[z].PointIDs, p.ID)
			zones[z].VolumeTons += p.VolumeTons
		}
	}
	return zones, members
}

// allocateVehicles gives every zone one vehicle, then hands out the rest one
// at a time to the zone with the most volume per vehicle. A zone never gets
// more vehicles than it has points.
func allocateVehicles(zones []model.Zone, vehicles int) []int {
	alloc := make([]int, len(zones))
	left := vehicles
	for z := range zones {
		alloc[z] = 1
		left--
	}
	for ; left > 0; left-- {
		best, bestRatio := -1, -1.0
		for z, zone := range zones {
			if alloc[z] >= len(zone.PointIDs) {
				continue
			}
			if r := zone.VolumeTons / float64(alloc[z]); r > bestRatio {
				best, bestRatio = z, r
			}
		}
		if best < 0 {
			break
		}
		alloc[best]++
	}
	return alloc
}

func vehicleID(n int) string { return fmt.Sprintf("V%d", n) }

// buildRoute turns one solver plan (indices into the zone matrix, where 0 is
// the depot and i is members[i-1]) into a Route.
func buildRoute(n int, zoneID int, plan []int, members []model.WastePoint, depot model.GeoPoint, dist geo.Matrix, road geo.RoadModel, capacity float64) model.Route {
	r := model.Route{
		ID:          fmt.Sprintf("R%d", n),
		VehicleID:   vehicleID(n),
		ZoneID:      zoneID,
		Sequence:    make([]string, 0, len(plan)+2),
		Stops:       len(plan),
		CapacityTon: capacity,
	}
	coords := make([][]float64, 0, len(plan)+2)
	r.Sequence = append(r.Sequence, model.DepotID)
	coords = append(coords, []float64{depot.Lat, depot.Lng})
	for _, idx := range plan {
		p := members[idx-1]
		r.Sequence = append(r.Sequence, p.ID)
		r.LoadTons += p.VolumeTons
		coords = append(coords, []float64{p.Location.Lat, p.Location.Lng})
	}
	r.Sequence = append(r.Sequence, model.DepotID)
	coords = append(coords, []float64{depot.Lat, depot.Lng})
	if dist != nil {
		r.DistanceKm = dist.RouteKm(plan)
	}
	r.DurationMin = road.TravelTime(r.DistanceKm).Minutes()
	if len(plan) > 0 {
		r.Polyline = string(polyline.EncodeCoords(coords))
	}
	return r
}
