package cluster

import (
	"context"
	"math"
	"sort"

	"wasteroute/internal/model"
)

// Sweep orders points by polar angle around Origin and cuts the ring into k
// contiguous groups of near-equal size. A nil Origin uses the points' centroid.
type Sweep struct {
	Origin *model.GeoPoint
}

func (s *Sweep) Cluster(ctx context.Context, points []model.GeoPoint, k int) ([]int, error) {
	if err := checkInput(len(points), k); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var origin model.GeoPoint
	if s.Origin != nil {
		origin = *s.Origin
	} else {
		all := make([]int, len(points))
		origin = Centroids(points, all, 1)[0]
	}
	cosLat := math.Cos(origin.Lat * math.Pi / 180)
	idx := make([]int, len(points))
	angle := make([]float64, len(points))
	for i, p := range points {
		idx[i] = i
		angle[i] = math.Atan2(p.Lat-origin.Lat, (p.Lng-origin.Lng)*cosLat)
	}
	sort.SliceStable(idx, func(a, b int) bool { return angle[idx[a]] < angle[idx[b]] })

	n := len(points)
	labels := make([]int, n)
	pos := 0
	for c := 0; c < k; c++ {
		size := n / k
		if c < n%k {
			size++
		}
		for j := 0; j < size; j++ {
			labels[idx[pos]] = c
			pos++
		}
	}
	return relabel(labels, k), nil
}
