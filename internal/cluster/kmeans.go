package cluster

import (
	"context"
	"math"
	"math/rand"
	"time"

	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

const defaultMaxIterations = 100

// KMeans is Lloyd's algorithm with k-means++ seeding over great-circle distance.
type KMeans struct {
	Seed          int64
	MaxIterations int
}

func (km *KMeans) Cluster(ctx context.Context, points []model.GeoPoint, k int) ([]int, error) {
	if err := checkInput(len(points), k); err != nil {
		return nil, err
	}
	seed := km.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	maxIter := km.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	centers := seedPlusPlus(points, k, rng)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	for it := 0; it < maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false
		for i, p := range points {
			best, bestD := 0, math.MaxFloat64
			for c, ctr := range centers {
				if d := geo.Haversine(p, ctr); d < bestD {
					best, bestD = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if fillEmpty(points, labels, centers) {
			changed = true
		}
		copy(centers, Centroids(points, labels, k))
		if !changed {
			break
		}
	}
	return relabel(labels, k), nil
}

// seedPlusPlus picks k initial centres, each with probability proportional to
// the squared distance from the nearest centre already chosen.
func seedPlusPlus(points []model.GeoPoint, k int, rng *rand.Rand) []model.GeoPoint {
	n := len(points)
	chosen := make([]bool, n)
	first := rng.Intn(n)
	chosen[first] = true
	centers := []model.GeoPoint{points[first]}
	d2 := make([]float64, n)
	for i, p := range points {
		d := geo.Haversine(p, points[first])
		d2[i] = d * d
	}
	for len(centers) < k {
		total := 0.0
		for i := range d2 {
			if !chosen[i] {
				total += d2[i]
			}
		}
		next := -1
		if total > 0 {
			r := rng.Float64() * total
			acc := 0.0
			for i := range d2 {
				if chosen[i] {
					continue
				}
				acc += d2[i]
				if r < acc {
					next = i
					break
				}
			}
		}
		if next < 0 {
			// all remaining points coincide with a centre
			for i := range chosen {
				if !chosen[i] {
					next = i
					break
				}
			}
		}
		chosen[next] = true
		centers = append(centers, points[next])
		for i, p := range points {
			d := geo.Haversine(p, points[next])
			if d*d < d2[i] {
				d2[i] = d * d
			}
		}
	}
	return centers
}

// fillEmpty moves into every empty cluster the point farthest from its own
// centre, taken from a cluster that keeps at least one member.
func fillEmpty(points []model.GeoPoint, labels []int, centers []model.GeoPoint) bool {
	k := len(centers)
	size := make([]int, k)
	for _, l := range labels {
		size[l]++
	}
	moved := false
	for c := 0; c < k; c++ {
		if size[c] > 0 {
			continue
		}
		far, farD := -1, -1.0
		for i, p := range points {
			if size[labels[i]] < 2 {
				continue
			}
			if d := geo.Haversine(p, centers[labels[i]]); d > farD {
				far, farD = i, d
			}
		}
		if far < 0 {
			break
		}
		size[labels[far]]--
		labels[far] = c
		size[c]++
		centers[c] = points[far]
		moved = true
	}
	return moved
}
