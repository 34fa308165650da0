package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wasteroute/internal/model"
)

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidK           = errors.New("invalid cluster count")
	ErrUnknownClusterer   = errors.New("unknown clusterer")
)

// Clusterer partitions points into k zones. The returned slice holds a zone
// id in [0,k) for every input point, and every zone is non-empty.
type Clusterer interface {
	Cluster(ctx context.Context, points []model.GeoPoint, k int) ([]int, error)
}

const (
	KindKMeans = "kmeans"
	KindSweep  = "sweep"
)

// New builds a clusterer by name. An empty name selects k-means. origin is
// only used by the sweep clusterer.
func New(kind string, seed int64, origin model.GeoPoint) (Clusterer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindKMeans:
		return &KMeans{Seed: seed}, nil
	case KindSweep:
		o := origin
		return &Sweep{Origin: &o}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClusterer, kind)
	}
}

func checkInput(n, k int) error {
	if k < 1 {
		return fmt.Errorf("%w: k=%d", ErrInvalidK, k)
	}
	if n < k {
		return fmt.Errorf("%w: %d points for %d zones", ErrInsufficientPoints, n, k)
	}
	return nil
}

// Centroids returns the mean position of each zone.
func Centroids(points []model.GeoPoint, labels []int, k int) []model.GeoPoint {
	sum := make([]model.GeoPoint, k)
	cnt := make([]int, k)
	for i, l := range labels {
		sum[l].Lat += points[i].Lat
		sum[l].Lng += points[i].Lng
		cnt[l]++
	}
	for c := range sum {
		if cnt[c] > 0 {
			sum[c].Lat /= float64(cnt[c])
			sum[c].Lng /= float64(cnt[c])
		}
	}
	return sum
}

// relabel renumbers zones in order of first appearance so equal partitions
// always get equal labels.
func relabel(labels []int, k int) []int {
	m := make([]int, k)
	for i := range m {
		m[i] = -1
	}
	next := 0
	out := make([]int, len(labels))
	for i, l := range labels {
		if m[l] < 0 {
			m[l] = next
			next++
		}
		out[i] = m[l]
	}
	return out
}
