package datagen

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"wasteroute/internal/model"
)

var (
	ErrInvalidCount = errors.New("invalid point count")
	ErrInvalidMix   = errors.New("invalid category mix")
)

const (
	DefaultSpread    = 0.05 // degrees of jitter around the city centre
	DefaultMaxPoints = 1000
	minVolumeTons    = 0.5
	maxVolumeTons    = 5.0
	maxDaysSince     = 7
)

type Generator struct {
	Catalog   *Catalog
	Spread    float64
	MaxPoints int
	// Now is overridable for tests.
	Now func() time.Time
}

func NewGenerator(c *Catalog) *Generator {
	return &Generator{Catalog: c, Spread: DefaultSpread, MaxPoints: DefaultMaxPoints, Now: time.Now}
}

type Request struct {
	City  string
	Count int
	// CategoryMix holds relative weights by category name; nil means uniform.
	CategoryMix map[string]float64
	Seed        int64
}

// Generate creates Count synthetic waste points scattered around the city centre.
// The same seed always yields the same points (except LastCollection, which is
// relative to Now).
func (g *Generator) Generate(req Request) ([]model.WastePoint, error) {
	city, err := g.Catalog.Lookup(req.City)
	if err != nil {
		return nil, err
	}
	maxPoints := g.MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if req.Count < 1 || req.Count > maxPoints {
		return nil, fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidCount, req.Count, maxPoints)
	}
	cats, weights, err := normalizeMix(req.CategoryMix)
	if err != nil {
		return nil, err
	}
	spread := g.Spread
	if spread <= 0 {
		spread = DefaultSpread
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	ref := now().UTC()
	rng := rand.New(rand.NewSource(seed))

	points := make([]model.WastePoint, req.Count)
	for i := range points {
		lat := city.Center.Lat + (rng.Float64()*2-1)*spread
		lng := city.Center.Lng + (rng.Float64()*2-1)*spread
		points[i] = model.WastePoint{
			ID:             fmt.Sprintf("LOC_%03d", i+1),
			City:           city.Name,
			Location:       model.GeoPoint{Lat: lat, Lng: lng},
			Category:       pickCategory(cats, weights, rng),
			VolumeTons:     minVolumeTons + rng.Float64()*(maxVolumeTons-minVolumeTons),
			Frequency:      1 + rng.Intn(3),
			LastCollection: ref.Add(-time.Duration(rng.Intn(maxDaysSince+1)) * 24 * time.Hour),
		}
	}
	return points, nil
}

// normalizeMix returns categories with cumulative weights.
func normalizeMix(mix map[string]float64) ([]model.Category, []float64, error) {
	cats := make([]model.Category, 0, len(model.Categories))
	cum := make([]float64, 0, len(model.Categories))
	if len(mix) == 0 {
		for i, c := range model.Categories {
			cats = append(cats, c)
			cum = append(cum, float64(i+1))
		}
		return cats, cum, nil
	}
	byCat := map[model.Category]float64{}
	for name, w := range mix {
		c, ok := model.ParseCategory(name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown category %q", ErrInvalidMix, name)
		}
		if w < 0 {
			return nil, nil, fmt.Errorf("%w: negative weight for %s", ErrInvalidMix, c)
		}
		byCat[c] += w
	}
	total := 0.0
	// iterate in fixed order so the same seed gives the same draw
	for _, c := range model.Categories {
		w := byCat[c]
		if w == 0 {
			continue
		}
		total += w
		cats = append(cats, c)
		cum = append(cum, total)
	}
	if total == 0 {
		return nil, nil, fmt.Errorf("%w: weights sum to zero", ErrInvalidMix)
	}
	return cats, cum, nil
}

func pickCategory(cats []model.Category, cum []float64, rng *rand.Rand) model.Category {
	r := rng.Float64() * cum[len(cum)-1]
	for i, c := range cum {
		if r < c {
			return cats[i]
		}
	}
	return cats[len(cats)-1]
}
