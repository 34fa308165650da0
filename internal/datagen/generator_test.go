package datagen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasteroute/internal/model"
)

func fixedNow() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }

func newTestGenerator() *Generator {
	g := NewGenerator(DefaultCatalog())
	g.Now = fixedNow
	return g
}

func TestGenerateWithinSpreadAndRanges(t *testing.T) {
	g := newTestGenerator()
	pts, err := g.Generate(Request{City: "mumbai", Count: 50, Seed: 42})
	require.NoError(t, err)
	require.Len(t, pts, 50)

	center := model.GeoPoint{Lat: 19.0760, Lng: 72.8777}
	seen := map[string]bool{}
	for _, p := range pts {
		assert.Equal(t, "Mumbai", p.City)
		assert.LessOrEqual(t, abs(p.Location.Lat-center.Lat), DefaultSpread+1e-9)
		assert.LessOrEqual(t, abs(p.Location.Lng-center.Lng), DefaultSpread+1e-9)
		assert.GreaterOrEqual(t, p.VolumeTons, 0.5)
		assert.Less(t, p.VolumeTons, 5.0)
		assert.GreaterOrEqual(t, p.Frequency, 1)
		assert.LessOrEqual(t, p.Frequency, 3)
		age := fixedNow().Sub(p.LastCollection)
		assert.GreaterOrEqual(t, age, time.Duration(0))
		assert.LessOrEqual(t, age, 7*24*time.Hour)
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
	assert.Equal(t, "LOC_001", pts[0].ID)
	assert.Equal(t, "LOC_050", pts[49].ID)
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	g := newTestGenerator()
	a, err := g.Generate(Request{City: "Pune", Count: 20, Seed: 7})
	require.NoError(t, err)
	b, err := g.Generate(Request{City: "Pune", Count: 20, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := g.Generate(Request{City: "Pune", Count: 20, Seed: 8})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerateCategoryMix(t *testing.T) {
	g := newTestGenerator()
	pts, err := g.Generate(Request{City: "Delhi", Count: 40, Seed: 1, CategoryMix: map[string]float64{"organic": 1}})
	require.NoError(t, err)
	for _, p := range pts {
		assert.Equal(t, model.CategoryOrganic, p.Category)
	}

	_, err = g.Generate(Request{City: "Delhi", Count: 5, CategoryMix: map[string]float64{"Glass": 1}})
	assert.ErrorIs(t, err, ErrInvalidMix)
	_, err = g.Generate(Request{City: "Delhi", Count: 5, CategoryMix: map[string]float64{"Organic": -1}})
	assert.ErrorIs(t, err, ErrInvalidMix)
	_, err = g.Generate(Request{City: "Delhi", Count: 5, CategoryMix: map[string]float64{"Organic": 0}})
	assert.ErrorIs(t, err, ErrInvalidMix)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	g := newTestGenerator()
	_, err := g.Generate(Request{City: "Atlantis", Count: 5})
	assert.ErrorIs(t, err, ErrUnknownCity)
	_, err = g.Generate(Request{City: "Pune", Count: 0})
	assert.ErrorIs(t, err, ErrInvalidCount)
	_, err = g.Generate(Request{City: "Pune", Count: DefaultMaxPoints + 1})
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestLoadCatalogMergesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cities.yaml")
	body := "cities:\n  - name: Surat\n    center: {lat: 21.1702, lng: 72.8311}\n  - name: pune\n    center: {lat: 18.5, lng: 73.8}\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	surat, err := c.Lookup("SURAT")
	require.NoError(t, err)
	assert.InDelta(t, 21.1702, surat.Center.Lat, 1e-9)
	pune, err := c.Lookup("Pune")
	require.NoError(t, err)
	assert.InDelta(t, 18.5, pune.Center.Lat, 1e-9)
	assert.Len(t, c.Cities(), 11)
}

func TestLoadCatalogRejectsBadCenter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cities:\n  - name: X\n    center: {lat: 95, lng: 0}\n"), 0o600))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
