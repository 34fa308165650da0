package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWritesSummaryAndCSV(t *testing.T) {
	out := filepath.Join(t.TempDir(), "plan.csv")
	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"-city", "Chennai", "-points", "15", "-vehicles", "3", "-capacity", "80",
		"-algorithm", "greedy", "-seed", "5", "-out", out,
	}, &stdout)
	require.NoError(t, err)

	text := stdout.String()
	assert.Contains(t, text, "Vehicle 1: ")
	assert.Contains(t, text, "Vehicle 3: ")
	assert.Contains(t, text, "Total system distance: ")
	assert.Contains(t, text, "Wrote "+out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "route_id", recs[0][0])
	assert.Len(t, recs, 1+15+2*3)
}

func TestRunFromCSVPoints(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,lat,lon,volume,category\n"+
		"a,13.08,80.27,2,Organic\n"+
		"b,13.09,80.25,3,Commercial\n"+
		"c,13.06,80.29,1,Residential\n"), 0o644))
	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"-city", "Chennai", "-points-csv", in, "-vehicles", "1", "-capacity", "10",
		"-format", "geojson", "-out", "-",
	}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Vehicle 1: 3 locations")
	assert.Contains(t, stdout.String(), `"FeatureCollection"`)
}

func TestRunRejectsBadFlags(t *testing.T) {
	var stdout bytes.Buffer
	assert.Error(t, run(context.Background(), []string{"-format", "pdf"}, &stdout))
	assert.Error(t, run(context.Background(), []string{"-mix", "Plastic=3"}, &stdout))
	assert.Error(t, run(context.Background(), []string{"-points-csv", "a.csv", "-points-geojson", "b.json"}, &stdout))
	err := run(context.Background(), []string{"-capacity", "0.01", "-points", "10", "-vehicles", "2", "-out", filepath.Join(t.TempDir(), "x.csv")}, &stdout)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "feasible") || strings.Contains(err.Error(), "capacity"), err.Error())
}

func TestParseMix(t *testing.T) {
	mix, err := parseMix("residential=4, Organic=1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Residential": 4, "Organic": 1}, mix)
	mix, err = parseMix("")
	require.NoError(t, err)
	assert.Nil(t, mix)
	_, err = parseMix("Organic")
	assert.Error(t, err)
}

func TestVersionFlag(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &stdout))
	assert.True(t, strings.HasPrefix(stdout.String(), "wasteplan "))
}

func TestFlagDefaults(t *testing.T) {
	o, err := parseFlags(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, o.parallel)
	assert.Equal(t, 60.0, o.maxRouteKm)
	assert.Equal(t, 1.3, o.roadFactor)
}
