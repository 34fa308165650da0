package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"wasteroute/internal/model"
)

func sampleResult() *model.PlanResult {
	return &model.PlanResult{
		RunID: "run-1",
		City:  "Pune",
		Depot: model.GeoPoint{Lat: 18.52, Lng: 73.85},
		Points: []model.WastePoint{
			{ID: "LOC_001", Location: model.GeoPoint{Lat: 18.53, Lng: 73.86}, Category: model.CategoryOrganic, VolumeTons: 1.5},
			{ID: "LOC_002", Location: model.GeoPoint{Lat: 18.51, Lng: 73.84}, Category: model.CategoryCommercial, VolumeTons: 2.25},
		},
		Routes: []model.Route{
			{ID: "R1", VehicleID: "V1", Sequence: []string{model.DepotID, "LOC_002", "LOC_001", model.DepotID}, Stops: 2, DistanceKm: 4.2},
			{ID: "R2", VehicleID: "V2", Sequence: []string{model.DepotID, model.DepotID}},
		},
	}
}

func TestRowsIncludeDepotLegs(t *testing.T) {
	rows := Rows(sampleResult())
	require.Len(t, rows, 6)
	assert.Equal(t, model.CategoryDepot, rows[0].Category)
	assert.Equal(t, "LOC_002", rows[1].PointID)
	assert.Equal(t, 1, rows[1].StopOrder)
	assert.Equal(t, 2.25, rows[1].VolumeTons)
	assert.Equal(t, "R2", rows[4].RouteID)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Rows(sampleResult())))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 7)
	assert.Equal(t, header, recs[0])
	assert.Equal(t, []string{"R1", "V1", "2", "LOC_001", "18.530000", "73.860000", "Organic", "1.50"}, recs[3])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Rows(sampleResult())))
	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Routes", sheet.Name)
	require.Len(t, sheet.Rows, 7)
	assert.Equal(t, "route_id", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "LOC_002", sheet.Rows[2].Cells[3].Value)
}

func TestGeoJSON(t *testing.T) {
	b, err := GeoJSON(sampleResult())
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(b)
	require.NoError(t, err)
	// depot + one non-empty route + two points
	require.Len(t, fc.Features, 4)
	line, ok := fc.Features[1].Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Len(t, line, 4)
	assert.Equal(t, orb.Point{73.85, 18.52}, line[0])
	assert.Equal(t, "R1", fc.Features[1].Properties["routeId"])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Format("pdf"), sampleResult()))
	require.NoError(t, Write(&buf, FormatGeoJSON, sampleResult()))
	assert.Equal(t, "application/geo+json", FormatGeoJSON.ContentType())
}
