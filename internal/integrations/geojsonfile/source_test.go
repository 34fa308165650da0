package geojsonfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasteroute/internal/integrations"
	"wasteroute/internal/model"
)

const fc = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[73.85,18.52]},"properties":{"kind":"depot","id":"DEPOT"}},
 {"type":"Feature","geometry":{"type":"LineString","coordinates":[[73.85,18.52],[73.86,18.53]]},"properties":{"kind":"route"}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[73.86,18.53]},"properties":{"id":"LOC_001","category":"organic","volumeTons":1.5}}
]}`

func TestParse(t *testing.T) {
	pts, err := Parse([]byte(fc), "t", "Pune")
	require.NoError(t, err)
	require.Len(t, pts, 1)
	p := pts[0]
	assert.Equal(t, "LOC_001", p.ID)
	assert.Equal(t, model.CategoryOrganic, p.Category)
	assert.Equal(t, 18.53, p.Location.Lat)
	assert.Equal(t, 73.86, p.Location.Lng)
	assert.Equal(t, 1.5, p.VolumeTons)
}

func TestParseRejectsMissingVolume(t *testing.T) {
	bad := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[73.86,18.53]},"properties":{"id":"A"}}]}`
	_, err := Parse([]byte(bad), "t", "")
	var re *integrations.RowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Line)
}
