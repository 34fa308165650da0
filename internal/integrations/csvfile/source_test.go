package csvfile

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasteroute/internal/geo"
	"wasteroute/internal/integrations"
	"wasteroute/internal/model"
)

func TestParse(t *testing.T) {
	in := "id,lat,lon,category,volume\nA,19.07,72.87,Organic,1.5\nB, 19.08 ,72.88,,2\n"
	pts, err := Parse(context.Background(), strings.NewReader(in), "t", "Mumbai")
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, model.CategoryOrganic, pts[0].Category)
	assert.Equal(t, model.CategoryResidential, pts[1].Category)
	assert.Equal(t, 19.08, pts[1].Location.Lat)
	assert.Equal(t, "Mumbai", pts[1].City)
}

func TestParseReordersColumns(t *testing.T) {
	in := "volume,lon,lat,id\n3,77.1,28.6,X\n"
	pts, err := Parse(context.Background(), strings.NewReader(in), "t", "")
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, 28.6, pts[0].Location.Lat)
	assert.Equal(t, 3.0, pts[0].VolumeTons)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"bad lat":      "id,lat,lon,volume\nA,north,72,1\n",
		"out of range": "id,lat,lon,volume\nA,95,72,1\n",
		"zero volume":  "id,lat,lon,volume\nA,19,72,0\n",
		"duplicate":    "id,lat,lon,volume\nA,19,72,1\nA,19,72,1\n",
		"bad category": "id,lat,lon,category,volume\nA,19,72,Nuclear,1\n",
	}
	for name, in := range cases {
		_, err := Parse(context.Background(), strings.NewReader(in), "t", "")
		var re *integrations.RowError
		require.ErrorAs(t, err, &re, name)
		assert.GreaterOrEqual(t, re.Line, 2, name)
	}
	_, err := Parse(context.Background(), strings.NewReader("a,b\n"), "t", "")
	assert.ErrorIs(t, err, ErrHeader)

	_, err = Parse(context.Background(), strings.NewReader("id,lat,lon,volume\nA,95,72,1\n"), "t", "")
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}

func TestSourceFetch(t *testing.T) {
	s := New("drop.csv", "Pune")
	s.open = func(string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("id,lat,lon,volume\nP1,18.5,73.8,2\n")), nil
	}
	var src integrations.PointSource = s
	pts, err := src.FetchPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, "csv:drop.csv", src.Name())
}
