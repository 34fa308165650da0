// Package csvfile reads collection points from CSV drops.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"wasteroute/internal/geo"
	"wasteroute/internal/integrations"
	"wasteroute/internal/model"
)

var ErrHeader = errors.New("csv header must contain id, lat, lon and volume")

// Source reads "id,lat,lon,category,volume" records. Column order follows the header;
// category is optional and defaults to Residential.
type Source struct {
	Path string
	City string
	open func(string) (io.ReadCloser, error)
}

func New(path, city string) *Source {
	return &Source{Path: path, City: city}
}

func (s *Source) Name() string { return "csv:" + s.Path }

func (s *Source) FetchPoints(ctx context.Context) ([]model.WastePoint, error) {
	open := s.open
	if open == nil {
		open = func(p string) (io.ReadCloser, error) { return os.Open(p) }
	}
	f, err := open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(ctx, f, s.Name(), s.City)
}

// Parse decodes every record. The first bad row aborts with an *integrations.RowError.
func Parse(ctx context.Context, r io.Reader, name, city string) ([]model.WastePoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	col := map[string]int{}
	for i, h := range head {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range []string{"id", "lat", "lon", "volume"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrHeader)
		}
	}
	catCol, hasCat := col["category"]

	var out []model.WastePoint
	seen := map[string]bool{}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &integrations.RowError{Source: name, Line: line, Err: err}
		}
		p, err := parseRow(rec, col, catCol, hasCat)
		if err != nil {
			return nil, &integrations.RowError{Source: name, Line: line, Err: err}
		}
		if seen[p.ID] {
			return nil, &integrations.RowError{Source: name, Line: line, Err: fmt.Errorf("duplicate id %q", p.ID)}
		}
		seen[p.ID] = true
		p.City = city
		out = append(out, p)
	}
	return out, nil
}

func parseRow(rec []string, col map[string]int, catCol int, hasCat bool) (model.WastePoint, error) {
	var p model.WastePoint
	p.ID = strings.TrimSpace(rec[col["id"]])
	if p.ID == "" {
		return p, errors.New("empty id")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(rec[col["lat"]]), 64)
	if err != nil {
		return p, fmt.Errorf("lat: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(rec[col["lon"]]), 64)
	if err != nil {
		return p, fmt.Errorf("lon: %w", err)
	}
	p.Location = model.GeoPoint{Lat: lat, Lng: lng}
	if err := geo.Validate(p.Location); err != nil {
		return p, err
	}
	p.VolumeTons, err = strconv.ParseFloat(strings.TrimSpace(rec[col["volume"]]), 64)
	if err != nil {
		return p, fmt.Errorf("volume: %w", err)
	}
	if p.VolumeTons <= 0 {
		return p, fmt.Errorf("volume must be positive, got %g", p.VolumeTons)
	}
	p.Category = model.CategoryResidential
	if hasCat && strings.TrimSpace(rec[catCol]) != "" {
		c, ok := model.ParseCategory(strings.TrimSpace(rec[catCol]))
		if !ok {
			return p, fmt.Errorf("unknown category %q", rec[catCol])
		}
		p.Category = c
	}
	return p, nil
}
