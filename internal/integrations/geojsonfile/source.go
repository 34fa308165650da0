// Package geojsonfile reads collection points from a GeoJSON FeatureCollection.
package geojsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"wasteroute/internal/geo"
	"wasteroute/internal/integrations"
	"wasteroute/internal/model"
)

// Source accepts Point features with "id", "category" and "volumeTons" properties.
// Non-point features are skipped so route layers exported earlier can be fed back in.
type Source struct {
	Path string
	City string
}

func New(path, city string) *Source { return &Source{Path: path, City: city} }

func (s *Source) Name() string { return "geojson:" + s.Path }

func (s *Source) FetchPoints(ctx context.Context) ([]model.WastePoint, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return Parse(b, s.Name(), s.City)
}

func Parse(data []byte, name, city string) ([]model.WastePoint, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var out []model.WastePoint
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		if kind := f.Properties.MustString("kind", "point"); kind != "point" {
			continue
		}
		p, err := toPoint(f, pt)
		if err != nil {
			return nil, &integrations.RowError{Source: name, Line: i + 1, Err: err}
		}
		p.City = city
		out = append(out, p)
	}
	return out, nil
}

func toPoint(f *geojson.Feature, pt orb.Point) (model.WastePoint, error) {
	p := model.WastePoint{
		ID:       f.Properties.MustString("id", ""),
		Location: model.GeoPoint{Lat: pt.Lat(), Lng: pt.Lon()},
		Category: model.CategoryResidential,
	}
	if p.ID == "" {
		if id, ok := f.ID.(string); ok {
			p.ID = id
		}
	}
	if p.ID == "" {
		return p, errors.New("feature has no id")
	}
	if err := geo.Validate(p.Location); err != nil {
		return p, err
	}
	p.VolumeTons = f.Properties.MustFloat64("volumeTons", 0)
	if p.VolumeTons <= 0 {
		return p, fmt.Errorf("volumeTons must be positive for %s", p.ID)
	}
	if c := f.Properties.MustString("category", ""); c != "" {
		cat, ok := model.ParseCategory(c)
		if !ok {
			return p, fmt.Errorf("unknown category %q", c)
		}
		p.Category = cat
	}
	return p, nil
}
