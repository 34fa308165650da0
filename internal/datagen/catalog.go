package datagen

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

var ErrUnknownCity = errors.New("unknown city")

var defaultCities = []model.City{
	{Name: "Mumbai", Center: model.GeoPoint{Lat: 19.0760, Lng: 72.8777}},
	{Name: "Delhi", Center: model.GeoPoint{Lat: 28.7041, Lng: 77.1025}},
	{Name: "Bangalore", Center: model.GeoPoint{Lat: 12.9716, Lng: 77.5946}},
	{Name: "Hyderabad", Center: model.GeoPoint{Lat: 17.3850, Lng: 78.4867}},
	{Name: "Chennai", Center: model.GeoPoint{Lat: 13.0827, Lng: 80.2707}},
	{Name: "Kolkata", Center: model.GeoPoint{Lat: 22.5726, Lng: 88.3639}},
	{Name: "Pune", Center: model.GeoPoint{Lat: 18.5204, Lng: 73.8567}},
	{Name: "Jaipur", Center: model.GeoPoint{Lat: 26.9124, Lng: 75.7873}},
	{Name: "Ahmedabad", Center: model.GeoPoint{Lat: 23.0225, Lng: 72.5714}},
	{Name: "Lucknow", Center: model.GeoPoint{Lat: 26.8467, Lng: 80.9462}},
}

// Catalog is a read-only set of cities keyed by lower-case name.
type Catalog struct {
	cities map[string]model.City
}

func DefaultCatalog() *Catalog {
	c := &Catalog{cities: make(map[string]model.City, len(defaultCities))}
	for _, city := range defaultCities {
		c.cities[strings.ToLower(city.Name)] = city
	}
	return c
}

type catalogFile struct {
	Cities []model.City `yaml:"cities"`
}

// LoadCatalog returns the default catalog merged with the cities in a YAML
// file. Entries in the file override defaults with the same name.
//
//	cities:
//	  - name: Surat
//	    center: {lat: 21.1702, lng: 72.8311}
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cities file: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse cities file: %w", err)
	}
	for i, city := range f.Cities {
		name := strings.TrimSpace(city.Name)
		if name == "" {
			return nil, fmt.Errorf("cities[%d]: name is required", i)
		}
		if err := geo.Validate(city.Center); err != nil {
			return nil, fmt.Errorf("cities[%d] %s: %w", i, name, err)
		}
		city.Name = name
		c.cities[strings.ToLower(name)] = city
	}
	return c, nil
}

// Lookup finds a city case-insensitively and returns its canonical entry.
func (c *Catalog) Lookup(name string) (model.City, error) {
	city, ok := c.cities[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return model.City{}, fmt.Errorf("%w: %q", ErrUnknownCity, name)
	}
	return city, nil
}

// Cities returns all cities sorted by name.
func (c *Catalog) Cities() []model.City {
	out := make([]model.City, 0, len(c.cities))
	for _, city := range c.cities {
		out = append(out, city)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
