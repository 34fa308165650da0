package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tealeg/xlsx"

	"wasteroute/internal/model"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatGeoJSON Format = "geojson"
)

var ErrUnknownFormat = errors.New("unknown export format")

var header = []string{"route_id", "vehicle_id", "stop_order", "point_id", "lat", "lon", "category", "volume_tons"}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX, FormatGeoJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatGeoJSON:
		return "application/geo+json"
	default:
		return "text/csv"
	}
}

func (f Format) Ext() string { return string(f) }

// Rows flattens a plan into one row per sequence element, depot legs included.
func Rows(res *model.PlanResult) []model.ExportRow {
	byID := res.PointByID()
	var rows []model.ExportRow
	for _, r := range res.Routes {
		for i, id := range r.Sequence {
			row := model.ExportRow{RouteID: r.ID, VehicleID: r.VehicleID, StopOrder: i, PointID: id}
			if id == model.DepotID {
				row.Lat, row.Lng, row.Category = res.Depot.Lat, res.Depot.Lng, model.CategoryDepot
			} else {
				p := byID[id]
				row.Lat, row.Lng, row.Category, row.VolumeTons = p.Location.Lat, p.Location.Lng, p.Category, p.VolumeTons
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func record(r model.ExportRow) []string {
	return []string{
		r.RouteID,
		r.VehicleID,
		strconv.Itoa(r.StopOrder),
		r.PointID,
		strconv.FormatFloat(r.Lat, 'f', 6, 64),
		strconv.FormatFloat(r.Lng, 'f', 6, 64),
		string(r.Category),
		strconv.FormatFloat(r.VolumeTons, 'f', 2, 64),
	}
}

func WriteCSV(w io.Writer, rows []model.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, rows []model.ExportRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Routes")
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.RouteID)
		row.AddCell().SetString(r.VehicleID)
		row.AddCell().SetInt(r.StopOrder)
		row.AddCell().SetString(r.PointID)
		row.AddCell().SetFloat(r.Lat)
		row.AddCell().SetFloat(r.Lng)
		row.AddCell().SetString(string(r.Category))
		row.AddCell().SetFloat(r.VolumeTons)
	}
	return f.Write(w)
}

// GeoJSON renders routes as LineStrings and waste points as Points.
func GeoJSON(res *model.PlanResult) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	byID := res.PointByID()
	depot := orb.Point{res.Depot.Lng, res.Depot.Lat}

	d := geojson.NewFeature(depot)
	d.Properties["kind"] = "depot"
	d.Properties["id"] = model.DepotID
	fc.Append(d)

	for _, r := range res.Routes {
		if r.Stops == 0 {
			continue
		}
		line := make(orb.LineString, 0, len(r.Sequence))
		for _, id := range r.Sequence {
			if id == model.DepotID {
				line = append(line, depot)
				continue
			}
			p := byID[id]
			line = append(line, orb.Point{p.Location.Lng, p.Location.Lat})
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["routeId"] = r.ID
		f.Properties["vehicleId"] = r.VehicleID
		f.Properties["zoneId"] = r.ZoneID
		f.Properties["distanceKm"] = r.DistanceKm
		f.Properties["loadTons"] = r.LoadTons
		fc.Append(f)
	}
	for _, p := range res.Points {
		f := geojson.NewFeature(orb.Point{p.Location.Lng, p.Location.Lat})
		f.Properties["kind"] = "point"
		f.Properties["id"] = p.ID
		f.Properties["category"] = string(p.Category)
		f.Properties["volumeTons"] = p.VolumeTons
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

// Write encodes res in the given format.
func Write(w io.Writer, f Format, res *model.PlanResult) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, Rows(res))
	case FormatXLSX:
		return WriteXLSX(w, Rows(res))
	case FormatGeoJSON:
		b, err := GeoJSON(res)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}
