// Command wasteplan plans waste collection routes for one city and writes the
// route table as CSV, XLSX or GeoJSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"wasteroute/internal/buildinfo"
	"wasteroute/internal/datagen"
	"wasteroute/internal/export"
	"wasteroute/internal/geo"
	"wasteroute/internal/integrations"
	"wasteroute/internal/integrations/csvfile"
	"wasteroute/internal/integrations/geojsonfile"
	"wasteroute/internal/logger"
	"wasteroute/internal/model"
	"wasteroute/internal/planner"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "wasteplan:", err)
		os.Exit(1)
	}
}

type options struct {
	city          string
	points        int
	mix           string
	vehicles      int
	capacity      float64
	zones         int
	seed          int64
	algorithm     string
	clusterer     string
	budget        time.Duration
	iterations    int
	roadFactor    float64
	speedKph      float64
	maxRouteKm    float64
	pointsCSV     string
	pointsGeoJSON string
	citiesFile    string
	out           string
	format        string
	parallel      int
	verbose       bool
	version       bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("wasteplan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.city, "city", "Delhi", "city name from the catalog")
	fs.IntVar(&o.points, "points", 50, "number of synthetic collection points")
	fs.StringVar(&o.mix, "mix", "", "category weights, e.g. Residential=4,Commercial=2")
	fs.IntVar(&o.vehicles, "vehicles", 5, "number of vehicles")
	fs.Float64Var(&o.capacity, "capacity", 20, "vehicle capacity in tons")
	fs.IntVar(&o.zones, "zones", 0, "number of zones (0 = one per vehicle)")
	fs.Int64Var(&o.seed, "seed", 42, "random seed")
	fs.StringVar(&o.algorithm, "algorithm", "alns", "solver: alns or greedy")
	fs.StringVar(&o.clusterer, "clusterer", "kmeans", "zone clustering: kmeans or sweep")
	fs.DurationVar(&o.budget, "budget", 10*time.Second, "solver time budget for the whole plan")
	fs.IntVar(&o.iterations, "iterations", 0, "ALNS iteration cap per zone (0 = default)")
	fs.Float64Var(&o.roadFactor, "road-factor", geo.DefaultRoadFactor, "multiplier from great-circle to road distance")
	fs.Float64Var(&o.speedKph, "speed", geo.DefaultSpeedKph, "average vehicle speed in km/h")
	fs.Float64Var(&o.maxRouteKm, "max-route-km", planner.DefaultMaxRouteKm, "per-route distance limit in km (0 = none)")
	fs.StringVar(&o.pointsCSV, "points-csv", "", "read points from a CSV file instead of generating them")
	fs.StringVar(&o.pointsGeoJSON, "points-geojson", "", "read points from a GeoJSON file instead of generating them")
	fs.StringVar(&o.citiesFile, "cities", "", "YAML file with extra cities")
	fs.StringVar(&o.out, "out", "", "output file (default routes.<format>; - for stdout)")
	fs.StringVar(&o.format, "format", "csv", "output format: csv, xlsx or geojson")
	fs.IntVar(&o.parallel, "parallel", 1, "zones solved concurrently")
	fs.BoolVar(&o.verbose, "v", false, "verbose logging")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.pointsCSV != "" && o.pointsGeoJSON != "" {
		return o, errors.New("-points-csv and -points-geojson are mutually exclusive")
	}
	return o, nil
}

func parseMix(s string) (map[string]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := map[string]float64{}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("mix entry %q: want Category=weight", part)
		}
		cat, ok := model.ParseCategory(strings.TrimSpace(k))
		if !ok {
			return nil, fmt.Errorf("mix entry %q: unknown category", part)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || w < 0 {
			return nil, fmt.Errorf("mix entry %q: bad weight", part)
		}
		out[string(cat)] = w
	}
	return out, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, "wasteplan", buildinfo.String())
		return nil
	}
	format, err := export.ParseFormat(o.format)
	if err != nil {
		return err
	}
	mix, err := parseMix(o.mix)
	if err != nil {
		return err
	}
	log := logger.NewDevelopment(o.verbose)
	defer func() { _ = log.Sync() }()

	catalog, err := datagen.LoadCatalog(o.citiesFile)
	if err != nil {
		return err
	}
	road := geo.RoadModel{Factor: o.roadFactor, SpeedKph: o.speedKph}
	pl := planner.New(datagen.NewGenerator(catalog), planner.Config{
		Road:        road,
		TimeBudget:  o.budget,
		MaxRouteKm:  o.maxRouteKm,
		Parallelism: o.parallel,
	}, log)

	req := planner.Request{
		City:            o.city,
		PointCount:      o.points,
		CategoryMix:     mix,
		VehicleCount:    o.vehicles,
		VehicleCapacity: o.capacity,
		ZoneCount:       o.zones,
		MaxRouteKm:      o.maxRouteKm,
		Seed:            o.seed,
		Algorithm:       o.algorithm,
		Clusterer:       o.clusterer,
		TimeBudget:      o.budget,
		MaxIterations:   o.iterations,
	}
	var src integrations.PointSource
	switch {
	case o.pointsCSV != "":
		src = csvfile.New(o.pointsCSV, o.city)
	case o.pointsGeoJSON != "":
		src = geojsonfile.New(o.pointsGeoJSON, o.city)
	}
	if src != nil {
		pts, err := src.FetchPoints(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", src.Name(), err)
		}
		log.Info("loaded points", zap.String("source", src.Name()), zap.Int("count", len(pts)))
		req.Points = pts
	}

	res, err := pl.Plan(ctx, req)
	if err != nil {
		var ie *planner.InfeasibleError
		if errors.As(err, &ie) {
			return fmt.Errorf("no feasible plan for zone %d: %s", ie.ZoneID, ie.Reason)
		}
		return err
	}
	printSummary(stdout, res)

	if o.out == "-" {
		return export.Write(stdout, format, res)
	}
	path := o.out
	if path == "" {
		path = "routes." + format.Ext()
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, res); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

func printSummary(w io.Writer, res *model.PlanResult) {
	fmt.Fprintf(w, "%s: %d points, %d zones, status %s\n", res.City, len(res.Points), len(res.Zones), res.Status)
	for i, r := range res.Routes {
		fmt.Fprintf(w, "Vehicle %d: %d locations, %.2f km\n", i+1, r.Stops, r.DistanceKm)
	}
	fmt.Fprintf(w, "Total system distance: %.2f km\n", res.TotalDistanceKm)
}
