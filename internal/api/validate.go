package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"wasteroute/internal/model"
	"wasteroute/internal/opt"
	"wasteroute/internal/planner"
)

// requestValidator wraps struct-tag validation with English messages.
type requestValidator struct {
	v     *validator.Validate
	trans ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON names rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(v, trans)
	return &requestValidator{v: v, trans: trans}
}

// Struct validates s and returns one message per failed field.
func (rv *requestValidator) Struct(s any) []string {
	err := rv.v.Struct(s)
	if err == nil {
		return nil
	}
	return translateError(err, rv.trans)
}

func translateError(err error, trans ut.Translator) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, e.Translate(trans))
	}
	return out
}

// validateOptimizeRequest covers the cross-field rules struct tags cannot express.
func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.Algorithm != "" && req.Algorithm != opt.AlgoGreedy && req.Algorithm != opt.AlgoALNS {
		return fmt.Errorf("invalid algorithm: %s", req.Algorithm)
	}
	if req.Clusterer != "" && req.Clusterer != "kmeans" && req.Clusterer != "sweep" {
		return fmt.Errorf("invalid clusterer: %s", req.Clusterer)
	}
	if len(req.Points) == 0 && req.PointCount == 0 {
		return fmt.Errorf("either points or pointCount is required")
	}
	if req.ZoneCount > req.VehicleCount {
		return fmt.Errorf("zoneCount must not exceed vehicleCount")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if req.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0")
	}
	if req.Cooling != 0 && (req.Cooling <= 0 || req.Cooling >= 1) {
		return fmt.Errorf("cooling must be in (0,1)")
	}
	if len(req.RemovalWeights) > 0 && len(req.RemovalWeights) != 2 {
		return fmt.Errorf("removalWeights must have length 2")
	}
	if len(req.InsertionWeights) > 0 && len(req.InsertionWeights) != 2 {
		return fmt.Errorf("insertionWeights must have length 2")
	}
	for k, v := range req.CategoryMix {
		if _, ok := model.ParseCategory(k); !ok {
			return fmt.Errorf("unknown category in categoryMix: %s", k)
		}
		if v < 0 {
			return fmt.Errorf("categoryMix weight for %s must be >= 0", k)
		}
	}
	return nil
}

func toPlannerRequest(req model.OptimizeRequest) (planner.Request, error) {
	out := planner.Request{
		RunID:            req.RunID,
		City:             req.City,
		PointCount:       req.PointCount,
		CategoryMix:      req.CategoryMix,
		Depot:            req.Depot,
		VehicleCount:     req.VehicleCount,
		VehicleCapacity:  req.VehicleCapacity,
		ZoneCount:        req.ZoneCount,
		MaxRouteKm:       req.MaxRouteKm,
		Seed:             req.Seed,
		Algorithm:        req.Algorithm,
		Clusterer:        req.Clusterer,
		TimeBudget:       time.Duration(req.TimeBudgetMs) * time.Millisecond,
		MaxIterations:    req.MaxIterations,
		InitialTemp:      req.InitTemp,
		Cooling:          req.Cooling,
		RemovalWeights:   req.RemovalWeights,
		InsertionWeights: req.InsertionWeights,
	}
	for _, p := range req.Points {
		cat := model.CategoryResidential
		if p.Category != "" {
			c, ok := model.ParseCategory(p.Category)
			if !ok {
				return out, fmt.Errorf("point %s: unknown category %q", p.ID, p.Category)
			}
			cat = c
		}
		out.Points = append(out.Points, model.WastePoint{
			ID:         p.ID,
			City:       req.City,
			Location:   model.GeoPoint{Lat: p.Lat, Lng: p.Lng},
			Category:   cat,
			VolumeTons: p.VolumeTons,
		})
	}
	return out, nil
}
