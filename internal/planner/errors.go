package planner

import (
	"errors"
	"fmt"

	"wasteroute/internal/cluster"
	"wasteroute/internal/datagen"
	"wasteroute/internal/geo"
	"wasteroute/internal/opt"
)

var (
	ErrInvalidRequest = errors.New("invalid request")

	// Re-exported so callers only need this package to classify failures.
	ErrInvalidCoordinate  = geo.ErrInvalidCoordinate
	ErrInsufficientPoints = cluster.ErrInsufficientPoints
	ErrInfeasible         = opt.ErrInfeasible
)

// InfeasibleError reports the first zone that could not be routed.
type InfeasibleError struct {
	ZoneID int
	Reason string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("zone %d infeasible: %s", e.ZoneID, e.Reason)
}

func (e *InfeasibleError) Is(target error) bool { return target == ErrInfeasible }

// Classify maps an error returned by Plan onto a stable label.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCoordinate):
		return "invalid_coordinate"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrInfeasible):
		return "infeasible"
	case errors.Is(err, datagen.ErrUnknownCity):
		return "unknown_city"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, datagen.ErrInvalidCount),
		errors.Is(err, datagen.ErrInvalidMix),
		errors.Is(err, cluster.ErrInvalidK),
		errors.Is(err, cluster.ErrUnknownClusterer),
		errors.Is(err, opt.ErrUnknownAlgorithm):
		return "invalid_request"
	default:
		return "internal"
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
