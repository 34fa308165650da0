// Package integrations defines how collection points enter the planner from outside systems.
package integrations

import (
	"context"
	"fmt"

	"wasteroute/internal/model"
)

// PointSource yields waste points from an external system, file drop or feed.
type PointSource interface {
	Name() string
	FetchPoints(ctx context.Context) ([]model.WastePoint, error)
}

// RowError reports a rejected input record.
type RowError struct {
	Source string
	Line   int
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s line %d: %v", e.Source, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
