//go:build postgres_integration

package store

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"wasteroute/internal/model"
)

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	run := &model.PlanResult{RunID: uuid.NewString(), City: "Pune", Status: model.StatusSolved, Algorithm: "alns", CreatedAt: time.Now().UTC()}
	if err := p.SaveRun(t.Context(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := p.GetRun(t.Context(), run.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.City != "Pune" || got.Status != model.StatusSolved {
		t.Fatalf("unexpected run: %+v", got)
	}
	if _, _, err := p.ListRuns(t.Context(), "pune", "", 1); err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if _, err := p.GetRun(t.Context(), "missing"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
