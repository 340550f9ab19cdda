// Package store persists analysis run history. Two drivers share one
// interface: an embedded SQLite database for single-machine use and
// PostgreSQL for shared deployments.
package store

import (
	"context"

	"github.com/sells-group/heatsense-cli/internal/model"
)

// RunFilter specifies criteria for listing run history.
type RunFilter struct {
	Status      model.RunStatus `json:"status,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Offset      int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	RecordRun(ctx context.Context, run model.Run) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	DeleteRunsBefore(ctx context.Context, days int) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}
