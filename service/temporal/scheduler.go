package temporal

import (
	"context"

	"github.com/google/uuid"
)

// Scheduler starts background analysis workflows. The API server depends on
// this interface rather than the concrete Temporal client so handlers can be
// tested without a Temporal server.
type Scheduler interface {
	// StartAnalysis starts the analysis workflow for a queued job and
	// returns the workflow ID.
	StartAnalysis(ctx context.Context, jobID uuid.UUID, wallet string, email *string) (string, error)
}
