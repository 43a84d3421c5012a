package repository

import (
	"context"

	"presenter-video-pipeline/internal/domain/model"
)

// MediaJobRepository is the job ledger port. The ledger is the only
// durable state in the system: any advance call may be handled by a
// different process instance than the previous one.
type MediaJobRepository interface {
	// Save inserts a new job. Returns domain.ErrAlreadyExists on id reuse.
	Save(ctx context.Context, job *model.MediaJob) error

	// FindByID returns domain.ErrNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*model.MediaJob, error)

	// WriteIfPhase persists the full job record only if the stored phase
	// still equals expected. A false return means a concurrent advance
	// already moved the job on; the caller must re-read and not repeat
	// external side effects.
	WriteIfPhase(ctx context.Context, job *model.MediaJob, expected model.Phase) (bool, error)

	// List returns jobs filtered by phase; empty phase means all.
	List(ctx context.Context, phase model.Phase, limit int) ([]*model.MediaJob, error)
}
