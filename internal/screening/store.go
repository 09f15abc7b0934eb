package screening

import (
	"context"
	"time"
)

// Store persists jobs, resumes and evaluations. Every read is scoped by owner
// and reports foreign records as ErrNotFound.
type Store interface {
	FindJob(ctx context.Context, ownerID, id string) (*Job, error)
	FindResume(ctx context.Context, ownerID, id string) (*Resume, error)

	// CreateEvaluation inserts e. It returns ErrDuplicate when an evaluation
	// with the same fingerprint already exists.
	CreateEvaluation(ctx context.Context, e *Evaluation) error
	// DeleteEvaluation removes a record whose creation could not be audited.
	DeleteEvaluation(ctx context.Context, ownerID, id string) error
	FindEvaluation(ctx context.Context, ownerID, id string) (*Evaluation, error)
	FindEvaluationByFingerprint(ctx context.Context, fp Fingerprint) (*Evaluation, error)
	// ListEvaluations returns newest first.
	ListEvaluations(ctx context.Context, ownerID string, filter ListFilter) ([]*Evaluation, error)
	// UpdateStatusAndNotes applies patch and returns the record as it was
	// before and after the write.
	UpdateStatusAndNotes(ctx context.Context, ownerID, id string, patch Patch, at time.Time) (before, after *Evaluation, err error)
}

// Catalog stores the inputs of an evaluation.
type Catalog interface {
	CreateJob(ctx context.Context, job *Job) error
	CreateResume(ctx context.Context, resume *Resume) error
	// ListJobs and ListResumes return newest first. Resumes come without text.
	ListJobs(ctx context.Context, ownerID string) ([]*Job, error)
	ListResumes(ctx context.Context, ownerID string) ([]*Resume, error)
}
