package prediction

import (
	"context"

	"github.com/turtacn/ache-predictor/pkg/types/common"
)

// RunRepository persists run records and their result rows.
type RunRepository interface {
	// Save inserts a run with its results. Saving an existing ID replaces it.
	Save(ctx context.Context, run *Run) error

	// FindByID loads a run with results.
	// Returns errors.ErrCodeRunNotFound when absent.
	FindByID(ctx context.Context, id string) (*Run, error)

	// List returns run summaries, newest first, and the total count.
	List(ctx context.Context, page common.Pagination) ([]*Run, int64, error)
}

// JobStore keeps job state where both the API and the worker can see it.
type JobStore interface {
	Put(ctx context.Context, job *Job) error

	// Get returns errors.ErrCodeJobNotFound when absent or expired.
	Get(ctx context.Context, id string) (*Job, error)
}

// JobLocker lets one worker at a time run a given job.
type JobLocker interface {
	// TryClaim returns ok=false when another worker holds the job. The
	// caller invokes release when done.
	TryClaim(ctx context.Context, jobID string) (release func(), ok bool, err error)
}

// JobPublisher hands jobs to the worker fleet.
type JobPublisher interface {
	PublishRequest(ctx context.Context, req *JobRequest) error
	PublishCompleted(ctx context.Context, ev *JobCompleted) error
}

// ScoreCache memoizes predictions per model digest and SMILES.
type ScoreCache interface {
	// GetMany returns cached values keyed by SMILES. Misses are absent.
	GetMany(ctx context.Context, digest string, smiles []string) (map[string]float64, error)
	SetMany(ctx context.Context, digest string, values map[string]float64) error
}

// ResultIndex is the full-text index over scored rows.
type ResultIndex interface {
	IndexRun(ctx context.Context, run *Run) error
	Search(ctx context.Context, q SearchQuery) ([]SearchHit, int64, error)
}

// FingerprintIndex stores binary fingerprints for nearest-neighbour lookup.
type FingerprintIndex interface {
	Upsert(ctx context.Context, fps []Fingerprint) error
	SimilarTo(ctx context.Context, moleculeID string, k int) ([]SimilarMolecule, error)
}

// ProvenanceGraph records which runs scored which molecules with which model.
type ProvenanceGraph interface {
	RecordRun(ctx context.Context, run *Run) error
	MoleculeHistory(ctx context.Context, moleculeID string) ([]HistoryEntry, error)
}

// ResultExporter stores result tables in object storage.
type ResultExporter interface {
	// Export uploads the CSV and returns a time-limited download URL.
	Export(ctx context.Context, runID string, csv []byte) (string, error)
}

//Personal.AI order the ending
