// Package prediction holds the domain model of a bioactivity prediction run:
// the run record with its scored rows, asynchronous jobs, and the ports that
// persistence, search and messaging adapters implement.
package prediction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageStage    Stage = "stage"
	StageDescribe Stage = "describe"
	StageLoad     Stage = "load"
	StageAlign    Stage = "align"
	StagePredict  Stage = "predict"
	StageEmit     Stage = "emit"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageIngest, StageStage, StageDescribe, StageLoad, StageAlign, StagePredict, StageEmit}

// Source identifies what started a run.
type Source string

const (
	SourceAPI Source = "api"
	SourceCLI Source = "cli"
	SourceJob Source = "job"
	SourceWeb Source = "web"
)

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one execution of the pipeline over an uploaded file.
type Run struct {
	ID              string                `json:"id"`
	CreatedAt       time.Time             `json:"created_at"`
	Source          Source                `json:"source"`
	InputName       string                `json:"input_name,omitempty"`
	ModelDigest     string                `json:"model_digest,omitempty"`
	ModelBackend    string                `json:"model_backend,omitempty"`
	MoleculeCount   int                   `json:"molecule_count"`
	FeaturesMatched int                   `json:"features_matched"`
	FeaturesTotal   int                   `json:"features_total"`
	Coverage        float64               `json:"coverage"`
	Warnings        []string              `json:"warnings,omitempty"`
	DurationMs      int64                 `json:"duration_ms"`
	Status          RunStatus             `json:"status"`
	FailedStage     Stage                 `json:"failed_stage,omitempty"`
	ErrorCode       string                `json:"error_code,omitempty"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	Results         []molecule.Prediction `json:"results,omitempty"`
}

// NewRun starts a run record.
func NewRun(source Source, inputName string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Source:    source,
		InputName: inputName,
	}
}

// MatchInfo renders the feature match summary shown next to the results.
func (r *Run) MatchInfo() string {
	return fmt.Sprintf("%d of %d features matched from training descriptors.", r.FeaturesMatched, r.FeaturesTotal)
}

// Succeed records the scored rows.
func (r *Run) Succeed(results []molecule.Prediction, elapsed time.Duration) {
	r.Status = RunSucceeded
	r.Results = results
	r.DurationMs = elapsed.Milliseconds()
}

// Fail records the stage and error that stopped the run.
func (r *Run) Fail(stage Stage, code, message string, elapsed time.Duration) {
	r.Status = RunFailed
	r.FailedStage = stage
	r.ErrorCode = code
	r.ErrorMessage = message
	r.DurationMs = elapsed.Milliseconds()
}

// Summary returns a copy without the result rows.
func (r *Run) Summary() *Run {
	c := *r
	c.Results = nil
	return &c
}

// JobStatus is the lifecycle state of an asynchronous job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job tracks an upload submitted for background scoring.
type Job struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	InputName     string    `json:"input_name,omitempty"`
	MoleculeCount int       `json:"molecule_count"`
	RunID         string    `json:"run_id,omitempty"`
	DownloadURL   string    `json:"download_url,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	Error         string    `json:"error,omitempty"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewJob creates a pending job.
func NewJob(inputName string, molecules int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:            uuid.New().String(),
		Status:        JobPending,
		InputName:     inputName,
		MoleculeCount: molecules,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Transition moves the job to next. Terminal jobs cannot move.
func (j *Job) Transition(next JobStatus) error {
	if j.Status.Terminal() {
		return fmt.Errorf("job %s already %s", j.ID, j.Status)
	}
	j.Status = next
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// JobRequest is the queued payload of a job. The raw upload travels inline.
type JobRequest struct {
	JobID      string    `json:"job_id"`
	InputName  string    `json:"input_name"`
	Payload    []byte    `json:"payload"`
	RequestID  string    `json:"request_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobCompleted is published after a job reaches a terminal state.
type JobCompleted struct {
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	RunID       string    `json:"run_id,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Fingerprint is the binary feature vector stored for similarity lookup.
type Fingerprint struct {
	MoleculeID     string  `json:"molecule_id"`
	SMILES         string  `json:"smiles"`
	RunID          string  `json:"run_id"`
	Bits           []byte  `json:"bits"`
	PredictedPIC50 float64 `json:"predicted_pic50"`
}

// SimilarMolecule is one neighbour returned by a fingerprint search.
type SimilarMolecule struct {
	MoleculeID     string  `json:"molecule_id"`
	SMILES         string  `json:"smiles"`
	RunID          string  `json:"run_id"`
	PredictedPIC50 float64 `json:"predicted_pic50"`
	Distance       float32 `json:"distance"`
}

// SearchQuery filters indexed results.
type SearchQuery struct {
	Text     string   `json:"q,omitempty"`
	MinPIC50 *float64 `json:"min,omitempty"`
	MaxPIC50 *float64 `json:"max,omitempty"`
	From     int      `json:"from"`
	Size     int      `json:"size"`
}

// SearchHit is one indexed result row.
type SearchHit struct {
	RunID          string    `json:"run_id"`
	MoleculeID     string    `json:"molecule_id"`
	SMILES         string    `json:"smiles"`
	PredictedPIC50 float64   `json:"predicted_pic50"`
	ModelDigest    string    `json:"model_digest,omitempty"`
	ScoredAt       time.Time `json:"scored_at"`
	Score          float64   `json:"score"`
}

// HistoryEntry is one run that scored a given molecule.
type HistoryEntry struct {
	RunID          string    `json:"run_id"`
	ScoredAt       time.Time `json:"scored_at"`
	SMILES         string    `json:"smiles"`
	PredictedPIC50 float64   `json:"predicted_pic50"`
	ModelDigest    string    `json:"model_digest,omitempty"`
}

//Personal.AI order the ending
