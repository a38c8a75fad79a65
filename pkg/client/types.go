package client

import (
	"time"

	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

// Run is a prediction run as returned by the API.
type Run struct {
	ID              string                `json:"id"`
	CreatedAt       time.Time             `json:"created_at"`
	Source          string                `json:"source"`
	InputName       string                `json:"input_name,omitempty"`
	ModelDigest     string                `json:"model_digest,omitempty"`
	ModelBackend    string                `json:"model_backend,omitempty"`
	MoleculeCount   int                   `json:"molecule_count"`
	FeaturesMatched int                   `json:"features_matched"`
	FeaturesTotal   int                   `json:"features_total"`
	Coverage        float64               `json:"coverage"`
	Warnings        []string              `json:"warnings,omitempty"`
	DurationMs      int64                 `json:"duration_ms"`
	Status          string                `json:"status"`
	FailedStage     string                `json:"failed_stage,omitempty"`
	ErrorCode       string                `json:"error_code,omitempty"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	Results         []molecule.Prediction `json:"results,omitempty"`
}

// PredictResult is the answer to a synchronous upload.
type PredictResult struct {
	Run               *Run                      `json:"run"`
	Molecules         []molecule.Molecule       `json:"molecules"`
	DescriptorPreview *molecule.DescriptorTable `json:"descriptor_preview,omitempty"`
	Info              string                    `json:"info"`
	DownloadURL       string                    `json:"download_url,omitempty"`
	CacheHits         int                       `json:"cache_hits"`
	CSVPath           string                    `json:"csv_path"`
}

// Job states.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Job is an asynchronous upload.
type Job struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
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

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

// RunList is one page of run summaries.
type RunList struct {
	Items    []*Run `json:"items"`
	Total    int64  `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

//Personal.AI order the ending
