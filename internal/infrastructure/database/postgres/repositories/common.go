package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
)

// queryExecutor is satisfied by *sql.DB and *sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// runColumns is the prediction_runs column order scanRun expects.
const runColumns = `id, created_at, source, input_name, model_digest, model_backend,
	molecule_count, features_matched, features_total, coverage, warnings,
	duration_ms, status, failed_stage, error_code, error_message`

func scanRun(s scanner) (*prediction.Run, error) {
	var (
		run                   prediction.Run
		source, status, stage string
		warnings              []byte
	)
	err := s.Scan(
		&run.ID, &run.CreatedAt, &source, &run.InputName, &run.ModelDigest, &run.ModelBackend,
		&run.MoleculeCount, &run.FeaturesMatched, &run.FeaturesTotal, &run.Coverage, &warnings,
		&run.DurationMs, &status, &stage, &run.ErrorCode, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	run.Source = prediction.Source(source)
	run.Status = prediction.RunStatus(status)
	run.FailedStage = prediction.Stage(stage)
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &run.Warnings); err != nil {
			return nil, err
		}
	}
	if len(run.Warnings) == 0 {
		run.Warnings = nil
	}
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

//Personal.AI order the ending
