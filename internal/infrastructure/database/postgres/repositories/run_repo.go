package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/database/postgres"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/common"
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

// resultBatch caps rows per INSERT; five parameters per row.
const resultBatch = 500

type postgresRunRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

var _ prediction.RunRepository = (*postgresRunRepo)(nil)

func NewPostgresRunRepo(conn *postgres.Connection, log logging.Logger) prediction.RunRepository {
	return &postgresRunRepo{conn: conn, log: log}
}

// Save upserts the run row and replaces its result rows in one transaction.
func (r *postgresRunRepo) Save(ctx context.Context, run *prediction.Run) (err error) {
	warnings, err := json.Marshal(nonNil(run.Warnings))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode warnings")
	}

	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prediction_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			model_digest = EXCLUDED.model_digest,
			model_backend = EXCLUDED.model_backend,
			molecule_count = EXCLUDED.molecule_count,
			features_matched = EXCLUDED.features_matched,
			features_total = EXCLUDED.features_total,
			coverage = EXCLUDED.coverage,
			warnings = EXCLUDED.warnings,
			duration_ms = EXCLUDED.duration_ms,
			status = EXCLUDED.status,
			failed_stage = EXCLUDED.failed_stage,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message`,
		run.ID, run.CreatedAt, string(run.Source), run.InputName, run.ModelDigest, run.ModelBackend,
		run.MoleculeCount, run.FeaturesMatched, run.FeaturesTotal, run.Coverage, warnings,
		run.DurationMs, string(run.Status), string(run.FailedStage), run.ErrorCode, run.ErrorMessage,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save run")
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM prediction_results WHERE run_id = $1`, run.ID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to clear results")
	}
	for start := 0; start < len(run.Results); start += resultBatch {
		end := start + resultBatch
		if end > len(run.Results) {
			end = len(run.Results)
		}
		if err = insertResults(ctx, tx, run.ID, start, run.Results[start:end]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit run")
	}
	r.log.Debug("Run saved", logging.String("run_id", run.ID), logging.Int("results", len(run.Results)))
	return nil
}

func insertResults(ctx context.Context, ex queryExecutor, runID string, offset int, rows []molecule.Prediction) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO prediction_results (run_id, position, molecule_id, smiles, predicted_pic50) VALUES `)
	args := make([]interface{}, 0, len(rows)*5)
	for i, p := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, runID, offset+i, p.MoleculeID, p.SMILES, p.PredictedPIC50)
	}
	if _, err := ex.ExecContext(ctx, b.String(), args...); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save results")
	}
	return nil
}

func (r *postgresRunRepo) FindByID(ctx context.Context, id string) (*prediction.Run, error) {
	db := r.conn.DB()
	run, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM prediction_runs WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRunNotFound, errors.DefaultMessageForCode(errors.ErrCodeRunNotFound)).WithDetail(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load run")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT molecule_id, smiles, predicted_pic50
		FROM prediction_results
		WHERE run_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load results")
	}
	defer rows.Close()
	for rows.Next() {
		var p molecule.Prediction
		if err := rows.Scan(&p.MoleculeID, &p.SMILES, &p.PredictedPIC50); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan result")
		}
		run.Results = append(run.Results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read results")
	}
	return run, nil
}

// List returns summaries without result rows, newest first.
func (r *postgresRunRepo) List(ctx context.Context, page common.Pagination) ([]*prediction.Run, int64, error) {
	page = page.Normalize()
	db := r.conn.DB()

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prediction_runs`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count runs")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM prediction_runs
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	var runs []*prediction.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read runs")
	}
	return runs, total, nil
}

//Personal.AI order the ending
