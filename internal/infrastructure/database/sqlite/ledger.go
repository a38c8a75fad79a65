// Package sqlite keeps a local run ledger for achectl, so runs scored on a
// workstation can be listed later without a server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/common"
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL,
	source           TEXT NOT NULL,
	input_name       TEXT NOT NULL DEFAULT '',
	model_digest     TEXT NOT NULL DEFAULT '',
	model_backend    TEXT NOT NULL DEFAULT '',
	molecule_count   INTEGER NOT NULL DEFAULT 0,
	features_matched INTEGER NOT NULL DEFAULT 0,
	features_total   INTEGER NOT NULL DEFAULT 0,
	coverage         REAL NOT NULL DEFAULT 0,
	warnings_json    TEXT NOT NULL DEFAULT '[]',
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	failed_stage     TEXT NOT NULL DEFAULT '',
	error_code       TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS results (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	molecule_id     TEXT NOT NULL,
	smiles          TEXT NOT NULL,
	predicted_pic50 REAL NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

const runColumns = `id, created_at, source, input_name, model_digest, model_backend,
	molecule_count, features_matched, features_total, coverage, warnings_json,
	duration_ms, status, failed_stage, error_code, error_message`

// Ledger is a prediction.RunRepository over a single SQLite file.
type Ledger struct {
	db     *sql.DB
	path   string
	logger logging.Logger
}

var _ prediction.RunRepository = (*Ledger)(nil)

// Open creates the file and schema if needed. A leading "~" expands to the
// user's home directory; ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string, log logging.Logger) (*Ledger, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	dsn := resolved
	if resolved != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create ledger directory")
		}
		dsn = "file:" + resolved + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open ledger")
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to initialize ledger schema")
	}
	log.Debug("Run ledger opened", logging.String("path", resolved))
	return &Ledger{db: db, path: resolved, logger: log}, nil
}

// ExpandPath resolves a leading "~/".
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeInternal, "cannot resolve home directory")
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) Save(ctx context.Context, run *prediction.Run) (err error) {
	warnings := run.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	wj, err := json.Marshal(warnings)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode warnings")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().UnixNano(), string(run.Source), run.InputName, run.ModelDigest, run.ModelBackend,
		run.MoleculeCount, run.FeaturesMatched, run.FeaturesTotal, run.Coverage, string(wj),
		run.DurationMs, string(run.Status), string(run.FailedStage), run.ErrorCode, run.ErrorMessage,
	); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save run")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM results WHERE run_id = ?`, run.ID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to clear results")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (run_id, position, molecule_id, smiles, predicted_pic50)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to prepare result insert")
	}
	defer stmt.Close()
	for i, p := range run.Results {
		if _, err = stmt.ExecContext(ctx, run.ID, i, p.MoleculeID, p.SMILES, p.PredictedPIC50); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save result")
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit run")
	}
	return nil
}

func (l *Ledger) FindByID(ctx context.Context, id string) (*prediction.Run, error) {
	run, err := scanRun(l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRunNotFound, errors.DefaultMessageForCode(errors.ErrCodeRunNotFound)).WithDetail(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load run")
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT molecule_id, smiles, predicted_pic50 FROM results
		WHERE run_id = ? ORDER BY position`, id)
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

func (l *Ledger) List(ctx context.Context, page common.Pagination) ([]*prediction.Run, int64, error) {
	page = page.Normalize()

	var total int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count runs")
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, page.PageSize, page.Offset())
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

// Prune deletes runs older than cutoff and returns how many went.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to prune ledger")
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		l.logger.Info("Ledger pruned", logging.Int64("runs", n))
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*prediction.Run, error) {
	var (
		run                   prediction.Run
		created               int64
		source, status, stage string
		wj                    string
	)
	if err := s.Scan(
		&run.ID, &created, &source, &run.InputName, &run.ModelDigest, &run.ModelBackend,
		&run.MoleculeCount, &run.FeaturesMatched, &run.FeaturesTotal, &run.Coverage, &wj,
		&run.DurationMs, &status, &stage, &run.ErrorCode, &run.ErrorMessage,
	); err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(0, created).UTC()
	run.Source = prediction.Source(source)
	run.Status = prediction.RunStatus(status)
	run.FailedStage = prediction.Stage(stage)
	if wj != "" {
		if err := json.Unmarshal([]byte(wj), &run.Warnings); err != nil {
			return nil, err
		}
	}
	if len(run.Warnings) == 0 {
		run.Warnings = nil
	}
	return &run, nil
}

//Personal.AI order the ending
