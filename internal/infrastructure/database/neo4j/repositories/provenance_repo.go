package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	driver "github.com/turtacn/ache-predictor/internal/infrastructure/database/neo4j"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

// rowsPerStatement bounds the UNWIND list sent in one statement.
const rowsPerStatement = 1000

// historyLimit caps MoleculeHistory.
const historyLimit = 100

var schemaStatements = []string{
	`CREATE CONSTRAINT run_id IF NOT EXISTS FOR (r:Run) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT molecule_id IF NOT EXISTS FOR (m:Molecule) REQUIRE m.molecule_id IS UNIQUE`,
	`CREATE CONSTRAINT model_digest IF NOT EXISTS FOR (m:Model) REQUIRE m.digest IS UNIQUE`,
}

const mergeRun = `
MERGE (r:Run {id: $runId})
SET r.created_at = $createdAt,
    r.source = $source,
    r.status = $status,
    r.molecule_count = $moleculeCount,
    r.coverage = $coverage
WITH r
FOREACH (_ IN CASE WHEN $digest = '' THEN [] ELSE [1] END |
  MERGE (m:Model {digest: $digest})
  SET m.backend = $backend
  MERGE (r)-[:USED]->(m)
)`

const mergeScores = `
MATCH (r:Run {id: $runId})
UNWIND $rows AS row
MERGE (mol:Molecule {molecule_id: row.molecule_id})
SET mol.smiles = row.smiles
MERGE (r)-[s:SCORED {position: row.position}]->(mol)
SET s.predicted_pic50 = row.pic50, s.smiles = row.smiles`

const moleculeHistory = `
MATCH (r:Run)-[s:SCORED]->(:Molecule {molecule_id: $moleculeId})
OPTIONAL MATCH (r)-[:USED]->(model:Model)
RETURN r.id AS run_id, r.created_at AS scored_at, s.smiles AS smiles,
       s.predicted_pic50 AS pic50, coalesce(model.digest, '') AS digest
ORDER BY scored_at DESC
LIMIT $limit`

type neo4jProvenanceRepo struct {
	driver driver.DriverInterface
	log    logging.Logger
}

// NewNeo4jProvenanceRepo records (:Run)-[:SCORED]->(:Molecule) and
// (:Run)-[:USED]->(:Model).
func NewNeo4jProvenanceRepo(d driver.DriverInterface, log logging.Logger) prediction.ProvenanceGraph {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &neo4jProvenanceRepo{driver: d, log: log}
}

// EnsureSchema creates the uniqueness constraints MERGE relies on.
func EnsureSchema(ctx context.Context, d driver.DriverInterface) error {
	_, err := d.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		for _, stmt := range schemaStatements {
			if _, err := tx.Run(ctx, stmt, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *neo4jProvenanceRepo) RecordRun(ctx context.Context, run *prediction.Run) error {
	rows := make([]map[string]any, len(run.Results))
	for i, p := range run.Results {
		rows[i] = map[string]any{
			"position":    i,
			"molecule_id": p.MoleculeID,
			"smiles":      p.SMILES,
			"pic50":       p.PredictedPIC50,
		}
	}

	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		if _, err := tx.Run(ctx, mergeRun, map[string]any{
			"runId":         run.ID,
			"createdAt":     run.CreatedAt,
			"source":        string(run.Source),
			"status":        string(run.Status),
			"moleculeCount": run.MoleculeCount,
			"coverage":      run.Coverage,
			"digest":        run.ModelDigest,
			"backend":       run.ModelBackend,
		}); err != nil {
			return nil, err
		}
		for start := 0; start < len(rows); start += rowsPerStatement {
			end := start + rowsPerStatement
			if end > len(rows) {
				end = len(rows)
			}
			if _, err := tx.Run(ctx, mergeScores, map[string]any{"runId": run.ID, "rows": rows[start:end]}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	r.log.Debug("Provenance recorded", logging.String("run_id", run.ID), logging.Int("molecules", len(rows)))
	return nil
}

func (r *neo4jProvenanceRepo) MoleculeHistory(ctx context.Context, moleculeID string) ([]prediction.HistoryEntry, error) {
	out, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		res, err := tx.Run(ctx, moleculeHistory, map[string]any{"moleculeId": moleculeID, "limit": historyLimit})
		if err != nil {
			return nil, err
		}
		return driver.CollectRecords(ctx, res, historyEntry)
	})
	if err != nil {
		return nil, err
	}
	entries, _ := out.([]prediction.HistoryEntry)
	if entries == nil {
		entries = []prediction.HistoryEntry{}
	}
	return entries, nil
}

func historyEntry(rec *neo4j.Record) (prediction.HistoryEntry, error) {
	var e prediction.HistoryEntry
	var ok bool
	if e.RunID, ok = value[string](rec, "run_id"); !ok {
		return e, fmt.Errorf("history record without run_id")
	}
	e.SMILES, _ = value[string](rec, "smiles")
	e.PredictedPIC50, _ = value[float64](rec, "pic50")
	e.ModelDigest, _ = value[string](rec, "digest")
	if t, ok := value[time.Time](rec, "scored_at"); ok {
		e.ScoredAt = t.UTC()
	}
	return e, nil
}

func value[T any](rec *neo4j.Record, key string) (T, bool) {
	var zero T
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

//Personal.AI order the ending
