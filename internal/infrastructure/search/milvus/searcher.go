package milvus

import (
	"context"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// FingerprintIndex stores binary fingerprints in Milvus and answers
// nearest-neighbour queries by Jaccard distance. It implements
// prediction.FingerprintIndex.
type FingerprintIndex struct {
	client *Client
	logger logging.Logger
}

var _ prediction.FingerprintIndex = (*FingerprintIndex)(nil)

func NewFingerprintIndex(c *Client, logger logging.Logger) *FingerprintIndex {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FingerprintIndex{client: c, logger: logger.Named("fingerprints")}
}

// Upsert writes fps keyed by molecule ID. Rows whose vector width does not
// match the collection dimension are skipped with a warning; within one call
// the last row for a molecule wins.
func (x *FingerprintIndex) Upsert(ctx context.Context, fps []prediction.Fingerprint) error {
	mc := x.client.api()
	if mc == nil {
		return ErrConnectionFailed
	}
	dim := x.client.config.Dimension
	width := dim / 8

	pos := make(map[string]int, len(fps))
	var (
		ids, runs, smiles []string
		pic50             []float64
		vecs              [][]byte
	)
	skipped := 0
	for _, fp := range fps {
		if len(fp.Bits) != width || fp.MoleculeID == "" || len(fp.MoleculeID) > maxMoleculeIDLen || len(fp.SMILES) > maxSMILESLen {
			skipped++
			continue
		}
		if i, ok := pos[fp.MoleculeID]; ok {
			runs[i], smiles[i], pic50[i], vecs[i] = fp.RunID, fp.SMILES, fp.PredictedPIC50, fp.Bits
			continue
		}
		pos[fp.MoleculeID] = len(ids)
		ids = append(ids, fp.MoleculeID)
		runs = append(runs, fp.RunID)
		smiles = append(smiles, fp.SMILES)
		pic50 = append(pic50, fp.PredictedPIC50)
		vecs = append(vecs, fp.Bits)
	}
	if skipped > 0 {
		x.logger.Warn("Fingerprints skipped", logging.Int("skipped", skipped), logging.Int("expected_bytes", width))
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := mc.Upsert(ctx, x.client.config.Collection, "",
		entity.NewColumnVarChar(fieldMoleculeID, ids),
		entity.NewColumnVarChar(fieldRunID, runs),
		entity.NewColumnVarChar(fieldSMILES, smiles),
		entity.NewColumnDouble(fieldPIC50, pic50),
		entity.NewColumnBinaryVector(fieldFingerprint, dim, vecs),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to upsert fingerprints")
	}
	x.logger.Debug("Fingerprints upserted", logging.Int("count", len(ids)))
	return nil
}

// SimilarTo returns up to k molecules closest to moleculeID, nearest first.
// The molecule itself is excluded.
func (x *FingerprintIndex) SimilarTo(ctx context.Context, moleculeID string, k int) ([]prediction.SimilarMolecule, error) {
	mc := x.client.api()
	if mc == nil {
		return nil, ErrConnectionFailed
	}
	if k <= 0 {
		k = x.client.config.DefaultTopK
	}
	coll := x.client.config.Collection
	key := strconv.Quote(moleculeID)

	rs, err := mc.Query(ctx, coll, nil, fieldMoleculeID+" == "+key, []string{fieldFingerprint})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch fingerprint")
	}
	var sample []byte
	if col, ok := column(rs, fieldFingerprint).(*entity.ColumnBinaryVector); ok && col.Len() > 0 {
		sample = col.Data()[0]
	}
	if sample == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "no fingerprint stored for molecule").WithDetail(moleculeID)
	}

	sp, err := entity.NewIndexBinFlatSearchParam(16)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build search params")
	}
	results, err := mc.Search(ctx, coll, nil, fieldMoleculeID+" != "+key,
		[]string{fieldRunID, fieldSMILES, fieldPIC50},
		[]entity.Vector{entity.BinaryVector(sample)}, fieldFingerprint, entity.JACCARD, k, sp)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "similarity search failed")
	}
	return toSimilar(results), nil
}

func toSimilar(results []client.SearchResult) []prediction.SimilarMolecule {
	out := []prediction.SimilarMolecule{}
	if len(results) == 0 {
		return out
	}
	r := results[0]
	ids, ok := r.IDs.(*entity.ColumnVarChar)
	if !ok {
		return out
	}
	runs, _ := column(r.Fields, fieldRunID).(*entity.ColumnVarChar)
	smiles, _ := column(r.Fields, fieldSMILES).(*entity.ColumnVarChar)
	pic50, _ := column(r.Fields, fieldPIC50).(*entity.ColumnDouble)

	for i, id := range ids.Data() {
		m := prediction.SimilarMolecule{MoleculeID: id}
		if i < len(r.Scores) {
			m.Distance = r.Scores[i]
		}
		if runs != nil && i < runs.Len() {
			m.RunID = runs.Data()[i]
		}
		if smiles != nil && i < smiles.Len() {
			m.SMILES = smiles.Data()[i]
		}
		if pic50 != nil && i < pic50.Len() {
			m.PredictedPIC50 = pic50.Data()[i]
		}
		out = append(out, m)
	}
	return out
}

func column(cols []entity.Column, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

//Personal.AI order the ending
