package milvus

import (
	"context"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/ache-predictor/pkg/errors"
)

// Field names of the fingerprint collection.
const (
	fieldMoleculeID  = "molecule_id"
	fieldRunID       = "run_id"
	fieldSMILES      = "smiles"
	fieldPIC50       = "predicted_pic50"
	fieldFingerprint = "fingerprint"

	maxMoleculeIDLen = 512
	maxSMILESLen     = 4096
	shardsNum        = 1
)

// fingerprintSchema keys rows by molecule ID, so re-scoring a molecule
// replaces its previous fingerprint.
func fingerprintSchema(name string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "AChE molecule fingerprints",
		Fields: []*entity.Field{
			{Name: fieldMoleculeID, DataType: entity.FieldTypeVarChar, PrimaryKey: true, AutoID: false,
				TypeParams: map[string]string{"max_length": strconv.Itoa(maxMoleculeIDLen)}},
			{Name: fieldRunID, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "64"}},
			{Name: fieldSMILES, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": strconv.Itoa(maxSMILESLen)}},
			{Name: fieldPIC50, DataType: entity.FieldTypeDouble},
			{Name: fieldFingerprint, DataType: entity.FieldTypeBinaryVector, TypeParams: map[string]string{"dim": strconv.Itoa(dim)}},
		},
	}
}

// EnsureCollection creates the fingerprint collection with a BIN_FLAT
// Jaccard index when absent, then loads it for search.
func (x *FingerprintIndex) EnsureCollection(ctx context.Context) error {
	mc := x.client.api()
	if mc == nil {
		return ErrConnectionFailed
	}
	name := x.client.config.Collection

	has, err := mc.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check collection")
	}
	if !has {
		if err := mc.CreateCollection(ctx, fingerprintSchema(name, x.client.config.Dimension), shardsNum); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create collection").WithDetail(name)
		}
		idx, err := entity.NewIndexBinFlat(entity.JACCARD, 128)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to build index definition")
		}
		if err := mc.CreateIndex(ctx, name, fieldFingerprint, idx, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create index").WithDetail(name)
		}
		x.logger.Info("Fingerprint collection created")
	}
	if err := mc.LoadCollection(ctx, name, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to load collection").WithDetail(name)
	}
	return nil
}

//Personal.AI order the ending
