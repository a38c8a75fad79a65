package prediction

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/common"
)

// fakePaDEL reads the staged molecule file and writes one descriptor row per
// molecule with the configured columns. Column values are 1 on odd rows.
type fakePaDEL struct {
	columns []string
	blank   bool // leave the first descriptor cell of every row empty
	err     error
	calls   atomic.Int32
	sawDir  string
}

func (f *fakePaDEL) Generate(_ context.Context, molDir, outFile string) error {
	f.calls.Add(1)
	f.sawDir = filepath.Dir(outFile)
	if f.err != nil {
		return f.err
	}
	in, err := os.Open(filepath.Join(molDir, "molecule.smi"))
	if err != nil {
		return err
	}
	defer in.Close()

	var sb strings.Builder
	sb.WriteString(strings.Join(append([]string{"Name"}, f.columns...), ","))
	sb.WriteString("\n")
	sc := bufio.NewScanner(in)
	row := 0
	for sc.Scan() {
		id := strings.Split(sc.Text(), "\t")[1]
		cells := []string{"AUTOGEN_" + id}
		for i := range f.columns {
			if f.blank && i == 0 {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, fmt.Sprint(row%2))
		}
		sb.WriteString(strings.Join(cells, ","))
		sb.WriteString("\n")
		row++
	}
	return os.WriteFile(outFile, []byte(sb.String()), 0o644)
}

type MockScoreCache struct {
	mock.Mock
}

func (m *MockScoreCache) GetMany(ctx context.Context, digest string, smiles []string) (map[string]float64, error) {
	args := m.Called(ctx, digest, smiles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockScoreCache) SetMany(ctx context.Context, digest string, values map[string]float64) error {
	args := m.Called(ctx, digest, values)
	return args.Error(0)
}

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Export(ctx context.Context, runID string, csv []byte) (string, error) {
	args := m.Called(ctx, runID, csv)
	return args.String(0), args.Error(1)
}

type fixture struct {
	scratch   string
	artifacts string
	padel     *fakePaDEL
	runs      *prediction.MemoryRunRepository
	store     *bioactivity.ArtifactStore
	calls     atomic.Int32
	rows      atomic.Int32
	predictFn func(matrix [][]float64) ([]float64, error)
}

// newFixture builds a service over a real artifact store whose model sums
// each aligned row plus the row count so far.
func newFixture(t *testing.T, model, schema bool) *fixture {
	t.Helper()
	f := &fixture{
		scratch:   t.TempDir(),
		artifacts: t.TempDir(),
		padel:     &fakePaDEL{columns: []string{"PubchemFP0", "PubchemFP1", "PubchemFP2"}},
		runs:      prediction.NewMemoryRunRepository(0),
	}
	if model {
		require.NoError(t, os.WriteFile(filepath.Join(f.artifacts, config.DefaultModelFile), []byte("model"), 0o644))
	}
	if schema {
		require.NoError(t, os.WriteFile(filepath.Join(f.artifacts, config.DefaultSchemaFile), []byte("PubchemFP0,PubchemFP1,PubchemFP2\n"), 0o644))
	}
	f.predictFn = func(matrix [][]float64) ([]float64, error) {
		out := make([]float64, len(matrix))
		for i, row := range matrix {
			out[i] = 5
			for _, v := range row {
				out[i] += v
			}
		}
		return out, nil
	}
	cfg := f.pipelineConfig()
	store, err := bioactivity.NewArtifactStore(cfg, logging.NewNopLogger(), bioactivity.WithOpenFunc(
		func(context.Context, string, *bioactivity.Schema) (bioactivity.Model, error) {
			return &bioactivity.FuncModel{Name: "test", Fn: func(_ context.Context, m [][]float64) ([]float64, error) {
				f.calls.Add(1)
				f.rows.Add(int32(len(m)))
				return f.predictFn(m)
			}}, nil
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f.store = store
	return f
}

func (f *fixture) pipelineConfig() config.PipelineConfig {
	cfg := config.NewDefaultConfig().Pipeline
	cfg.ScratchDir = f.scratch
	cfg.Artifacts.Dir = f.artifacts
	return cfg
}

func (f *fixture) service(t *testing.T, mutate func(*Deps)) Service {
	t.Helper()
	d := Deps{
		Config:      f.pipelineConfig(),
		Descriptors: f.padel,
		Artifacts:   f.store,
		Runs:        f.runs,
	}
	if mutate != nil {
		mutate(&d)
	}
	svc, err := NewService(d)
	require.NoError(t, err)
	return svc
}

func (f *fixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "session directory left behind")
}

func predictString(svc Service, in string) (*PredictOutput, error) {
	return svc.Predict(context.Background(), &PredictInput{Name: "input.txt", Data: strings.NewReader(in), Source: prediction.SourceCLI})
}

func TestPredict_TwoMolecules(t *testing.T) {
	f := newFixture(t, true, true)
	svc := f.service(t, nil)

	out, err := predictString(svc, "CCO\tmol1\nCCN\tmol2")
	require.NoError(t, err)

	require.Len(t, out.Run.Results, 2)
	assert.Equal(t, "mol1", out.Run.Results[0].MoleculeID)
	assert.Equal(t, "CCO", out.Run.Results[0].SMILES)
	assert.Equal(t, 5.0, out.Run.Results[0].PredictedPIC50)
	assert.Equal(t, "mol2", out.Run.Results[1].MoleculeID)
	assert.Equal(t, 8.0, out.Run.Results[1].PredictedPIC50)

	assert.Equal(t, "Molecule_ID,SMILES,Predicted_pIC50\nmol1,CCO,5\nmol2,CCN,8\n", string(out.CSV))
	assert.Equal(t, "3 of 3 features matched from training descriptors.", out.Info)
	assert.Equal(t, 2, out.DescriptorPreview.Len())
	assert.Len(t, out.Molecules, 2)
	assert.Equal(t, prediction.RunSucceeded, out.Run.Status)
	assert.Len(t, out.Run.ModelDigest, 64)
	assert.Empty(t, out.Run.Warnings)

	stored, err := svc.GetRun(context.Background(), out.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, prediction.SourceCLI, stored.Source)

	csv, err := svc.RenderCSV(context.Background(), out.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, out.CSV, csv)

	assert.NotEmpty(t, f.padel.sawDir)
	assert.NoDirExists(t, f.padel.sawDir)
	f.assertScratchEmpty(t)
}

func TestPredict_MissingArtifacts(t *testing.T) {
	tests := []struct {
		name      string
		model     bool
		schema    bool
		wantCodes []apperrors.ErrorCode
		wantDiags int
	}{
		{"model missing", false, true, []apperrors.ErrorCode{apperrors.ErrCodeModelMissing}, 1},
		{"schema missing", true, false, []apperrors.ErrorCode{apperrors.ErrCodeSchemaMissing}, 1},
		{"both missing", false, false, []apperrors.ErrorCode{apperrors.ErrCodeModelMissing, apperrors.ErrCodeSchemaMissing}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.model, tt.schema)
			svc := f.service(t, nil)

			out, err := predictString(svc, "CCO\tmol1\nCCN\tmol2\n")
			require.Error(t, err)
			assert.Nil(t, out)

			se, ok := AsStageError(err)
			require.True(t, ok)
			assert.Equal(t, prediction.StageLoad, se.Stage)
			assert.Len(t, se.Diagnostics(), tt.wantDiags)
			for _, code := range tt.wantCodes {
				assert.True(t, apperrors.IsCode(err, code), "want %s", code)
			}
			assert.Equal(t, 503, se.HTTPStatus())

			// Describe ran; prediction never did.
			assert.EqualValues(t, 1, f.padel.calls.Load())
			assert.EqualValues(t, 0, f.calls.Load())
			f.assertScratchEmpty(t)

			runs, total, err := svc.ListRuns(context.Background(), common.Pagination{Page: 1, PageSize: 10})
			require.NoError(t, err)
			require.EqualValues(t, 1, total)
			assert.Equal(t, prediction.RunFailed, runs[0].Status)
			assert.Equal(t, prediction.StageLoad, runs[0].FailedStage)

			_, err = svc.RenderCSV(context.Background(), runs[0].ID)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
		})
	}
}

func TestPredict_ModelMissingMessage(t *testing.T) {
	f := newFixture(t, false, true)
	_, err := predictString(f.service(t, nil), "CCO\tmol1\n")
	se, ok := AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, []string{
		"Trained model file not found. Please place 'acetylcholinesterase_model.pkl' in the app directory.",
	}, se.Diagnostics())
}

func TestPredict_IngestErrors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":       "",
		"blank lines": "\n\n  \n",
		"one field":   "CCO\n",
		"three":       "CCO\tmol1\textra\n",
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, true, true)
			_, err := predictString(f.service(t, nil), in)
			se, ok := AsStageError(err)
			require.True(t, ok)
			assert.Equal(t, prediction.StageIngest, se.Stage)
			assert.Equal(t, apperrors.ErrCodeIngest, se.Code())
			assert.Equal(t, 400, se.HTTPStatus())
			assert.EqualValues(t, 0, f.padel.calls.Load())
		})
	}
}

func TestPredict_DescribeFailureCleansUp(t *testing.T) {
	f := newFixture(t, true, true)
	f.padel.err = errors.New("exit status 1")

	_, err := predictString(f.service(t, nil), "CCO\tmol1\n")
	se, ok := AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, prediction.StageDescribe, se.Stage)
	assert.Equal(t, apperrors.ErrCodeDescribe, se.Code())
	assert.Contains(t, se.Message(), "exit status 1")
	f.assertScratchEmpty(t)
}

func TestPredict_Coverage(t *testing.T) {
	t.Run("warn", func(t *testing.T) {
		f := newFixture(t, true, true)
		f.padel.columns = []string{"PubchemFP0", "Unrelated"}
		svc := f.service(t, func(d *Deps) {
			d.Config.Coverage = config.CoverageConfig{MinRatio: 0.5, Mode: config.CoverageWarn}
		})

		out, err := predictString(svc, "CCO\tmol1\n")
		require.NoError(t, err)
		assert.Equal(t, 1, out.Run.FeaturesMatched)
		assert.Equal(t, 3, out.Run.FeaturesTotal)
		require.Len(t, out.Run.Warnings, 1)
		assert.Contains(t, out.Run.Warnings[0], "1 of 3 features matched")
	})

	t.Run("fail", func(t *testing.T) {
		f := newFixture(t, true, true)
		f.padel.columns = []string{"PubchemFP0"}
		svc := f.service(t, nil)
		svc.SetCoverage(config.CoverageConfig{MinRatio: 0.9, Mode: config.CoverageFail})

		_, err := predictString(svc, "CCO\tmol1\n")
		se, ok := AsStageError(err)
		require.True(t, ok)
		assert.Equal(t, prediction.StageAlign, se.Stage)
		assert.Equal(t, apperrors.ErrCodeAlign, se.Code())
		assert.Equal(t, 422, se.HTTPStatus())
		assert.EqualValues(t, 0, f.calls.Load())
	})
}

func TestPredict_EmptyDescriptorCells(t *testing.T) {
	t.Run("warn fills with zero", func(t *testing.T) {
		f := newFixture(t, true, true)
		f.padel.columns = []string{"PubchemFP0", "PubchemFP1", "PubchemFP2"}
		f.padel.blank = true
		svc := f.service(t, nil)

		out, err := predictString(svc, "CCO\tmol1\nCCN\tmol2\n")
		require.NoError(t, err)
		require.Len(t, out.Run.Results, 2)
		require.Len(t, out.Run.Warnings, 1)
		assert.Contains(t, out.Run.Warnings[0], "filled with 0")
	})

	t.Run("fail rejects", func(t *testing.T) {
		f := newFixture(t, true, true)
		f.padel.columns = []string{"PubchemFP0", "PubchemFP1", "PubchemFP2"}
		f.padel.blank = true
		svc := f.service(t, nil)
		svc.SetCoverage(config.CoverageConfig{MinRatio: 0.5, Mode: config.CoverageFail})

		_, err := predictString(svc, "CCO\tmol1\nCCN\tmol2\n")
		se, ok := AsStageError(err)
		require.True(t, ok)
		assert.Equal(t, prediction.StageAlign, se.Stage)
		assert.Equal(t, apperrors.ErrCodeAlign, se.Code())
		assert.Contains(t, se.Message(), "2 cells could not be computed")
		assert.EqualValues(t, 0, f.calls.Load())
		f.assertScratchEmpty(t)
	})
}

func TestPredict_ModelErrors(t *testing.T) {
	f := newFixture(t, true, true)
	svc := f.service(t, nil)

	f.predictFn = func(m [][]float64) ([]float64, error) { return []float64{1}, nil }
	_, err := predictString(svc, "CCO\tmol1\nCCN\tmol2\n")
	se, ok := AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, prediction.StagePredict, se.Stage)
	assert.Equal(t, apperrors.ErrCodePredict, se.Code())

	f.predictFn = func(m [][]float64) ([]float64, error) { return nil, errors.New("backend down") }
	_, err = predictString(svc, "CCO\tmol1\n")
	se, ok = AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, prediction.StagePredict, se.Stage)
	assert.Equal(t, 502, se.HTTPStatus())
}

func TestPredict_CachePartialHit(t *testing.T) {
	f := newFixture(t, true, true)
	cache := new(MockScoreCache)
	cache.On("GetMany", mock.Anything, mock.AnythingOfType("string"), []string{"CCO", "CCN", "CCC"}).
		Return(map[string]float64{"CCN": 7.25}, nil)
	cache.On("SetMany", mock.Anything, mock.AnythingOfType("string"), map[string]float64{"CCO": 5, "CCC": 5}).
		Return(nil)
	svc := f.service(t, func(d *Deps) { d.Cache = cache })

	out, err := predictString(svc, "CCO\tmol1\nCCN\tmol2\nCCC\tmol3\n")
	require.NoError(t, err)
	assert.Equal(t, 1, out.CacheHits)
	assert.EqualValues(t, 2, f.rows.Load())
	assert.Equal(t, 7.25, out.Run.Results[1].PredictedPIC50)
	assert.Equal(t, "mol3", out.Run.Results[2].MoleculeID)
	cache.AssertExpectations(t)
}

func TestPredict_SideChannelFailuresAreIgnored(t *testing.T) {
	f := newFixture(t, true, true)
	cache := new(MockScoreCache)
	cache.On("GetMany", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))
	cache.On("SetMany", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	exporter := new(MockExporter)
	exporter.On("Export", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return("", errors.New("minio down"))

	svc := f.service(t, func(d *Deps) {
		d.Cache = cache
		d.Exporter = exporter
	})
	out, err := predictString(svc, "CCO\tmol1\n")
	require.NoError(t, err)
	assert.Empty(t, out.DownloadURL)
	assert.Len(t, out.Run.Results, 1)
	exporter.AssertExpectations(t)
}

func TestPredict_ExportURL(t *testing.T) {
	f := newFixture(t, true, true)
	exporter := new(MockExporter)
	exporter.On("Export", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return("https://minio/exports/x.csv", nil)

	out, err := predictString(f.service(t, func(d *Deps) { d.Exporter = exporter }), "CCO\tmol1\n")
	require.NoError(t, err)
	assert.Equal(t, "https://minio/exports/x.csv", out.DownloadURL)
}

func TestPredict_Cancelled(t *testing.T) {
	f := newFixture(t, true, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service(t, nil).Predict(ctx, &PredictInput{Data: strings.NewReader("CCO\tmol1\n")})
	_, ok := AsStageError(err)
	require.True(t, ok)
	f.assertScratchEmpty(t)
}

func TestOptionalBackendsDisabled(t *testing.T) {
	f := newFixture(t, true, true)
	svc := f.service(t, nil)
	ctx := context.Background()

	_, _, err := svc.SearchResults(ctx, prediction.SearchQuery{Text: "CCO"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFeatureDisabled))
	_, err = svc.SimilarMolecules(ctx, "mol1", 5)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFeatureDisabled))
	_, err = svc.MoleculeHistory(ctx, "mol1")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFeatureDisabled))
}

func TestNewService_RequiresCorePorts(t *testing.T) {
	_, err := NewService(Deps{})
	assert.Error(t, err)
}

//Personal.AI order the ending
