// Package prediction is the application service behind every entry point:
// the upload page, the REST API, the CLI and the job worker all score files
// through Service.
package prediction

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	"github.com/turtacn/ache-predictor/internal/intelligence/padel"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
	"github.com/turtacn/ache-predictor/pkg/types/common"
	"github.com/turtacn/ache-predictor/pkg/types/molecule"
)

const (
	// ResultFilename is the download name of every results table.
	ResultFilename = "predicted_pIC50_results.csv"
	// ResultContentType is the mime type of the results table.
	ResultContentType = "text/csv"

	stagedInput = "molecule.smi"
	molDirName  = "mols"
)

// Service defines the prediction operations.
type Service interface {
	Predict(ctx context.Context, input *PredictInput) (*PredictOutput, error)
	GetRun(ctx context.Context, id string) (*prediction.Run, error)
	ListRuns(ctx context.Context, page common.Pagination) ([]*prediction.Run, int64, error)
	RenderCSV(ctx context.Context, id string) ([]byte, error)
	SearchResults(ctx context.Context, q prediction.SearchQuery) ([]prediction.SearchHit, int64, error)
	SimilarMolecules(ctx context.Context, moleculeID string, k int) ([]prediction.SimilarMolecule, error)
	MoleculeHistory(ctx context.Context, moleculeID string) ([]prediction.HistoryEntry, error)
	SetCoverage(cfg config.CoverageConfig)
}

// PredictInput is one uploaded file.
type PredictInput struct {
	Name      string
	Data      io.Reader
	Source    prediction.Source
	RequestID string
}

// PredictOutput is everything a caller shows after a successful run.
type PredictOutput struct {
	Run               *prediction.Run           `json:"run"`
	Molecules         []molecule.Molecule       `json:"molecules"`
	DescriptorPreview *molecule.DescriptorTable `json:"descriptor_preview,omitempty"`
	Info              string                    `json:"info"`
	CSV               []byte                    `json:"-"`
	DownloadURL       string                    `json:"download_url,omitempty"`
	CacheHits         int                       `json:"cache_hits"`
}

// DescriptorGenerator computes the descriptor table for a staged directory.
type DescriptorGenerator interface {
	Generate(ctx context.Context, molDir, outFile string) error
}

// ArtifactProvider hands out the current model generation.
type ArtifactProvider interface {
	Acquire(ctx context.Context) (*bioactivity.Snapshot, error)
}

// Deps wires the service. Runs, Descriptors and Artifacts are required; the
// remaining ports are optional and skipped when nil.
type Deps struct {
	Config      config.PipelineConfig
	Descriptors DescriptorGenerator
	Artifacts   ArtifactProvider
	Runs        prediction.RunRepository

	Cache        prediction.ScoreCache
	Index        prediction.ResultIndex
	Fingerprints prediction.FingerprintIndex
	Provenance   prediction.ProvenanceGraph
	Exporter     prediction.ResultExporter

	// FingerprintPrefix selects the descriptor columns stored as fingerprints.
	FingerprintPrefix string

	Metrics *prometheus.AppMetrics
	Logger  logging.Logger
}

type serviceImpl struct {
	cfg      config.PipelineConfig
	coverage atomic.Pointer[config.CoverageConfig]

	descriptors  DescriptorGenerator
	artifacts    ArtifactProvider
	runs         prediction.RunRepository
	cache        prediction.ScoreCache
	index        prediction.ResultIndex
	fingerprints prediction.FingerprintIndex
	provenance   prediction.ProvenanceGraph
	exporter     prediction.ResultExporter
	fpPrefix     string

	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewService creates a new prediction service.
func NewService(d Deps) (Service, error) {
	if d.Descriptors == nil || d.Artifacts == nil || d.Runs == nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "prediction service requires descriptors, artifacts and runs")
	}
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	if d.Metrics == nil {
		d.Metrics = prometheus.NewNoopAppMetrics()
	}
	if d.FingerprintPrefix == "" {
		d.FingerprintPrefix = config.DefaultMilvusFingerprintPrefix
	}
	s := &serviceImpl{
		cfg:          d.Config,
		descriptors:  d.Descriptors,
		artifacts:    d.Artifacts,
		runs:         d.Runs,
		cache:        d.Cache,
		index:        d.Index,
		fingerprints: d.Fingerprints,
		provenance:   d.Provenance,
		exporter:     d.Exporter,
		fpPrefix:     d.FingerprintPrefix,
		metrics:      d.Metrics,
		logger:       d.Logger.Named("pipeline"),
	}
	s.SetCoverage(d.Config.Coverage)
	return s, nil
}

// SetCoverage swaps the coverage policy used by subsequent runs.
func (s *serviceImpl) SetCoverage(cfg config.CoverageConfig) {
	if cfg.Mode == "" {
		cfg.Mode = config.CoverageWarn
	}
	s.coverage.Store(&cfg)
}

// session is the state of one run as it moves through the stages.
type session struct {
	run       *prediction.Run
	dir       string
	mols      []molecule.Molecule
	table     *molecule.DescriptorTable
	preview   *molecule.DescriptorTable
	snap      *bioactivity.Snapshot
	matrix    [][]float64
	values    []float64
	results   []molecule.Prediction
	csv       []byte
	cacheHits int
	// filled counts descriptor cells that were empty and zero-filled.
	filled    int
}

func (s *serviceImpl) Predict(ctx context.Context, input *PredictInput) (*PredictOutput, error) {
	if input == nil || input.Data == nil {
		return nil, &StageError{Stage: prediction.StageIngest, Err: apperrors.New(apperrors.ErrCodeIngest, "no file uploaded")}
	}
	if input.Source == "" {
		input.Source = prediction.SourceAPI
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	sess := &session{run: prediction.NewRun(input.Source, input.Name)}
	ctx = logging.WithRunID(ctx, sess.run.ID)
	if input.RequestID != "" {
		ctx = logging.WithRequestID(ctx, input.RequestID)
	}
	log := s.logger.WithContext(ctx)
	log.Info("run started", logging.String("input", input.Name), logging.String("source", string(input.Source)))

	defer func() {
		if sess.snap != nil {
			sess.snap.Release()
		}
		if sess.dir != "" {
			if err := os.RemoveAll(sess.dir); err != nil {
				log.Warn("failed to remove session directory", logging.String("dir", sess.dir), logging.Err(err))
			}
		}
	}()

	steps := []struct {
		stage prediction.Stage
		fn    func(context.Context, *session, *PredictInput) error
	}{
		{prediction.StageIngest, s.ingest},
		{prediction.StageStage, s.stage},
		{prediction.StageDescribe, s.describe},
		{prediction.StageLoad, s.load},
		{prediction.StageAlign, s.align},
		{prediction.StagePredict, s.predict},
		{prediction.StageEmit, s.emit},
	}
	for _, step := range steps {
		t := time.Now()
		err := step.fn(ctx, sess, input)
		prometheus.RecordStage(s.metrics, string(step.stage), time.Since(t))
		if err == nil && ctx.Err() != nil {
			err = apperrors.Wrap(ctx.Err(), apperrors.CodeUnknown, "run cancelled")
		}
		if err != nil {
			se, ok := AsStageError(err)
			if !ok {
				se = stageErr(step.stage, err)
			}
			return nil, s.fail(ctx, sess, se, time.Since(start))
		}
	}

	sess.run.Succeed(sess.results, time.Since(start))
	prometheus.RecordRun(s.metrics, "", len(sess.results), sess.run.Coverage, string(input.Source))
	log.Info("run succeeded",
		logging.Int("molecules", len(sess.results)),
		logging.Int("cache_hits", sess.cacheHits),
		logging.Float64("coverage", sess.run.Coverage),
		logging.Int64("duration_ms", sess.run.DurationMs))

	out := &PredictOutput{
		Run:               sess.run,
		Molecules:         sess.mols,
		DescriptorPreview: sess.preview,
		Info:              sess.run.MatchInfo(),
		CSV:               sess.csv,
		CacheHits:         sess.cacheHits,
	}
	out.DownloadURL = s.record(ctx, sess)
	return out, nil
}

func (s *serviceImpl) fail(ctx context.Context, sess *session, se *StageError, elapsed time.Duration) error {
	sess.run.Fail(se.Stage, string(se.Code()), se.Message(), elapsed)
	prometheus.RecordRun(s.metrics, string(se.Stage), 0, 0, string(sess.run.Source))
	s.logger.WithContext(ctx).Error("run failed",
		logging.String("stage", string(se.Stage)),
		logging.String("code", string(se.Code())),
		logging.Strings("diagnostics", se.Diagnostics()),
		logging.Err(se.Err))
	if err := s.runs.Save(context.WithoutCancel(ctx), sess.run); err != nil {
		s.sideEffectFailed(ctx, "runs", err)
	}
	return se
}

func (s *serviceImpl) ingest(_ context.Context, sess *session, input *PredictInput) error {
	mols, err := prediction.ParseMolecules(input.Data, s.cfg.MaxMolecules)
	if err != nil {
		return err
	}
	sess.mols = mols
	sess.run.MoleculeCount = len(mols)
	return nil
}

func (s *serviceImpl) stage(_ context.Context, sess *session, _ *PredictInput) error {
	dir, err := os.MkdirTemp(s.cfg.ScratchDir, "ache-session-")
	if err != nil {
		return err
	}
	sess.dir = dir
	molDir := filepath.Join(dir, molDirName)
	if err := os.Mkdir(molDir, 0o700); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(molDir, stagedInput))
	if err != nil {
		return err
	}
	if err := prediction.WriteSMI(f, sess.mols); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *serviceImpl) describe(ctx context.Context, sess *session, _ *PredictInput) error {
	out := filepath.Join(sess.dir, padel.OutputFile)
	if err := s.descriptors.Generate(ctx, filepath.Join(sess.dir, molDirName), out); err != nil {
		return err
	}
	table, err := padel.ReadTableFile(out, len(sess.mols))
	if err != nil {
		return err
	}
	if n := table.FillNaN(0); n > 0 {
		sess.filled = n
		msg := "descriptor table had empty cells; filled with 0"
		sess.run.Warnings = append(sess.run.Warnings, msg)
		s.logger.WithContext(ctx).Warn(msg, logging.Int("cells", n))
	}
	sess.table = table
	sess.preview = table.Head(s.cfg.DescriptorPreviewRows)
	return nil
}

func (s *serviceImpl) load(ctx context.Context, sess *session, _ *PredictInput) error {
	snap, err := s.artifacts.Acquire(ctx)
	if err != nil {
		return err
	}
	sess.snap = snap
	sess.run.ModelDigest = snap.Digest
	sess.run.ModelBackend = snap.Model.Backend()
	return nil
}

func (s *serviceImpl) align(ctx context.Context, sess *session, _ *PredictInput) error {
	a := bioactivity.Align(sess.table, sess.snap.Schema)
	sess.matrix = a.Matrix
	sess.run.FeaturesMatched = a.Matched
	sess.run.FeaturesTotal = a.Total
	sess.run.Coverage = a.Coverage

	cov := s.coverage.Load()
	if cov.Mode == config.CoverageFail && sess.filled > 0 {
		return apperrors.New(apperrors.ErrCodeAlign, "descriptor table has empty cells").
			WithDetail(fmt.Sprintf("%d cells could not be computed", sess.filled))
	}
	if a.Coverage >= cov.MinRatio {
		return nil
	}
	msg := sess.run.MatchInfo()
	if cov.Mode == config.CoverageFail {
		return apperrors.New(apperrors.ErrCodeAlign, "insufficient feature coverage").
			WithDetail(msg)
	}
	warning := "low feature coverage: " + msg
	sess.run.Warnings = append(sess.run.Warnings, warning)
	s.logger.WithContext(ctx).Warn("low feature coverage",
		logging.Int("matched", a.Matched),
		logging.Int("total", a.Total),
		logging.Float64("min_ratio", cov.MinRatio))
	return nil
}

func (s *serviceImpl) predict(ctx context.Context, sess *session, _ *PredictInput) error {
	values := make([]float64, len(sess.mols))
	pending := make([]int, 0, len(sess.mols))

	var cached map[string]float64
	if s.cache != nil {
		smiles := make([]string, len(sess.mols))
		for i, m := range sess.mols {
			smiles[i] = m.SMILES
		}
		var err error
		cached, err = s.cache.GetMany(ctx, sess.snap.Digest, smiles)
		if err != nil {
			s.sideEffectFailed(ctx, "cache", err)
			cached = nil
		}
	}
	for i, m := range sess.mols {
		v, ok := cached[m.SMILES]
		if s.cache != nil {
			prometheus.RecordCacheAccess(s.metrics, "prediction", ok)
		}
		if ok {
			values[i] = v
			sess.cacheHits++
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		matrix := make([][]float64, len(pending))
		for k, i := range pending {
			matrix[k] = sess.matrix[i]
		}
		preds, err := sess.snap.Model.Predict(ctx, matrix)
		if err != nil {
			return err
		}
		if len(preds) != len(matrix) {
			return apperrors.Wrap(bioactivity.ErrPredictionCount, apperrors.ErrCodePredict, "prediction count mismatch").
				WithDetail(fmt.Sprintf("got %d predictions for %d rows", len(preds), len(matrix)))
		}
		fresh := make(map[string]float64, len(pending))
		for k, i := range pending {
			v := preds[k]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return apperrors.New(apperrors.ErrCodePredict, "model returned a non-finite value").
					WithDetail("molecule " + sess.mols[i].ID)
			}
			values[i] = v
			fresh[sess.mols[i].SMILES] = v
		}
		if s.cache != nil {
			if err := s.cache.SetMany(ctx, sess.snap.Digest, fresh); err != nil {
				s.sideEffectFailed(ctx, "cache", err)
			}
		}
	}
	sess.values = values
	return nil
}

func (s *serviceImpl) emit(_ context.Context, sess *session, _ *PredictInput) error {
	results, err := prediction.BuildResults(sess.mols, sess.values)
	if err != nil {
		return err
	}
	csv, err := prediction.ResultsCSV(results)
	if err != nil {
		return err
	}
	sess.results = results
	sess.csv = csv
	return nil
}

// record persists the run and feeds the optional side channels. It returns
// the export URL, if any.
func (s *serviceImpl) record(ctx context.Context, sess *session) string {
	ctx = context.WithoutCancel(ctx)
	run := sess.run

	var url string
	if s.exporter != nil {
		u, err := s.exporter.Export(ctx, run.ID, sess.csv)
		if err != nil {
			s.sideEffectFailed(ctx, "export", err)
		} else {
			url = u
		}
	}
	if err := s.runs.Save(ctx, run); err != nil {
		s.sideEffectFailed(ctx, "runs", err)
	}
	if s.index != nil {
		if err := s.index.IndexRun(ctx, run); err != nil {
			s.sideEffectFailed(ctx, "index", err)
		}
	}
	if s.fingerprints != nil && sess.table != nil {
		fps := make([]prediction.Fingerprint, 0, len(sess.results))
		for i, r := range sess.results {
			bits, width := sess.table.Bits(i, s.fpPrefix)
			if width == 0 {
				break
			}
			fps = append(fps, prediction.Fingerprint{
				MoleculeID:     r.MoleculeID,
				SMILES:         r.SMILES,
				RunID:          run.ID,
				Bits:           bits,
				PredictedPIC50: r.PredictedPIC50,
			})
		}
		if len(fps) > 0 {
			if err := s.fingerprints.Upsert(ctx, fps); err != nil {
				s.sideEffectFailed(ctx, "fingerprints", err)
			}
		}
	}
	if s.provenance != nil {
		if err := s.provenance.RecordRun(ctx, run); err != nil {
			s.sideEffectFailed(ctx, "provenance", err)
		}
	}
	return url
}

func (s *serviceImpl) sideEffectFailed(ctx context.Context, sink string, err error) {
	s.metrics.SideEffectErrors.WithLabelValues(sink).Inc()
	s.logger.WithContext(ctx).Warn("side channel failed", logging.String("sink", sink), logging.Err(err))
}

func (s *serviceImpl) GetRun(ctx context.Context, id string) (*prediction.Run, error) {
	if id == "" {
		return nil, apperrors.New(apperrors.ErrCodeBadRequest, "run id is required")
	}
	return s.runs.FindByID(ctx, id)
}

func (s *serviceImpl) ListRuns(ctx context.Context, page common.Pagination) ([]*prediction.Run, int64, error) {
	page = page.Normalize()
	return s.runs.List(ctx, page)
}

func (s *serviceImpl) RenderCSV(ctx context.Context, id string) ([]byte, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != prediction.RunSucceeded {
		return nil, apperrors.New(apperrors.ErrCodeConflict, "run has no results").
			WithDetail("run " + id + " failed at the " + string(run.FailedStage) + " stage")
	}
	return prediction.ResultsCSV(run.Results)
}

func (s *serviceImpl) SearchResults(ctx context.Context, q prediction.SearchQuery) ([]prediction.SearchHit, int64, error) {
	if s.index == nil {
		return nil, 0, apperrors.FeatureDisabled("result search")
	}
	if q.Size <= 0 || q.Size > common.MaxPageSize {
		q.Size = common.DefaultPageSize
	}
	if q.From < 0 {
		q.From = 0
	}
	if q.MinPIC50 != nil && q.MaxPIC50 != nil && *q.MinPIC50 > *q.MaxPIC50 {
		return nil, 0, apperrors.New(apperrors.ErrCodeBadRequest, "min must not exceed max")
	}
	return s.index.Search(ctx, q)
}

func (s *serviceImpl) SimilarMolecules(ctx context.Context, moleculeID string, k int) ([]prediction.SimilarMolecule, error) {
	if s.fingerprints == nil {
		return nil, apperrors.FeatureDisabled("similar molecule lookup")
	}
	if moleculeID == "" {
		return nil, apperrors.New(apperrors.ErrCodeBadRequest, "molecule id is required")
	}
	if k <= 0 {
		k = 10
	}
	return s.fingerprints.SimilarTo(ctx, moleculeID, k)
}

func (s *serviceImpl) MoleculeHistory(ctx context.Context, moleculeID string) ([]prediction.HistoryEntry, error) {
	if s.provenance == nil {
		return nil, apperrors.FeatureDisabled("molecule history")
	}
	if moleculeID == "" {
		return nil, apperrors.New(apperrors.ErrCodeBadRequest, "molecule id is required")
	}
	return s.provenance.MoleculeHistory(ctx, moleculeID)
}

//Personal.AI order the ending
