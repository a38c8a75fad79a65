package bioactivity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
)

// MissingArtifactsError carries one diagnostic per missing artifact file.
type MissingArtifactsError struct {
	Errors []*apperrors.AppError
}

func (e *MissingArtifactsError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ae := range e.Errors {
		msgs[i] = ae.Message
	}
	return strings.Join(msgs, "; ")
}

func (e *MissingArtifactsError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, ae := range e.Errors {
		out[i] = ae
	}
	return out
}

// Messages returns the user-facing message of each diagnostic.
func (e *MissingArtifactsError) Messages() []string {
	msgs := make([]string, len(e.Errors))
	for i, ae := range e.Errors {
		msgs[i] = ae.Message
	}
	return msgs
}

// ArtifactSource fetches artifact files from remote storage.
type ArtifactSource interface {
	FetchArtifact(ctx context.Context, name, dst string) error
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func (a fileStamp) equal(b fileStamp) bool {
	return a.size == b.size && a.modTime.Equal(b.modTime)
}

func stampOf(path string) (fileStamp, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{size: fi.Size(), modTime: fi.ModTime()}, nil
}

// Snapshot is one loaded generation of the schema and model. Callers hold it
// between Acquire and Release; a replaced snapshot closes its model after the
// last release.
type Snapshot struct {
	Schema     *Schema
	Model      Model
	Digest     string
	ModelPath  string
	SchemaPath string
	LoadedAt   time.Time

	modelStamp  fileStamp
	schemaStamp fileStamp

	refs      atomic.Int64
	retired   atomic.Bool
	closeOnce sync.Once
}

func (s *Snapshot) retain() { s.refs.Add(1) }

// Release drops a reference taken by Acquire.
func (s *Snapshot) Release() {
	if s.refs.Add(-1) <= 0 && s.retired.Load() {
		s.close()
	}
}

func (s *Snapshot) retire() {
	s.retired.Store(true)
	if s.refs.Load() <= 0 {
		s.close()
	}
}

func (s *Snapshot) close() {
	s.closeOnce.Do(func() {
		if s.Model != nil {
			_ = s.Model.Close()
		}
	})
}

// ArtifactStore loads the model and schema from the artifact directory and
// swaps in new generations when the files change.
type ArtifactStore struct {
	dir        string
	modelFile  string
	schemaFile string
	backend    string
	syncPrefix string

	open    OpenFunc
	source  ArtifactSource
	logger  logging.Logger
	metrics *prometheus.AppMetrics

	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// StoreOption customizes an ArtifactStore.
type StoreOption func(*ArtifactStore)

// WithOpenFunc replaces the backend opener.
func WithOpenFunc(fn OpenFunc) StoreOption {
	return func(s *ArtifactStore) { s.open = fn }
}

// WithSource enables Sync from remote storage.
func WithSource(src ArtifactSource) StoreOption {
	return func(s *ArtifactStore) { s.source = src }
}

// WithMetrics records reloads.
func WithMetrics(m *prometheus.AppMetrics) StoreOption {
	return func(s *ArtifactStore) { s.metrics = m }
}

// NewArtifactStore builds a store for the pipeline config.
func NewArtifactStore(cfg config.PipelineConfig, logger logging.Logger, opts ...StoreOption) (*ArtifactStore, error) {
	s := &ArtifactStore{
		dir:        cfg.Artifacts.Dir,
		modelFile:  cfg.Artifacts.ModelFile,
		schemaFile: cfg.Artifacts.SchemaFile,
		backend:    cfg.Model.Backend,
		syncPrefix: cfg.Artifacts.SyncPrefix,
		logger:     logger.Named("artifacts"),
		metrics:    prometheus.NewNoopAppMetrics(),
	}
	if s.backend == "" {
		s.backend = config.BackendCommand
	}
	if s.backend == config.BackendONNX {
		s.modelFile = cfg.Model.ONNX.ModelFile
		if s.modelFile == "" {
			s.modelFile = config.DefaultONNXModelFile
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.open == nil {
		open, err := NewOpenFunc(cfg.Model, logger)
		if err != nil {
			return nil, err
		}
		s.open = open
	}
	return s, nil
}

// Dir returns the artifact directory.
func (s *ArtifactStore) Dir() string { return s.dir }

// Backend returns the configured backend name.
func (s *ArtifactStore) Backend() string { return s.backend }

func (s *ArtifactStore) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// ModelPath is the local model file, empty for remote backends.
func (s *ArtifactStore) ModelPath() string {
	if s.backend == config.BackendHTTP {
		return ""
	}
	return s.resolve(s.modelFile)
}

// SchemaPath is the local descriptor list file.
func (s *ArtifactStore) SchemaPath() string { return s.resolve(s.schemaFile) }

// Check reports every missing artifact file in one error.
func (s *ArtifactStore) Check() error {
	var missing []*apperrors.AppError
	if p := s.ModelPath(); p != "" {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, apperrors.Newf(apperrors.ErrCodeModelMissing,
				"Trained model file not found. Please place '%s' in the app directory.", filepath.Base(p)).WithDetail(p))
		}
	}
	if _, err := os.Stat(s.SchemaPath()); err != nil {
		missing = append(missing, apperrors.Newf(apperrors.ErrCodeSchemaMissing,
			"Descriptor list file not found. Please place '%s' in the app directory.", filepath.Base(s.SchemaPath())).WithDetail(s.SchemaPath()))
	}
	if len(missing) > 0 {
		return &MissingArtifactsError{Errors: missing}
	}
	return nil
}

// Current returns the loaded snapshot without taking a reference, or nil.
func (s *ArtifactStore) Current() *Snapshot {
	return s.current.Load()
}

// Load reads both artifacts, opens the model and swaps the new snapshot in.
func (s *ArtifactStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load(ctx)
	prometheus.RecordArtifactReload(s.metrics, s.backend, err)
	if err != nil {
		return nil, err
	}
	if old := s.current.Swap(snap); old != nil {
		old.retire()
	}
	s.logger.Info("model artifacts loaded",
		logging.String("backend", s.backend),
		logging.String("digest", snap.Digest),
		logging.Int("features", snap.Schema.Len()))
	return snap, nil
}

func (s *ArtifactStore) load(ctx context.Context) (*Snapshot, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	snap := &Snapshot{ModelPath: s.ModelPath(), SchemaPath: s.SchemaPath(), LoadedAt: time.Now().UTC()}

	var err error
	if snap.schemaStamp, err = stampOf(snap.SchemaPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeArtifactInvalid, "descriptor list unreadable")
	}
	if snap.ModelPath != "" {
		if snap.modelStamp, err = stampOf(snap.ModelPath); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeArtifactInvalid, "model file unreadable")
		}
	}

	snap.Schema, err = LoadSchema(snap.SchemaPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeArtifactInvalid, "descriptor list is not a valid feature header").WithDetail(err.Error())
	}
	snap.Digest, err = s.digest(snap)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeArtifactInvalid, "could not fingerprint artifacts")
	}
	snap.Model, err = s.open(ctx, snap.ModelPath, snap.Schema)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeArtifactInvalid, apperrors.DefaultMessageForCode(apperrors.ErrCodeArtifactInvalid)).WithDetail(err.Error())
	}
	return snap, nil
}

// digest hashes the model and schema bytes. Remote models hash the backend
// name in place of the file.
func (s *ArtifactStore) digest(snap *Snapshot) (string, error) {
	h := sha256.New()
	if snap.ModelPath != "" {
		if err := hashFile(h, snap.ModelPath); err != nil {
			return "", err
		}
	} else {
		_, _ = io.WriteString(h, s.backend)
	}
	_, _ = h.Write([]byte{0})
	if err := hashFile(h, snap.SchemaPath); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Acquire checks that both files are present and returns a retained snapshot,
// reloading first when nothing is loaded or the files changed on disk.
// The caller must Release it.
func (s *ArtifactStore) Acquire(ctx context.Context) (*Snapshot, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	for {
		snap := s.current.Load()
		if snap == nil || s.stale(snap) {
			var err error
			if snap, err = s.reload(ctx); err != nil {
				return nil, err
			}
		}
		snap.retain()
		if s.current.Load() == snap {
			return snap, nil
		}
		snap.Release()
	}
}

// reload skips the load when another caller already refreshed the snapshot.
func (s *ArtifactStore) reload(ctx context.Context) (*Snapshot, error) {
	if cur := s.current.Load(); cur != nil && !s.stale(cur) {
		return cur, nil
	}
	return s.Load(ctx)
}

func (s *ArtifactStore) stale(snap *Snapshot) bool {
	if st, err := stampOf(snap.SchemaPath); err != nil || !st.equal(snap.schemaStamp) {
		return true
	}
	if snap.ModelPath != "" {
		if st, err := stampOf(snap.ModelPath); err != nil || !st.equal(snap.modelStamp) {
			return true
		}
	}
	return false
}

// Sync downloads the artifacts from remote storage into the artifact
// directory and loads them.
func (s *ArtifactStore) Sync(ctx context.Context) (*Snapshot, error) {
	if s.source == nil {
		return nil, apperrors.FeatureDisabled("artifact sync")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeArtifactSyncFailed, "create artifact directory")
	}
	names := []string{s.schemaFile}
	if s.ModelPath() != "" {
		names = append(names, s.modelFile)
	}
	for _, name := range names {
		key := s.syncPrefix + filepath.Base(name)
		dst := s.resolve(name)
		tmp := dst + ".part"
		if err := s.source.FetchArtifact(ctx, key, tmp); err != nil {
			_ = os.Remove(tmp)
			if apperrors.IsCode(err, apperrors.ErrCodeArtifactNotInStore) {
				return nil, err
			}
			return nil, apperrors.Wrap(err, apperrors.ErrCodeArtifactSyncFailed, apperrors.DefaultMessageForCode(apperrors.ErrCodeArtifactSyncFailed)).WithDetail(key)
		}
		if err := os.Rename(tmp, dst); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeArtifactSyncFailed, "install artifact").WithDetail(dst)
		}
		s.logger.Info("artifact downloaded", logging.String("key", key), logging.String("path", dst))
	}
	return s.Load(ctx)
}

// Close releases the current model.
func (s *ArtifactStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.current.Swap(nil); old != nil {
		old.retire()
	}
	return nil
}

// Describe summarizes the loaded artifacts for health output.
func (s *ArtifactStore) Describe() string {
	snap := s.Current()
	if snap == nil {
		return "not loaded"
	}
	return fmt.Sprintf("%s model %s, %d features", snap.Model.Backend(), shortDigest(snap.Digest), snap.Schema.Len())
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

//Personal.AI order the ending
