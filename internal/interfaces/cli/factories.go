package cli

import (
	"context"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/database/postgres"
	"github.com/turtacn/ache-predictor/internal/infrastructure/database/sqlite"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	miniostore "github.com/turtacn/ache-predictor/internal/infrastructure/storage/minio"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	"github.com/turtacn/ache-predictor/internal/intelligence/padel"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// memoryHistoryLimit bounds the in-process ledger used when SQLite is off.
const memoryHistoryLimit = 100

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Force(version int) error
	Close() error
}

// Artifacts is the artifact directory as seen by the artifacts commands.
type Artifacts interface {
	Check() error
	Load(ctx context.Context) (*bioactivity.Snapshot, error)
	Sync(ctx context.Context) (*bioactivity.Snapshot, error)
	Describe() string
	ModelPath() string
	SchemaPath() string
	Close() error
}

// History is the local run ledger.
type History interface {
	prediction.RunRepository
	Close() error
}

// LocalPipeline is an in-process prediction service and its ledger.
type LocalPipeline struct {
	Service appprediction.Service
	Runs    prediction.RunRepository
	closers []func() error
}

// Close releases the model and the ledger.
func (p *LocalPipeline) Close() error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Factories builds the collaborators that touch the outside world.
type Factories struct {
	History   func(ctx context.Context, cc *CLIContext) (History, error)
	Pipeline  func(ctx context.Context, cc *CLIContext) (*LocalPipeline, error)
	Artifacts func(ctx context.Context, cc *CLIContext, remote bool) (Artifacts, error)
	Migrator  func(cc *CLIContext) (Migrator, error)
}

// DefaultFactories wires the real PaDEL runner, artifact store, SQLite
// ledger and postgres migrator.
func DefaultFactories() Factories {
	return Factories{
		History:   openHistory,
		Pipeline:  openPipeline,
		Artifacts: openArtifacts,
		Migrator:  openMigrator,
	}
}

type memoryHistory struct {
	*prediction.MemoryRunRepository
}

func (memoryHistory) Close() error { return nil }

func openHistory(ctx context.Context, cc *CLIContext) (History, error) {
	h := cc.Config.History.SQLite
	if h.Disabled {
		return memoryHistory{prediction.NewMemoryRunRepository(memoryHistoryLimit)}, nil
	}
	return sqlite.Open(ctx, h.Path, cc.Logger)
}

func openPipeline(ctx context.Context, cc *CLIContext) (*LocalPipeline, error) {
	history, err := cc.factories.History(ctx, cc)
	if err != nil {
		return nil, err
	}
	p := &LocalPipeline{Runs: history, closers: []func() error{history.Close}}

	store, err := bioactivity.NewArtifactStore(cc.Config.Pipeline, cc.Logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.closers = append(p.closers, store.Close)

	svc, err := appprediction.NewService(appprediction.Deps{
		Config:            cc.Config.Pipeline,
		Descriptors:       padel.NewRunner(cc.Config.Pipeline.Descriptor, cc.Logger),
		Artifacts:         store,
		Runs:              history,
		FingerprintPrefix: cc.Config.Search.Milvus.FingerprintPrefix,
		Logger:            cc.Logger,
	})
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.Service = svc
	return p, nil
}

type artifactSet struct {
	*bioactivity.ArtifactStore
	remote *miniostore.MinIOClient
}

func (a artifactSet) Close() error {
	err := a.ArtifactStore.Close()
	if a.remote != nil {
		_ = a.remote.Close()
	}
	return err
}

// openArtifacts builds the store; remote attaches the MinIO models bucket.
func openArtifacts(ctx context.Context, cc *CLIContext, remote bool) (Artifacts, error) {
	var (
		opts []bioactivity.StoreOption
		mc   *miniostore.MinIOClient
	)
	if remote {
		mcfg := cc.Config.Storage.MinIO
		if !mcfg.Enabled {
			return nil, errors.FeatureDisabled("artifact sync (storage.minio.enabled is false)")
		}
		var err error
		mc, err = miniostore.NewMinIOClient(ctx, mcfg, cc.Logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bioactivity.WithSource(miniostore.NewArtifactSource(mc)))
	}
	store, err := bioactivity.NewArtifactStore(cc.Config.Pipeline, cc.Logger, opts...)
	if err != nil {
		if mc != nil {
			_ = mc.Close()
		}
		return nil, err
	}
	return artifactSet{ArtifactStore: store, remote: mc}, nil
}

func openMigrator(cc *CLIContext) (Migrator, error) {
	cc.Logger.Debug("opening migrator", logging.String("host", cc.Config.Database.Postgres.Host))
	return postgres.NewMigrator(postgres.BuildDSN(cc.Config.Database.Postgres), cc.Logger)
}

//Personal.AI order the ending
