// Package bootstrap opens the backends named in the configuration and
// assembles the prediction and job services shared by the API server and
// the worker.
package bootstrap

import (
	"context"
	"time"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	neo4jdriver "github.com/turtacn/ache-predictor/internal/infrastructure/database/neo4j"
	neo4jrepo "github.com/turtacn/ache-predictor/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ache-predictor/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/ache-predictor/internal/infrastructure/database/postgres/repositories"
	redisclient "github.com/turtacn/ache-predictor/internal/infrastructure/database/redis"
	"github.com/turtacn/ache-predictor/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ache-predictor/internal/infrastructure/search/milvus"
	"github.com/turtacn/ache-predictor/internal/infrastructure/search/opensearch"
	miniostore "github.com/turtacn/ache-predictor/internal/infrastructure/storage/minio"
	"github.com/turtacn/ache-predictor/internal/intelligence/bioactivity"
	"github.com/turtacn/ache-predictor/internal/intelligence/padel"
	"github.com/turtacn/ache-predictor/internal/interfaces/http/handlers"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// memoryRunLimit bounds the run history kept when postgres is disabled.
const memoryRunLimit = 1000

// jobClaimTTL outlives a handler attempt so a slow job is not picked up
// twice.
const jobClaimTTL = 2 * time.Minute

// Infrastructure holds every opened backend. Nil fields are disabled.
type Infrastructure struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	Postgres   *postgres.Connection
	Neo4j      *neo4jdriver.Driver
	Redis      *redisclient.Client
	MinIO      *miniostore.MinIOClient
	OpenSearch *opensearch.Client
	Milvus     *milvus.Client
	Producer   *kafka.Producer

	Runs         prediction.RunRepository
	Cache        *redisclient.ScoreCache
	Jobs         *redisclient.JobStore
	Locker       *redisclient.JobLocker
	Bus          *kafka.JobBus
	Index        *opensearch.ResultIndex
	Fingerprints *milvus.FingerprintIndex
	Provenance   prediction.ProvenanceGraph
	Exporter     *miniostore.ResultExporter
	Artifacts    *bioactivity.ArtifactStore
	Descriptors  *padel.Runner

	closers []func() error
}

// Open connects to each enabled backend and prepares its schema. A failure
// closes whatever was already opened. source names the publishing process
// on Kafka events.
func Open(ctx context.Context, cfg *config.Config, source string, metrics *prometheus.AppMetrics, logger logging.Logger) (*Infrastructure, error) {
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	infra := &Infrastructure{Config: cfg, Logger: logger, Metrics: metrics}
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"postgres", infra.openPostgres},
		{"neo4j", infra.openNeo4j},
		{"redis", infra.openRedis},
		{"minio", infra.openMinIO},
		{"opensearch", infra.openOpenSearch},
		{"milvus", infra.openMilvus},
		{"kafka", infra.openKafka},
		{"artifacts", infra.openArtifacts},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			infra.Close()
			code := errors.GetCode(err)
			if code == errors.CodeUnknown {
				code = errors.ErrCodeServiceUnavailable
			}
			return nil, errors.Wrap(err, code, s.name+" initialization failed")
		}
	}
	logger.Info("infrastructure initialized", logging.Strings("enabled", infra.Enabled()))
	return infra, nil
}

func (i *Infrastructure) onClose(fn func() error) { i.closers = append(i.closers, fn) }

// Close releases backends in reverse opening order.
func (i *Infrastructure) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			i.Logger.Warn("close failed", logging.Err(err))
		}
	}
	i.closers = nil
}

// Enabled lists the optional backends in use.
func (i *Infrastructure) Enabled() []string {
	var out []string
	for _, b := range []struct {
		name string
		on   bool
	}{
		{"postgres", i.Postgres != nil},
		{"neo4j", i.Neo4j != nil},
		{"redis", i.Redis != nil},
		{"minio", i.MinIO != nil},
		{"opensearch", i.OpenSearch != nil},
		{"milvus", i.Milvus != nil},
		{"kafka", i.Producer != nil},
	} {
		if b.on {
			out = append(out, b.name)
		}
	}
	return out
}

func (i *Infrastructure) openPostgres(ctx context.Context) error {
	pg := i.Config.Database.Postgres
	if !pg.Enabled {
		i.Runs = prediction.NewMemoryRunRepository(memoryRunLimit)
		return nil
	}
	if pg.AutoMigrate {
		m, err := postgres.NewMigrator(postgres.BuildDSN(pg), i.Logger)
		if err != nil {
			return err
		}
		err = m.Up()
		_ = m.Close()
		if err != nil {
			return err
		}
	}
	conn, err := postgres.NewConnection(ctx, pg, i.Logger)
	if err != nil {
		return err
	}
	i.Postgres = conn
	i.onClose(conn.Close)
	i.Runs = pgrepo.NewPostgresRunRepo(conn, i.Logger)
	return nil
}

func (i *Infrastructure) openNeo4j(ctx context.Context) error {
	if !i.Config.Database.Neo4j.Enabled {
		return nil
	}
	d, err := neo4jdriver.NewDriver(ctx, i.Config.Database.Neo4j, i.Logger)
	if err != nil {
		return err
	}
	i.Neo4j = d
	i.onClose(d.Close)
	if err := neo4jrepo.EnsureSchema(ctx, d); err != nil {
		return err
	}
	i.Provenance = neo4jrepo.NewNeo4jProvenanceRepo(d, i.Logger)
	return nil
}

func (i *Infrastructure) openRedis(_ context.Context) error {
	r := i.Config.Cache.Redis
	if !r.Enabled {
		return nil
	}
	c, err := redisclient.NewClient(r, i.Logger)
	if err != nil {
		return err
	}
	i.Redis = c
	i.onClose(c.Close)
	i.Cache = redisclient.NewScoreCache(c, r.PredictionTTL, i.Logger)
	i.Jobs = redisclient.NewJobStore(c, r.JobTTL)
	claim := i.Config.Worker.HandlerTimeout + jobClaimTTL
	i.Locker = redisclient.NewJobLocker(c, claim, i.Logger)
	return nil
}

func (i *Infrastructure) openMinIO(ctx context.Context) error {
	if !i.Config.Storage.MinIO.Enabled {
		return nil
	}
	c, err := miniostore.NewMinIOClient(ctx, i.Config.Storage.MinIO, i.Logger)
	if err != nil {
		return err
	}
	i.MinIO = c
	i.onClose(c.Close)
	i.Exporter = miniostore.NewResultExporter(c, appprediction.ResultFilename)
	return nil
}

func (i *Infrastructure) openOpenSearch(ctx context.Context) error {
	if !i.Config.Search.OpenSearch.Enabled {
		return nil
	}
	c, err := opensearch.NewClient(ctx, i.Config.Search.OpenSearch, i.Logger)
	if err != nil {
		return err
	}
	i.OpenSearch = c
	i.onClose(c.Close)
	i.Index = opensearch.NewResultIndex(c, i.Logger)
	return i.Index.EnsureIndex(ctx)
}

func (i *Infrastructure) openMilvus(ctx context.Context) error {
	if !i.Config.Search.Milvus.Enabled {
		return nil
	}
	c, err := milvus.NewClient(ctx, i.Config.Search.Milvus, i.Logger)
	if err != nil {
		return err
	}
	i.Milvus = c
	i.onClose(c.Close)
	i.Fingerprints = milvus.NewFingerprintIndex(c, i.Logger)
	return i.Fingerprints.EnsureCollection(ctx)
}

func (i *Infrastructure) openKafka(ctx context.Context) error {
	k := i.Config.Messaging.Kafka
	if !k.Enabled {
		return nil
	}
	tm, err := kafka.NewTopicManager(ctx, k.Brokers, i.Logger)
	if err != nil {
		return err
	}
	err = tm.EnsureTopics(ctx, kafka.JobTopics(k))
	_ = tm.Close()
	if err != nil {
		return err
	}
	p, err := kafka.NewProducer(k, i.Logger)
	if err != nil {
		return err
	}
	i.Producer = p
	i.onClose(p.Close)
	i.Bus = kafka.NewJobBus(p, k, i.source())
	return nil
}

func (i *Infrastructure) source() string {
	if i.Config.Server.Mode == "" {
		return "ache"
	}
	return "ache-" + i.Config.Server.Mode
}

func (i *Infrastructure) openArtifacts(ctx context.Context) error {
	opts := []bioactivity.StoreOption{bioactivity.WithMetrics(i.Metrics)}
	if i.MinIO != nil {
		opts = append(opts, bioactivity.WithSource(miniostore.NewArtifactSource(i.MinIO)))
	}
	store, err := bioactivity.NewArtifactStore(i.Config.Pipeline, i.Logger, opts...)
	if err != nil {
		return err
	}
	i.Artifacts = store
	i.onClose(store.Close)
	i.Descriptors = padel.NewRunner(i.Config.Pipeline.Descriptor, i.Logger)

	if i.Config.Pipeline.Artifacts.SyncOnStart {
		if _, err := store.Sync(ctx); err != nil {
			return err
		}
		return nil
	}
	// Missing artifacts are reported per request, so the server still starts.
	if _, err := store.Load(ctx); err != nil {
		i.Logger.Warn("artifacts not loaded", logging.Err(err))
	}
	return nil
}

// PredictionService assembles the pipeline over the opened backends.
func (i *Infrastructure) PredictionService() (appprediction.Service, error) {
	d := appprediction.Deps{
		Config:            i.Config.Pipeline,
		Descriptors:       i.Descriptors,
		Artifacts:         i.Artifacts,
		Runs:              i.Runs,
		FingerprintPrefix: i.Config.Search.Milvus.FingerprintPrefix,
		Metrics:           i.Metrics,
		Logger:            i.Logger,
	}
	// Typed nil pointers must not reach the interface fields.
	if i.Cache != nil {
		d.Cache = i.Cache
	}
	if i.Index != nil {
		d.Index = i.Index
	}
	if i.Fingerprints != nil {
		d.Fingerprints = i.Fingerprints
	}
	if i.Provenance != nil {
		d.Provenance = i.Provenance
	}
	if i.Exporter != nil {
		d.Exporter = i.Exporter
	}
	return appprediction.NewService(d)
}

// JobService returns nil when the job store or the bus is disabled.
func (i *Infrastructure) JobService(svc appprediction.Service) (appprediction.JobService, error) {
	if i.Jobs == nil {
		return nil, nil
	}
	var publisher prediction.JobPublisher
	if i.Bus != nil {
		publisher = i.Bus
	}
	return appprediction.NewJobService(svc, i.Jobs, publisher, i.Config.Pipeline.MaxMolecules, i.Metrics, i.Logger,
		appprediction.WithJobLocker(i.Locker))
}

// PurgeCache drops cached scores of a retired model generation.
func (i *Infrastructure) PurgeCache(ctx context.Context, digest string) {
	if i.Cache == nil || digest == "" {
		return
	}
	n, err := i.Cache.Purge(ctx, digest)
	if err != nil {
		i.Logger.Warn("cache purge failed", logging.String("digest", digest), logging.Err(err))
		return
	}
	i.Logger.Info("cache purged", logging.String("digest", digest), logging.Int64("keys", n))
}

// Checkers reports one readiness check per opened backend plus the model.
func (i *Infrastructure) Checkers() []handlers.HealthChecker {
	var out []handlers.HealthChecker
	add := func(name string, fn func(context.Context) error) {
		out = append(out, handlers.CheckFunc{Component: name, Fn: fn})
	}
	add("artifacts", func(context.Context) error {
		if i.Artifacts.Current() == nil {
			return i.Artifacts.Check()
		}
		return nil
	})
	if i.Postgres != nil {
		add("postgres", i.Postgres.HealthCheck)
	}
	if i.Neo4j != nil {
		add("neo4j", i.Neo4j.HealthCheck)
	}
	if i.Redis != nil {
		add("redis", i.Redis.Ping)
	}
	if i.MinIO != nil {
		add("minio", i.MinIO.Ping)
	}
	if i.OpenSearch != nil {
		add("opensearch", i.OpenSearch.Ping)
	}
	if i.Milvus != nil {
		add("milvus", i.Milvus.CheckHealth)
	}
	return out
}

//Personal.AI order the ending
