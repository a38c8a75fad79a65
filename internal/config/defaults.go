package config

import (
	"path/filepath"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort      = 8080
	DefaultGRPCPort        = 9090
	DefaultServerMode      = "release"
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 15 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxUploadBytes  = 10 << 20
	DefaultRateLimitRPS    = 5
	DefaultRateLimitBurst  = 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMaxMolecules          = 10000
	DefaultDescriptorPreviewRows = 5
	DefaultPipelineTimeout       = 15 * time.Minute
	DefaultJava                  = "java"
	DefaultPaDELJar              = "PaDEL-Descriptor/PaDEL-Descriptor.jar"
	DefaultDescriptorTimeout     = 10 * time.Minute
	DefaultArtifactsDir          = "."
	DefaultModelFile             = "acetylcholinesterase_model.pkl"
	DefaultSchemaFile            = "descriptor_list.csv"
	DefaultWatchDebounce         = 500 * time.Millisecond
	DefaultModelBackend          = BackendCommand
	DefaultPython                = "python3"
	DefaultModelTimeout          = 2 * time.Minute
	DefaultONNXModelFile         = "acetylcholinesterase_model.onnx"
	DefaultONNXInputName         = "float_input"
	DefaultONNXOutputName        = "variable"
	DefaultHTTPModelName         = "acetylcholinesterase"
	DefaultCoverageMinRatio      = 0.5
	DefaultCoverageMode          = CoverageWarn

	DefaultPostgresHost    = "localhost"
	DefaultPostgresPort    = 5432
	DefaultPostgresDBName  = "ache"
	DefaultPostgresSSLMode = "disable"
	DefaultPostgresMaxConn = 10

	DefaultNeo4jDatabase = "neo4j"
	DefaultNeo4jPoolSize = 50

	DefaultRedisMode          = "standalone"
	DefaultRedisAddr          = "localhost:6379"
	DefaultRedisKeyPrefix     = "ache:"
	DefaultRedisPredictionTTL = 24 * time.Hour
	DefaultRedisJobTTL        = 72 * time.Hour

	DefaultKafkaGroupID        = "ache-worker"
	DefaultKafkaRequestTopic   = "ache.prediction.requested"
	DefaultKafkaCompletedTopic = "ache.prediction.completed"
	DefaultKafkaMaxRetries     = 3
	DefaultKafkaRetryBackoff   = time.Second
	DefaultKafkaMaxMessage     = 10 << 20

	DefaultMinIOModelsBucket  = "ache-models"
	DefaultMinIOExportsBucket = "ache-exports"
	DefaultMinIOPresignExpiry = time.Hour

	DefaultOpenSearchIndex = "ache-predictions"

	DefaultMilvusCollection        = "ache_fingerprints"
	DefaultMilvusDimension         = 888 // 881 PubChem bits padded to a byte boundary
	DefaultMilvusTopK              = 10
	DefaultMilvusFingerprintPrefix = "PubchemFP"

	DefaultPrometheusNamespace = "ache"
	DefaultPrometheusPath      = "/metrics"

	DefaultAuthIssuer   = "ache-predictor"
	DefaultAuthTokenTTL = 24 * time.Hour

	DefaultSQLitePath = "~/.ache/history.db"

	DefaultWorkerConcurrency    = 2
	DefaultWorkerHealthPort     = 8081
	DefaultWorkerHandlerTimeout = 20 * time.Minute

	DefaultClientServer = "http://localhost:8080"
	DefaultClientWait   = 2 * time.Second
)

// ApplyDefaults fills every zero-value field in cfg. Explicit values win.
// Call it after unmarshalling and before Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	s := &cfg.Server
	if s.Port == 0 {
		s.Port = DefaultServerPort
	}
	if s.GRPCPort == 0 {
		s.GRPCPort = DefaultGRPCPort
	}
	if s.Mode == "" {
		s.Mode = DefaultServerMode
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxUploadBytes == 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.RateLimit.RequestsPerSecond == 0 {
		s.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if s.RateLimit.Burst == 0 {
		s.RateLimit.Burst = DefaultRateLimitBurst
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	p := &cfg.Pipeline
	if p.ScratchDir != "" && !filepath.IsAbs(p.ScratchDir) {
		if abs, err := filepath.Abs(p.ScratchDir); err == nil {
			p.ScratchDir = abs
		}
	}
	if p.MaxMolecules == 0 {
		p.MaxMolecules = DefaultMaxMolecules
	}
	if p.DescriptorPreviewRows == 0 {
		p.DescriptorPreviewRows = DefaultDescriptorPreviewRows
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultPipelineTimeout
	}
	if p.Descriptor.Java == "" {
		p.Descriptor.Java = DefaultJava
	}
	if p.Descriptor.JarPath == "" {
		p.Descriptor.JarPath = DefaultPaDELJar
	}
	if p.Descriptor.Timeout == 0 {
		p.Descriptor.Timeout = DefaultDescriptorTimeout
	}
	if p.Artifacts.Dir == "" {
		p.Artifacts.Dir = DefaultArtifactsDir
	}
	if p.Artifacts.ModelFile == "" {
		p.Artifacts.ModelFile = DefaultModelFile
	}
	if p.Artifacts.SchemaFile == "" {
		p.Artifacts.SchemaFile = DefaultSchemaFile
	}
	if p.Artifacts.WatchDebounce == 0 {
		p.Artifacts.WatchDebounce = DefaultWatchDebounce
	}
	if p.Model.Backend == "" {
		p.Model.Backend = DefaultModelBackend
	}
	if p.Model.Command.Python == "" {
		p.Model.Command.Python = DefaultPython
	}
	if p.Model.Command.Timeout == 0 {
		p.Model.Command.Timeout = DefaultModelTimeout
	}
	if p.Model.ONNX.ModelFile == "" {
		p.Model.ONNX.ModelFile = DefaultONNXModelFile
	}
	if p.Model.ONNX.InputName == "" {
		p.Model.ONNX.InputName = DefaultONNXInputName
	}
	if p.Model.ONNX.OutputName == "" {
		p.Model.ONNX.OutputName = DefaultONNXOutputName
	}
	if p.Model.HTTP.ModelName == "" {
		p.Model.HTTP.ModelName = DefaultHTTPModelName
	}
	if p.Model.HTTP.Timeout == 0 {
		p.Model.HTTP.Timeout = DefaultModelTimeout
	}
	if p.Coverage.MinRatio == 0 {
		p.Coverage.MinRatio = DefaultCoverageMinRatio
	}
	if p.Coverage.Mode == "" {
		p.Coverage.Mode = DefaultCoverageMode
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	pg := &cfg.Database.Postgres
	if pg.Host == "" {
		pg.Host = DefaultPostgresHost
	}
	if pg.Port == 0 {
		pg.Port = DefaultPostgresPort
	}
	if pg.DBName == "" {
		pg.DBName = DefaultPostgresDBName
	}
	if pg.SSLMode == "" {
		pg.SSLMode = DefaultPostgresSSLMode
	}
	if pg.MaxConns == 0 {
		pg.MaxConns = DefaultPostgresMaxConn
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Database.Neo4j.Database == "" {
		cfg.Database.Neo4j.Database = DefaultNeo4jDatabase
	}
	if cfg.Database.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Database.Neo4j.MaxConnectionPoolSize = DefaultNeo4jPoolSize
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	r := &cfg.Cache.Redis
	if r.Mode == "" {
		r.Mode = DefaultRedisMode
	}
	if r.Addr == "" && r.Mode == DefaultRedisMode {
		r.Addr = DefaultRedisAddr
	}
	if r.KeyPrefix == "" {
		r.KeyPrefix = DefaultRedisKeyPrefix
	}
	if r.PredictionTTL == 0 {
		r.PredictionTTL = DefaultRedisPredictionTTL
	}
	if r.JobTTL == 0 {
		r.JobTTL = DefaultRedisJobTTL
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	k := &cfg.Messaging.Kafka
	if k.GroupID == "" {
		k.GroupID = DefaultKafkaGroupID
	}
	if k.RequestTopic == "" {
		k.RequestTopic = DefaultKafkaRequestTopic
	}
	if k.CompletedTopic == "" {
		k.CompletedTopic = DefaultKafkaCompletedTopic
	}
	if k.MaxRetries == 0 {
		k.MaxRetries = DefaultKafkaMaxRetries
	}
	if k.RetryBackoff == 0 {
		k.RetryBackoff = DefaultKafkaRetryBackoff
	}
	if k.MaxMessageBytes == 0 {
		k.MaxMessageBytes = DefaultKafkaMaxMessage
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	m := &cfg.Storage.MinIO
	if m.ModelsBucket == "" {
		m.ModelsBucket = DefaultMinIOModelsBucket
	}
	if m.ExportsBucket == "" {
		m.ExportsBucket = DefaultMinIOExportsBucket
	}
	if m.PresignExpiry == 0 {
		m.PresignExpiry = DefaultMinIOPresignExpiry
	}

	// ── Search ────────────────────────────────────────────────────────────────
	if cfg.Search.OpenSearch.Index == "" {
		cfg.Search.OpenSearch.Index = DefaultOpenSearchIndex
	}
	mv := &cfg.Search.Milvus
	if mv.Collection == "" {
		mv.Collection = DefaultMilvusCollection
	}
	if mv.Dimension == 0 {
		mv.Dimension = DefaultMilvusDimension
	}
	if mv.DefaultTopK == 0 {
		mv.DefaultTopK = DefaultMilvusTopK
	}
	if mv.FingerprintPrefix == "" {
		mv.FingerprintPrefix = DefaultMilvusFingerprintPrefix
	}

	// ── Monitoring ────────────────────────────────────────────────────────────
	if cfg.Monitoring.Prometheus.Namespace == "" {
		cfg.Monitoring.Prometheus.Namespace = DefaultPrometheusNamespace
	}
	if cfg.Monitoring.Prometheus.Path == "" {
		cfg.Monitoring.Prometheus.Path = DefaultPrometheusPath
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = DefaultAuthIssuer
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = DefaultAuthTokenTTL
	}

	// ── History / Worker / Client ─────────────────────────────────────────────
	if cfg.History.SQLite.Path == "" {
		cfg.History.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}
	if cfg.Worker.HandlerTimeout == 0 {
		cfg.Worker.HandlerTimeout = DefaultWorkerHandlerTimeout
	}
	if cfg.Client.Server == "" {
		cfg.Client.Server = DefaultClientServer
	}
	if cfg.Client.Wait == 0 {
		cfg.Client.Wait = DefaultClientWait
	}
}

// NewDefaultConfig returns a Config with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

//Personal.AI order the ending
