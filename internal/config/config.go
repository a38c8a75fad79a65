// Package config defines the configuration structures of the predictor.
// No I/O lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Server and logging
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP and gRPC server tunables.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host"`
	Port            int             `mapstructure:"port" yaml:"port"`
	GRPCPort        int             `mapstructure:"grpc_port" yaml:"grpc_port"`
	Mode            string          `mapstructure:"mode" yaml:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxUploadBytes  int64           `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	CORSOrigins     []string        `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level" yaml:"level"`   // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format" yaml:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths" yaml:"output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline
// ─────────────────────────────────────────────────────────────────────────────

// PipelineConfig configures the prediction pipeline.
type PipelineConfig struct {
	// ScratchDir is the parent of every per-session working directory.
	// Empty means os.TempDir().
	ScratchDir            string           `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	MaxMolecules          int              `mapstructure:"max_molecules" yaml:"max_molecules"`
	DescriptorPreviewRows int              `mapstructure:"descriptor_preview_rows" yaml:"descriptor_preview_rows"`
	Timeout               time.Duration    `mapstructure:"timeout" yaml:"timeout"`
	Descriptor            DescriptorConfig `mapstructure:"descriptor" yaml:"descriptor"`
	Artifacts             ArtifactsConfig  `mapstructure:"artifacts" yaml:"artifacts"`
	Model                 ModelConfig      `mapstructure:"model" yaml:"model"`
	Coverage              CoverageConfig   `mapstructure:"coverage" yaml:"coverage"`
}

// DescriptorConfig locates the PaDEL-Descriptor installation.
type DescriptorConfig struct {
	Java        string        `mapstructure:"java" yaml:"java"`
	JarPath     string        `mapstructure:"jar_path" yaml:"jar_path"`
	JavaOptions []string      `mapstructure:"java_options" yaml:"java_options"`
	// DescriptorTypes is an optional PaDEL descriptor types XML file.
	DescriptorTypes string        `mapstructure:"descriptor_types" yaml:"descriptor_types"`
	Threads         int           `mapstructure:"threads" yaml:"threads"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ArtifactsConfig locates the trained model and its feature schema.
type ArtifactsConfig struct {
	Dir           string        `mapstructure:"dir" yaml:"dir"`
	ModelFile     string        `mapstructure:"model_file" yaml:"model_file"`
	SchemaFile    string        `mapstructure:"schema_file" yaml:"schema_file"`
	Watch         bool          `mapstructure:"watch" yaml:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce" yaml:"watch_debounce"`
	// SyncOnStart pulls artifacts from storage.minio.models_bucket at startup.
	SyncOnStart bool   `mapstructure:"sync_on_start" yaml:"sync_on_start"`
	SyncPrefix  string `mapstructure:"sync_prefix" yaml:"sync_prefix"`
}

// ModelConfig selects and configures the inference backend.
type ModelConfig struct {
	Backend string             `mapstructure:"backend" yaml:"backend"` // "command" | "onnx" | "http"
	Command CommandModelConfig `mapstructure:"command" yaml:"command"`
	ONNX    ONNXModelConfig    `mapstructure:"onnx" yaml:"onnx"`
	HTTP    HTTPModelConfig    `mapstructure:"http" yaml:"http"`
}

// CommandModelConfig runs the pickled model through a Python helper.
type CommandModelConfig struct {
	Python  string        `mapstructure:"python" yaml:"python"`
	Script  string        `mapstructure:"script" yaml:"script"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ONNXModelConfig runs an ONNX export of the model in-process.
type ONNXModelConfig struct {
	ModelFile         string `mapstructure:"model_file" yaml:"model_file"`
	SharedLibraryPath string `mapstructure:"shared_library_path" yaml:"shared_library_path"`
	InputName         string `mapstructure:"input_name" yaml:"input_name"`
	OutputName        string `mapstructure:"output_name" yaml:"output_name"`
	IntraOpThreads    int    `mapstructure:"intra_op_threads" yaml:"intra_op_threads"`
}

// HTTPModelConfig calls a KServe v2 compatible inference server.
type HTTPModelConfig struct {
	URL       string        `mapstructure:"url" yaml:"url"`
	ModelName string        `mapstructure:"model_name" yaml:"model_name"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CoverageConfig controls the reference feature coverage check.
type CoverageConfig struct {
	MinRatio float64 `mapstructure:"min_ratio" yaml:"min_ratio"`
	Mode     string  `mapstructure:"mode" yaml:"mode"` // "warn" | "fail"
}

// ─────────────────────────────────────────────────────────────────────────────
// Backends
// ─────────────────────────────────────────────────────────────────────────────

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	DBName          string        `mapstructure:"dbname" yaml:"dbname"`
	SSLMode         string        `mapstructure:"sslmode" yaml:"sslmode"`
	MaxConns        int           `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int           `mapstructure:"min_conns" yaml:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// Neo4jConfig holds provenance-graph connection parameters.
type Neo4jConfig struct {
	Enabled               bool          `mapstructure:"enabled" yaml:"enabled"`
	URI                   string        `mapstructure:"uri" yaml:"uri"`
	User                  string        `mapstructure:"user" yaml:"user"`
	Password              string        `mapstructure:"password" yaml:"password"`
	Database              string        `mapstructure:"database" yaml:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size" yaml:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout"`
}

// DatabaseConfig groups the database backends.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j" yaml:"neo4j"`
}

// RedisConfig holds prediction-cache and job-store parameters.
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Mode          string        `mapstructure:"mode" yaml:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr          string        `mapstructure:"addr" yaml:"addr"`
	Addrs         []string      `mapstructure:"addrs" yaml:"addrs"`
	MasterName    string        `mapstructure:"master_name" yaml:"master_name"`
	Password      string        `mapstructure:"password" yaml:"password"`
	DB            int           `mapstructure:"db" yaml:"db"`
	PoolSize      int           `mapstructure:"pool_size" yaml:"pool_size"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	KeyPrefix     string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	PredictionTTL time.Duration `mapstructure:"prediction_ttl" yaml:"prediction_ttl"`
	JobTTL        time.Duration `mapstructure:"job_ttl" yaml:"job_ttl"`
}

// CacheConfig groups cache backends.
type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// KafkaConfig holds async-job messaging parameters.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers         []string      `mapstructure:"brokers" yaml:"brokers"`
	GroupID         string        `mapstructure:"group_id" yaml:"group_id"`
	RequestTopic    string        `mapstructure:"request_topic" yaml:"request_topic"`
	CompletedTopic  string        `mapstructure:"completed_topic" yaml:"completed_topic"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	RequiredAcks    int           `mapstructure:"required_acks" yaml:"required_acks"`
	Compression     string        `mapstructure:"compression" yaml:"compression"`
	MaxMessageBytes int           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SASLMechanism   string        `mapstructure:"sasl_mechanism" yaml:"sasl_mechanism"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	SASLUsername    string        `mapstructure:"sasl_username" yaml:"sasl_username"`
	SASLPassword    string        `mapstructure:"sasl_password" yaml:"sasl_password"`
	TLSEnabled      bool          `mapstructure:"tls_enabled" yaml:"tls_enabled"`
	TLSCAFile       string        `mapstructure:"tls_ca_file" yaml:"tls_ca_file"`
}

// MessagingConfig groups messaging backends.
type MessagingConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
}

// MinIOConfig holds object-storage parameters.
type MinIOConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey     string        `mapstructure:"access_key" yaml:"access_key"`
	SecretKey     string        `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL        bool          `mapstructure:"use_ssl" yaml:"use_ssl"`
	Region        string        `mapstructure:"region" yaml:"region"`
	ModelsBucket  string        `mapstructure:"models_bucket" yaml:"models_bucket"`
	ExportsBucket string        `mapstructure:"exports_bucket" yaml:"exports_bucket"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry" yaml:"presign_expiry"`
}

// StorageConfig groups object stores.
type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio" yaml:"minio"`
}

// OpenSearchConfig holds result-index parameters.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled" yaml:"enabled"`
	Addresses          []string `mapstructure:"addresses" yaml:"addresses"`
	Username           string   `mapstructure:"username" yaml:"username"`
	Password           string   `mapstructure:"password" yaml:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Index              string   `mapstructure:"index" yaml:"index"`
}

// MilvusConfig holds fingerprint-vector index parameters.
type MilvusConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	Address           string `mapstructure:"address" yaml:"address"`
	Username          string `mapstructure:"username" yaml:"username"`
	Password          string `mapstructure:"password" yaml:"password"`
	DBName            string `mapstructure:"db_name" yaml:"db_name"`
	Collection        string `mapstructure:"collection" yaml:"collection"`
	Dimension         int    `mapstructure:"dimension" yaml:"dimension"`
	DefaultTopK       int    `mapstructure:"default_top_k" yaml:"default_top_k"`
	FingerprintPrefix string `mapstructure:"fingerprint_prefix" yaml:"fingerprint_prefix"`
}

// SearchConfig groups search backends.
type SearchConfig struct {
	OpenSearch OpenSearchConfig `mapstructure:"opensearch" yaml:"opensearch"`
	Milvus     MilvusConfig     `mapstructure:"milvus" yaml:"milvus"`
}

// PrometheusConfig holds metrics exposition parameters.
type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Path      string `mapstructure:"path" yaml:"path"`
}

// MonitoringConfig groups observability settings.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus" yaml:"prometheus"`
}

// AuthConfig configures optional bearer-token auth on the API.
type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer" yaml:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// SQLiteConfig locates the local run ledger used by the CLI.
type SQLiteConfig struct {
	Disabled bool   `mapstructure:"disabled" yaml:"disabled"`
	Path     string `mapstructure:"path" yaml:"path"`
}

// HistoryConfig groups local history stores.
type HistoryConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
}

// WorkerConfig holds async worker parameters.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	HealthPort     int           `mapstructure:"health_port" yaml:"health_port"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" yaml:"handler_timeout"`
}

// ClientConfig holds CLI defaults for talking to a remote API server.
type ClientConfig struct {
	Server string        `mapstructure:"server" yaml:"server"`
	Token  string        `mapstructure:"token" yaml:"token"`
	Wait   time.Duration `mapstructure:"wait" yaml:"wait"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Messaging  MessagingConfig  `mapstructure:"messaging" yaml:"messaging"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	Worker     WorkerConfig     `mapstructure:"worker" yaml:"worker"`
	Client     ClientConfig     `mapstructure:"client" yaml:"client"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of a defaulted Config and returns the
// first problem found.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("config: server.grpc_port %d is out of range [0, 65535]", c.Server.GRPCPort)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: server.max_upload_bytes must be > 0, got %d", c.Server.MaxUploadBytes)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Pipeline
	p := c.Pipeline
	if p.MaxMolecules < 1 {
		return fmt.Errorf("config: pipeline.max_molecules must be ≥ 1, got %d", p.MaxMolecules)
	}
	if p.Coverage.MinRatio < 0 || p.Coverage.MinRatio > 1 {
		return fmt.Errorf("config: pipeline.coverage.min_ratio %.2f is out of range [0, 1]", p.Coverage.MinRatio)
	}
	switch p.Coverage.Mode {
	case CoverageWarn, CoverageFail:
	default:
		return fmt.Errorf("config: pipeline.coverage.mode %q is invalid; expected warn|fail", p.Coverage.Mode)
	}
	if p.Artifacts.ModelFile == "" || p.Artifacts.SchemaFile == "" {
		return fmt.Errorf("config: pipeline.artifacts.model_file and schema_file are required")
	}
	switch p.Model.Backend {
	case BackendCommand, BackendONNX:
	case BackendHTTP:
		if p.Model.HTTP.URL == "" {
			return fmt.Errorf("config: pipeline.model.http.url is required for the http backend")
		}
	default:
		return fmt.Errorf("config: pipeline.model.backend %q is invalid; expected command|onnx|http", p.Model.Backend)
	}

	// Postgres
	if pg := c.Database.Postgres; pg.Enabled {
		if pg.Host == "" {
			return fmt.Errorf("config: database.postgres.host is required")
		}
		if pg.Port < 1 || pg.Port > 65535 {
			return fmt.Errorf("config: database.postgres.port %d is out of range [1, 65535]", pg.Port)
		}
		if pg.User == "" {
			return fmt.Errorf("config: database.postgres.user is required")
		}
		if pg.DBName == "" {
			return fmt.Errorf("config: database.postgres.dbname is required")
		}
	}

	// Neo4j
	if n := c.Database.Neo4j; n.Enabled && n.URI == "" {
		return fmt.Errorf("config: database.neo4j.uri is required")
	}

	// Redis
	if r := c.Cache.Redis; r.Enabled {
		switch r.Mode {
		case "standalone":
			if r.Addr == "" {
				return fmt.Errorf("config: cache.redis.addr is required")
			}
		case "sentinel":
			if len(r.Addrs) == 0 || r.MasterName == "" {
				return fmt.Errorf("config: cache.redis.addrs and master_name are required in sentinel mode")
			}
		case "cluster":
			if len(r.Addrs) == 0 {
				return fmt.Errorf("config: cache.redis.addrs is required in cluster mode")
			}
		default:
			return fmt.Errorf("config: cache.redis.mode %q is invalid; expected standalone|sentinel|cluster", r.Mode)
		}
		if r.DB < 0 {
			return fmt.Errorf("config: cache.redis.db must be ≥ 0, got %d", r.DB)
		}
	}

	// Kafka
	if k := c.Messaging.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("config: messaging.kafka.brokers must contain at least one broker address")
		}
		if k.GroupID == "" {
			return fmt.Errorf("config: messaging.kafka.group_id is required")
		}
		switch k.SASLMechanism {
		case "", "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return fmt.Errorf("config: messaging.kafka.sasl_mechanism %q is not supported", k.SASLMechanism)
		}
	}

	// MinIO
	if m := c.Storage.MinIO; m.Enabled {
		if m.Endpoint == "" || m.AccessKey == "" || m.SecretKey == "" {
			return fmt.Errorf("config: storage.minio.endpoint, access_key and secret_key are required")
		}
	}
	if p.Artifacts.SyncOnStart && !c.Storage.MinIO.Enabled {
		return fmt.Errorf("config: pipeline.artifacts.sync_on_start requires storage.minio.enabled")
	}

	// Search
	if o := c.Search.OpenSearch; o.Enabled && len(o.Addresses) == 0 {
		return fmt.Errorf("config: search.opensearch.addresses must contain at least one address")
	}
	if m := c.Search.Milvus; m.Enabled {
		if m.Address == "" {
			return fmt.Errorf("config: search.milvus.address is required")
		}
		if m.Dimension%8 != 0 {
			return fmt.Errorf("config: search.milvus.dimension %d must be a multiple of 8", m.Dimension)
		}
	}

	// Auth
	if a := c.Auth; a.Enabled && len(a.JWTSecret) < 16 {
		return fmt.Errorf("config: auth.jwt_secret must be at least 16 characters")
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	return nil
}

// Coverage modes.
const (
	CoverageWarn = "warn"
	CoverageFail = "fail"
)

// Model backends.
const (
	BackendCommand = "command"
	BackendONNX    = "onnx"
	BackendHTTP    = "http"
)

//Personal.AI order the ending
