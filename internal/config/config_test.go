package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "text" }, "log.format"},
		{"coverage ratio above one", func(c *Config) { c.Pipeline.Coverage.MinRatio = 1.5 }, "min_ratio"},
		{"coverage mode", func(c *Config) { c.Pipeline.Coverage.Mode = "ignore" }, "coverage.mode"},
		{"unknown backend", func(c *Config) { c.Pipeline.Model.Backend = "torch" }, "model.backend"},
		{"http backend without url", func(c *Config) { c.Pipeline.Model.Backend = BackendHTTP }, "http.url"},
		{"http backend with url", func(c *Config) {
			c.Pipeline.Model.Backend = BackendHTTP
			c.Pipeline.Model.HTTP.URL = "http://triton:8000"
		}, ""},
		{"postgres without user", func(c *Config) { c.Database.Postgres.Enabled = true }, "postgres.user"},
		{"postgres complete", func(c *Config) {
			c.Database.Postgres.Enabled = true
			c.Database.Postgres.User = "ache"
		}, ""},
		{"neo4j without uri", func(c *Config) { c.Database.Neo4j.Enabled = true }, "neo4j.uri"},
		{"redis sentinel without master", func(c *Config) {
			c.Cache.Redis.Enabled = true
			c.Cache.Redis.Mode = "sentinel"
			c.Cache.Redis.Addrs = []string{"s1:26379"}
		}, "sentinel"},
		{"kafka without brokers", func(c *Config) { c.Messaging.Kafka.Enabled = true }, "kafka.brokers"},
		{"minio without keys", func(c *Config) {
			c.Storage.MinIO.Enabled = true
			c.Storage.MinIO.Endpoint = "minio:9000"
		}, "storage.minio"},
		{"sync without minio", func(c *Config) { c.Pipeline.Artifacts.SyncOnStart = true }, "sync_on_start"},
		{"opensearch without addresses", func(c *Config) { c.Search.OpenSearch.Enabled = true }, "opensearch.addresses"},
		{"milvus unaligned dimension", func(c *Config) {
			c.Search.Milvus.Enabled = true
			c.Search.Milvus.Address = "milvus:19530"
			c.Search.Milvus.Dimension = 881
		}, "multiple of 8"},
		{"auth short secret", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.JWTSecret = "short"
		}, "jwt_secret"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

//Personal.AI order the ending
