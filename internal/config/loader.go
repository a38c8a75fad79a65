package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix of every setting.
const envPrefix = "ACHE"

// DefaultSearchPaths are consulted by LoadOrDefault when no explicit path is
// given.
var DefaultSearchPaths = []string{
	"configs/config.yaml",
	"config.yaml",
	"/etc/ache/config.yaml",
}

// newViper builds a Viper instance with YAML file type, the ACHE_ env prefix
// and a "." → "_" key replacer, so "database.postgres.host" resolves to
// ACHE_DATABASE_POSTGRES_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvs(v, reflect.TypeOf(Config{}), "")
	return v
}

// bindEnvs registers every mapstructure key of t with viper. AutomaticEnv
// only resolves keys viper already knows about, so without this Unmarshal
// would ignore variables for settings absent from the file.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type.String() != "time.Duration" {
			bindEnvs(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// Load reads the YAML file at configPath, merges ACHE_* environment
// overrides, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from ACHE_* environment variables and defaults
// only.
//
//	ACHE_<SECTION>_<FIELD>   e.g.  ACHE_PIPELINE_ARTIFACTS_DIR, ACHE_CACHE_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrDefault loads configPath when set, otherwise the first existing file
// in DefaultSearchPaths, otherwise the environment alone. It returns the path
// actually used ("" for environment only).
func LoadOrDefault(configPath string) (*Config, string, error) {
	if configPath != "" {
		cfg, err := Load(configPath)
		return cfg, configPath, err
	}
	for _, p := range DefaultSearchPaths {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	cfg, err := LoadFromEnv()
	return cfg, "", err
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the re-parsed Config
// after every write. An edit that fails to parse or validate is reported to
// onError (when non-nil) and onChange is skipped. Callers apply only the
// runtime-safe subset of changes, such as coverage thresholds.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad wraps Load and panics on error. Intended for main().
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

//Personal.AI order the ending
