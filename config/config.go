// Package config loads metacache settings from a YAML file and METACACHE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/metacache"
	"github.com/unkn0wn-root/metacache/codec"
)

const EnvPrefix = "METACACHE"

var (
	drivers    = []string{"sqlite", "postgres", "mysql", "redis", "memcache", "memory"}
	logFormats = []string{"json", "console"}
	codecs     = []string{codec.NameMsgpack, codec.NameCBOR, codec.NameJSON}
)

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Origin  OriginConfig  `mapstructure:"origin"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the persistence backend. sqlite, postgres and mysql use
// the relational store; redis, memcache and memory use the key/value store.
type StoreConfig struct {
	Driver          string         `mapstructure:"driver"`
	Path            string         `mapstructure:"path"`
	DSN             string         `mapstructure:"dsn"`
	Codec           string         `mapstructure:"codec"`
	Retention       time.Duration  `mapstructure:"retention"`
	MaxPayloadBytes int            `mapstructure:"max_payload_bytes"`
	Redis           RedisConfig    `mapstructure:"redis"`
	Memcache        MemcacheConfig `mapstructure:"memcache"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type MemcacheConfig struct {
	Servers []string      `mapstructure:"servers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OriginConfig struct {
	APIURL        string        `mapstructure:"api_url"`
	APIv3URL      string        `mapstructure:"api_v3_url"`
	MetaURL       string        `mapstructure:"meta_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Retries       int           `mapstructure:"retries"`
	BatchSize     int           `mapstructure:"batch_size"`
}

type CacheConfig struct {
	Behaviour       string `mapstructure:"behaviour"`
	HashConcurrency int    `mapstructure:"hash_concurrency"`
	RefreshWorkers  int    `mapstructure:"refresh_workers"`
	RefreshQueue    int    `mapstructure:"refresh_queue"`
	ProfilesDir     string `mapstructure:"profiles_dir"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads path (when non-empty) or ./metacache.yaml if present, then
// applies environment overrides such as METACACHE_STORE_DRIVER.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("metacache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./data/metacache.sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.codec", codec.NameMsgpack)
	v.SetDefault("store.retention", "720h")
	v.SetDefault("store.max_payload_bytes", 0)
	v.SetDefault("store.redis.address", "127.0.0.1:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "mc")
	v.SetDefault("store.memcache.servers", []string{"127.0.0.1:11211"})
	v.SetDefault("store.memcache.timeout", "500ms")

	v.SetDefault("origin.api_url", "https://api.modrinth.com/v2/")
	v.SetDefault("origin.api_v3_url", "https://api.modrinth.com/v3/")
	v.SetDefault("origin.meta_url", "https://launcher-meta.modrinth.com/")
	v.SetDefault("origin.user_agent", "")
	v.SetDefault("origin.timeout", "30s")
	v.SetDefault("origin.max_concurrent", 10)
	v.SetDefault("origin.rate_per_second", 0)
	v.SetDefault("origin.burst", 0)
	v.SetDefault("origin.retries", 2)
	v.SetDefault("origin.batch_size", 800)

	v.SetDefault("cache.behaviour", "stale_while_revalidate")
	v.SetDefault("cache.hash_concurrency", 16)
	v.SetDefault("cache.refresh_workers", 2)
	v.SetDefault("cache.refresh_queue", 256)
	v.SetDefault("cache.profiles_dir", "./profiles")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "metacache")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate rejects unknown enum values and impossible limits.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(drivers, strings.ToLower(c.Store.Driver)) {
		errs = append(errs, fmt.Errorf("store.driver %q: want one of %s", c.Store.Driver, strings.Join(drivers, ", ")))
	}
	if !slices.Contains(codecs, c.Store.Codec) {
		errs = append(errs, fmt.Errorf("store.codec %q: want one of %s", c.Store.Codec, strings.Join(codecs, ", ")))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format %q: want one of %s", c.Log.Format, strings.Join(logFormats, ", ")))
	}
	if _, err := c.Behaviour(); err != nil {
		errs = append(errs, fmt.Errorf("cache.behaviour: %w", err))
	}
	if c.Store.MaxPayloadBytes < 0 || c.Cache.HashConcurrency < 0 || c.Cache.RefreshWorkers < 0 ||
		c.Cache.RefreshQueue < 0 || c.Origin.MaxConcurrent < 0 || c.Origin.BatchSize < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	switch strings.ToLower(c.Store.Driver) {
	case "postgres", "mysql":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Driver))
		}
	case "memcache":
		if len(c.Store.Memcache.Servers) == 0 {
			errs = append(errs, errors.New("store.memcache.servers is required"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) Behaviour() (metacache.Behaviour, error) {
	return metacache.ParseBehaviour(c.Cache.Behaviour)
}
