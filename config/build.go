package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/metacache"
	"github.com/unkn0wn-root/metacache/hooks/prom"
	"github.com/unkn0wn-root/metacache/origin/httporigin"
	"github.com/unkn0wn-root/metacache/origin/permit"
	pr "github.com/unkn0wn-root/metacache/provider"
	"github.com/unkn0wn-root/metacache/provider/bigcache"
	"github.com/unkn0wn-root/metacache/provider/memcache"
	"github.com/unkn0wn-root/metacache/provider/redis"
	"github.com/unkn0wn-root/metacache/store/kvstore"
	"github.com/unkn0wn-root/metacache/store/sqlstore"
)

// Store is a metacache.Store that holds resources.
type Store interface {
	metacache.Store
	Close(ctx context.Context) error
}

// OpenStore connects the configured backend.
func (c *Config) OpenStore(ctx context.Context, log metacache.Logger) (Store, error) {
	s := c.Store
	switch strings.ToLower(s.Driver) {
	case "sqlite", "postgres", "mysql":
		st, err := sqlstore.Open(sqlstore.Config{Driver: s.Driver, Path: s.Path, DSN: s.DSN})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "redis":
		p, err := redis.New(redis.Config{
			Client: goredis.NewClient(&goredis.Options{
				Addr:     s.Redis.Address,
				Password: s.Redis.Password,
				DB:       s.Redis.DB,
			}),
			CloseClient: true,
		})
		if err != nil {
			return nil, err
		}
		return c.kv(p, s.Redis.Prefix, log)
	case "memcache":
		p, err := memcache.New(memcache.Config{Servers: s.Memcache.Servers, Timeout: s.Memcache.Timeout})
		if err != nil {
			return nil, err
		}
		return c.kv(p, "", log)
	case "memory":
		p, err := bigcache.New(ctx, bigcache.Config{})
		if err != nil {
			return nil, err
		}
		return c.kv(p, "", log)
	default:
		return nil, fmt.Errorf("config: unsupported store driver %q", s.Driver)
	}
}

func (c *Config) kv(p pr.Provider, prefix string, log metacache.Logger) (Store, error) {
	st, err := kvstore.New(kvstore.Options{
		Provider:       p,
		Codec:          c.Store.Codec,
		Prefix:         prefix,
		Retention:      c.Store.Retention,
		MaxRecordBytes: c.Store.MaxPayloadBytes,
		Logger:         log,
	})
	if err != nil {
		_ = p.Close(context.Background())
		return nil, err
	}
	return st, nil
}

// NewOrigin builds the HTTP origin with its fetch permit.
func (c *Config) NewOrigin(log metacache.Logger) *httporigin.Origin {
	o := c.Origin
	return httporigin.New(httporigin.Options{
		APIURL:    o.APIURL,
		APIv3URL:  o.APIv3URL,
		MetaURL:   o.MetaURL,
		UserAgent: o.UserAgent,
		Timeout:   o.Timeout,
		Retries:   retries(o.Retries),
		BatchSize: o.BatchSize,
		Permit: permit.New(permit.Config{
			MaxConcurrent: o.MaxConcurrent,
			PerSecond:     o.RatePerSecond,
			Burst:         o.Burst,
		}),
		Logger: log,
	})
}

// 0 in the file means "no retries"; httporigin reads 0 as its default
func retries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// Options assembles cache options around store and origin. Prometheus hooks
// are registered on reg when metrics are enabled.
func (c *Config) Options(store metacache.Store, origin metacache.Origin, log metacache.Logger, reg prometheus.Registerer) metacache.Options {
	opts := metacache.Options{
		Store:           store,
		Origin:          origin,
		Logger:          log,
		HashConcurrency: c.Cache.HashConcurrency,
		RefreshWorkers:  c.Cache.RefreshWorkers,
		RefreshQueue:    c.Cache.RefreshQueue,
		MaxPayloadBytes: c.Store.MaxPayloadBytes,
	}
	if c.Cache.ProfilesDir != "" {
		opts.Files = osfs.New(c.Cache.ProfilesDir, osfs.WithBoundOS())
	}
	if c.Metrics.Enabled {
		opts.Hooks = prom.New(reg, c.Metrics.Namespace)
	}
	return opts
}
