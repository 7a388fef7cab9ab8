package memcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	gm "github.com/bradfitz/gomemcache/memcache"

	pr "github.com/unkn0wn-root/metacache/provider"
)

const (
	maxKeyLen = 250
	// memcached reads expirations above 30 days as absolute unix times.
	relativeLimit = 30 * 24 * time.Hour
)

var ErrNoServers = errors.New("memcache provider: no servers")

type Memcache struct {
	c   *gm.Client
	now func() time.Time
}

var (
	_ pr.Provider    = (*Memcache)(nil)
	_ pr.BatchGetter = (*Memcache)(nil)
)

type Config struct {
	Client       *gm.Client // optional; built from Servers when nil
	Servers      []string
	Timeout      time.Duration
	MaxIdleConns int
}

func New(cfg Config) (*Memcache, error) {
	c := cfg.Client
	if c == nil {
		if len(cfg.Servers) == 0 {
			return nil, ErrNoServers
		}
		c = gm.New(cfg.Servers...)
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		if cfg.MaxIdleConns > 0 {
			c.MaxIdleConns = cfg.MaxIdleConns
		}
	}
	return &Memcache{c: c, now: time.Now}, nil
}

func (p *Memcache) Get(_ context.Context, key string) ([]byte, bool, error) {
	it, err := p.c.Get(safeKey(key))
	if errors.Is(err, gm.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return it.Value, true, nil
}

func (p *Memcache) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	byWire := make(map[string]string, len(keys))
	wireKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		wk := safeKey(k)
		if _, dup := byWire[wk]; !dup {
			wireKeys = append(wireKeys, wk)
		}
		byWire[wk] = k
	}
	items, err := p.c.GetMulti(wireKeys)
	if err != nil {
		return nil, err
	}
	for wk, it := range items {
		out[byWire[wk]] = it.Value
	}
	return out, nil
}

func (p *Memcache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return p.c.Set(&gm.Item{Key: safeKey(key), Value: value, Expiration: p.expiration(ttl)})
}

func (p *Memcache) Del(_ context.Context, key string) error {
	err := p.c.Delete(safeKey(key))
	if errors.Is(err, gm.ErrCacheMiss) {
		return nil
	}
	return err
}

// Close is a no-op; the client's idle connections are reclaimed by the server.
func (p *Memcache) Close(context.Context) error { return nil }

func (p *Memcache) expiration(ttl time.Duration) int32 {
	switch {
	case ttl <= 0:
		return 0
	case ttl <= relativeLimit:
		return int32(ttl / time.Second)
	default:
		return int32(p.now().Add(ttl).Unix())
	}
}

// safeKey maps keys memcached would reject (too long, spaces, control bytes)
// to a stable digest.
func safeKey(key string) string {
	ok := len(key) > 0 && len(key) <= maxKeyLen
	for i := 0; ok && i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			ok = false
		}
	}
	if ok {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "h:" + hex.EncodeToString(sum[:])
}
