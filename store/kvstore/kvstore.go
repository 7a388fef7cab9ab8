// Package kvstore implements metacache.Store over any provider.Provider.
//
// Layout (prefix defaults to "mc"):
//
//	<prefix>:<kind>:id:<id>        framed record (see internal/wire)
//	<prefix>:<kind>:alias:<alias>  framed pointer to the id
//
// Alias keys of case-insensitive kinds are lowercased. Pointers are advisory:
// a row is only returned when its own id or alias matches the requested key,
// so pointers left behind by an alias change are harmless.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/metacache"
	"github.com/unkn0wn-root/metacache/codec"
	"github.com/unkn0wn-root/metacache/internal/wire"
	pr "github.com/unkn0wn-root/metacache/provider"
)

const defaultPrefix = "mc"

// codec ids persisted in the record frame
const (
	codecJSON    byte = 1
	codecMsgpack byte = 2
	codecCBOR    byte = 3
)

var codecIDs = map[string]byte{
	codec.NameJSON:    codecJSON,
	codec.NameMsgpack: codecMsgpack,
	codec.NameCBOR:    codecCBOR,
}

type record struct {
	ID      string `json:"id" msgpack:"id" cbor:"1,keyasint"`
	Alias   string `json:"alias,omitempty" msgpack:"alias,omitempty" cbor:"2,keyasint,omitempty"`
	Kind    string `json:"kind" msgpack:"kind" cbor:"3,keyasint"`
	Payload []byte `json:"payload" msgpack:"payload" cbor:"4,keyasint"`
}

type Options struct {
	// Required
	Provider pr.Provider

	Codec          string           // "msgpack" (default), "cbor" or "json"; used for writes
	Prefix         string           // key prefix; "" => "mc"
	Retention      time.Duration    // how long rows outlive their expiry in the backend; 0 => forever
	MaxRecordBytes int              // larger records read as absent; 0 => unlimited
	Logger         metacache.Logger // if nil, NopLogger is used
	Now            func() time.Time // nil => time.Now
}

type Store struct {
	p         pr.Provider
	prefix    string
	writeID   byte
	codecs    map[byte]codec.Codec[record]
	retention time.Duration
	log       metacache.Logger
	now       func() time.Time

	// Providers without BatchSetter get batch atomicity within this process only.
	mu sync.RWMutex
}

var _ metacache.Store = (*Store)(nil)

func New(opts Options) (*Store, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("kvstore: provider is required")
	}
	name := opts.Codec
	if name == "" {
		name = codec.NameMsgpack
	}
	writeID, ok := codecIDs[name]
	if !ok {
		return nil, fmt.Errorf("kvstore: unknown codec %q", opts.Codec)
	}

	codecs := make(map[byte]codec.Codec[record], len(codecIDs))
	for n, id := range codecIDs {
		c, err := codec.ByName[record](n)
		if err != nil {
			return nil, fmt.Errorf("kvstore: codec %s: %w", n, err)
		}
		codecs[id] = codec.Limit[record]{Inner: c, MaxDecode: opts.MaxRecordBytes}
	}

	s := &Store{
		p:         opts.Provider,
		prefix:    opts.Prefix,
		writeID:   writeID,
		codecs:    codecs,
		retention: opts.Retention,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if s.prefix == "" {
		s.prefix = defaultPrefix
	}
	if s.log == nil {
		s.log = metacache.NopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Store) Find(ctx context.Context, kind metacache.Kind, keys []string) ([]metacache.Entry, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if _, ok := s.p.(pr.BatchSetter); !ok {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	lookup := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		lookup = append(lookup, s.idKey(kind, k), s.aliasKey(kind, k))
	}
	raw, err := s.getMany(ctx, lookup)
	if err != nil {
		return nil, err
	}

	found := make(map[string]metacache.Entry, len(keys))
	var viaAlias []string
	for _, k := range keys {
		if b, ok := raw[s.idKey(kind, k)]; ok {
			if e, ok := s.decode(kind, b); ok {
				found[e.ID] = e
			}
		}
		if b, ok := raw[s.aliasKey(kind, k)]; ok {
			id, err := wire.DecodePointer(b)
			if err != nil {
				s.log.Debug("kvstore: corrupt alias pointer", metacache.Fields{"kind": kind.String(), "alias": k})
				continue
			}
			viaAlias = append(viaAlias, id)
		}
	}

	var second []string
	for _, id := range viaAlias {
		if _, ok := found[id]; !ok {
			second = append(second, s.idKey(kind, id))
		}
	}
	if len(second) > 0 {
		raw2, err := s.getMany(ctx, second)
		if err != nil {
			return nil, err
		}
		for _, b := range raw2 {
			if e, ok := s.decode(kind, b); ok {
				found[e.ID] = e
			}
		}
	}

	out := make([]metacache.Entry, 0, len(found))
	for _, e := range found {
		for _, k := range keys {
			if e.Matches(k) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, entries []metacache.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := s.now()
	c := s.codecs[s.writeID]
	items := make([]pr.Item, 0, 2*len(entries))
	for _, e := range entries {
		body, err := c.Encode(record{ID: e.ID, Alias: e.Alias, Kind: e.Kind.String(), Payload: e.Payload})
		if err != nil {
			return fmt.Errorf("kvstore: encode %s %q: %w", e.Kind, e.ID, err)
		}
		ttl := s.ttl(e.ExpiresAt, now)
		items = append(items, pr.Item{
			Key:   s.idKey(e.Kind, e.ID),
			Value: wire.EncodeRecord(s.writeID, e.ExpiresAt.Unix(), body),
			TTL:   ttl,
		})
		if e.Alias != "" {
			ptr, err := wire.EncodePointer(e.ID)
			if err != nil {
				return fmt.Errorf("kvstore: alias of %s %q: %w", e.Kind, e.ID, err)
			}
			items = append(items, pr.Item{Key: s.aliasKey(e.Kind, e.Alias), Value: ptr, TTL: ttl})
		}
	}

	if bs, ok := s.p.(pr.BatchSetter); ok {
		return bs.SetMany(ctx, items)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if err := s.p.Set(ctx, it.Key, it.Value, it.TTL); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying provider.
func (s *Store) Close(ctx context.Context) error { return s.p.Close(ctx) }

func (s *Store) decode(kind metacache.Kind, b []byte) (metacache.Entry, bool) {
	id, expires, body, err := wire.DecodeRecord(b)
	if err != nil {
		s.log.Debug("kvstore: corrupt record", metacache.Fields{"kind": kind.String(), "err": err})
		return metacache.Entry{}, false
	}
	c, ok := s.codecs[id]
	if !ok {
		s.log.Debug("kvstore: unknown record codec", metacache.Fields{"kind": kind.String(), "codec": id})
		return metacache.Entry{}, false
	}
	r, err := c.Decode(body)
	if err != nil {
		s.log.Debug("kvstore: record decode failed", metacache.Fields{"kind": kind.String(), "err": err})
		return metacache.Entry{}, false
	}
	if r.Kind != kind.String() || r.ID == "" {
		return metacache.Entry{}, false
	}
	return metacache.Entry{
		ID:        r.ID,
		Alias:     r.Alias,
		Kind:      kind,
		Payload:   json.RawMessage(r.Payload),
		ExpiresAt: time.Unix(expires, 0).UTC(),
	}, true
}

func (s *Store) getMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if bg, ok := s.p.(pr.BatchGetter); ok {
		return bg.GetMany(ctx, keys)
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		b, ok, err := s.p.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = b
		}
	}
	return out, nil
}

func (s *Store) ttl(expires, now time.Time) time.Duration {
	if s.retention <= 0 {
		return 0
	}
	left := expires.Sub(now)
	if left < 0 {
		left = 0
	}
	return left + s.retention
}

func (s *Store) idKey(kind metacache.Kind, id string) string {
	return s.prefix + ":" + kind.String() + ":id:" + id
}

func (s *Store) aliasKey(kind metacache.Kind, alias string) string {
	return s.prefix + ":" + kind.String() + ":alias:" + metacache.AliasKey(kind, alias)
}
