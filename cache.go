package metacache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Cache is a typed read-through cache over a Store, populated from an Origin.
// It is safe for concurrent use.
type Cache struct {
	store      Store
	disp       *dispatcher
	refresh    *refresher
	log        Logger
	hooks      Hooks
	now        func() time.Time
	maxPayload int
	closed     atomic.Bool
}

// GetMany resolves keys (ids or aliases) of kind. Keys unknown to both the
// store and the origin are absent from the result; that is not an error.
// Result order is unspecified and each stored id appears at most once.
// Any key of a singleton kind resolves to its SingletonKey instance.
// A failed synchronous fetch or store access fails the whole call.
func (c *Cache) GetMany(ctx context.Context, kind Kind, keys []string, b Behaviour) ([]Entry, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	o, ok := opsFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	if int(b) >= len(behaviourNames) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBehaviour, uint8(b))
	}

	if kind.Singleton() && len(keys) > 0 {
		keys = []string{SingletonKey}
	}
	remaining := newKeySet(keys)
	if remaining.len() == 0 {
		return nil, nil
	}

	var (
		out   []Entry
		stale []string
	)
	if b.readsStore() {
		rows, err := c.store.Find(ctx, kind, remaining.list())
		if err != nil {
			return nil, &StoreError{Op: OpFind, Kind: kind, Err: err}
		}
		now := c.now()
		for _, row := range rows {
			v, err := o.decode(row.Payload, c.maxPayload)
			if err != nil {
				c.discard(kind, row.ID, ReasonDecode, err)
				continue
			}
			if v.PrimaryKey() != row.ID {
				c.discard(kind, row.ID, ReasonKeyMismatch, nil)
				continue
			}
			row.Kind = kind
			row.Value = v
			if !row.Fresh(now) {
				if !b.servesStale() {
					c.discard(kind, row.ID, ReasonExpired, nil)
					continue
				}
				stale = append(stale, row.ID)
			}
			remaining.remove(row.ID)
			if row.Alias != "" {
				remaining.removeAlias(kind, row.Alias)
			}
			out = append(out, row)
		}
	}

	if remaining.len() > 0 {
		missing := remaining.list()
		fetched, err := c.fetchAndStore(ctx, kind, missing)
		if err != nil {
			var oe *OriginError
			if b != StaleIfOffline || !errors.As(err, &oe) {
				return nil, err
			}
			c.log.Warn("origin unavailable; serving stored entries", Fields{"kind": kind.String(), "keys": len(missing), "err": err})
			stale = append(stale, missing...)
		}
		out = append(out, fetched...)
	}

	if len(stale) > 0 {
		c.refresh.schedule(kind, stale)
	}
	return dedupeEntries(out), nil
}

// Get is GetMany for a single key.
func (c *Cache) Get(ctx context.Context, kind Kind, key string, b Behaviour) (Entry, bool, error) {
	es, err := c.GetMany(ctx, kind, []string{key}, b)
	if err != nil || len(es) == 0 {
		return Entry{}, false, err
	}
	return es[0], true, nil
}

// Put writes caller-supplied values through to the store, stamped as fresh.
func (c *Cache) Put(ctx context.Context, values ...Value) error {
	if c.closed.Load() {
		return ErrClosed
	}
	now := c.now()
	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		e, err := NewEntry(v, now)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	entries = dedupeEntries(entries)
	if len(entries) == 0 {
		return nil
	}
	if err := c.store.Upsert(ctx, entries); err != nil {
		return &StoreError{Op: OpUpsert, Err: err}
	}
	return nil
}

// Close stops background refresh. Queued jobs are drained until ctx is done.
// The store and origin are not closed; they belong to the caller.
func (c *Cache) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.refresh.close(ctx)
}

func (c *Cache) fetchAndStore(ctx context.Context, kind Kind, keys []string) ([]Entry, error) {
	resolved, all, err := c.disp.fetch(ctx, kind, keys)
	if err == nil && len(all) > 0 {
		if uerr := c.store.Upsert(ctx, all); uerr != nil {
			err = &StoreError{Op: OpUpsert, Kind: kind, Err: uerr}
		}
	}
	if err != nil {
		c.hooks.OriginFailed(kind, len(keys), false, err)
		return nil, err
	}
	c.hooks.OriginFetched(kind, len(keys), len(all), false)
	return resolved, nil
}

func (c *Cache) discard(kind Kind, id, reason string, err error) {
	c.hooks.EntryDiscarded(kind, id, reason)
	f := Fields{"kind": kind.String(), "id": id, "reason": reason}
	if err != nil {
		f["err"] = err
	}
	c.log.Debug("stored entry discarded", f)
}

// keySet is the insertion-ordered set of keys still unresolved.
type keySet struct {
	order []string
	live  map[string]struct{}
}

func newKeySet(keys []string) *keySet {
	s := &keySet{live: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if _, dup := s.live[k]; dup {
			continue
		}
		s.live[k] = struct{}{}
		s.order = append(s.order, k)
	}
	return s
}

func (s *keySet) len() int { return len(s.live) }

func (s *keySet) remove(k string) { delete(s.live, k) }

func (s *keySet) removeAlias(kind Kind, alias string) {
	if !kind.FoldAlias() {
		delete(s.live, alias)
		return
	}
	for k := range s.live {
		if strings.EqualFold(k, alias) {
			delete(s.live, k)
		}
	}
}

func (s *keySet) list() []string {
	out := make([]string, 0, len(s.live))
	for _, k := range s.order {
		if _, ok := s.live[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
