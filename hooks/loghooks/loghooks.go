// Package loghooks reports cache events through a metacache.Logger.
package loghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	"github.com/unkn0wn-root/metacache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DiscardEvery uint64
	FetchEvery   uint64
	// Optional key redactor for file paths. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    metacache.Logger
	opts Options

	discardCtr atomic.Uint64
	fetchCtr   atomic.Uint64
}

var _ metacache.Hooks = (*Hooks)(nil)

func New(l metacache.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) EntryDiscarded(kind metacache.Kind, id, reason string) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("metacache.entry_discarded", metacache.Fields{
		"kind":   kind.String(),
		"id":     id,
		"reason": reason,
	})
}

func (h *Hooks) OriginFetched(kind metacache.Kind, requested, stored int, background bool) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("metacache.origin_fetched", metacache.Fields{
		"kind":       kind.String(),
		"requested":  requested,
		"stored":     stored,
		"background": background,
	})
}

func (h *Hooks) OriginFailed(kind metacache.Kind, requested int, background bool, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("metacache.origin_failed", metacache.Fields{
		"kind":       kind.String(),
		"requested":  requested,
		"background": background,
		"err":        err,
	})
}

func (h *Hooks) RefreshScheduled(kind metacache.Kind, keys []string) {
	if h.l == nil {
		return
	}
	h.l.Debug("metacache.refresh_scheduled", metacache.Fields{
		"kind": kind.String(),
		"keys": len(keys),
	})
}

func (h *Hooks) RefreshDropped(kind metacache.Kind, keys []string) {
	if h.l == nil {
		return
	}
	h.l.Warn("metacache.refresh_dropped", metacache.Fields{
		"kind": kind.String(),
		"keys": len(keys),
	})
}

// HashFailed keys are local file paths, so they are redacted.
func (h *Hooks) HashFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("metacache.hash_failed", metacache.Fields{
		"key": h.redact(key),
		"err": err,
	})
}
