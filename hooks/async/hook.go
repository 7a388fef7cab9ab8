// usage:
//
//	raw := loghooks.New(zaplog.New(zl), loghooks.Options{
//	    DiscardEvery: 10, // sample logs: ~every 10th discarded row
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := metacache.New(metacache.Options{
//	    Store:  store,
//	    Origin: origin,
//	    Hooks:  hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"slices"
	"sync"

	"github.com/unkn0wn-root/metacache"
)

type Hooks struct {
	inner metacache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	mu    sync.RWMutex
	done  bool
}

var _ metacache.Hooks = (*Hooks)(nil)

func New(inner metacache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	close(h.q)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.done {
		return
	}
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) EntryDiscarded(k metacache.Kind, id, reason string) {
	h.try(func() { h.inner.EntryDiscarded(k, id, reason) })
}
func (h *Hooks) OriginFetched(k metacache.Kind, requested, stored int, bg bool) {
	h.try(func() { h.inner.OriginFetched(k, requested, stored, bg) })
}
func (h *Hooks) OriginFailed(k metacache.Kind, requested int, bg bool, err error) {
	h.try(func() { h.inner.OriginFailed(k, requested, bg, err) })
}

// key slices are copied; the caller may reuse them once the hook returns
func (h *Hooks) RefreshScheduled(k metacache.Kind, keys []string) {
	keys = slices.Clone(keys)
	h.try(func() { h.inner.RefreshScheduled(k, keys) })
}
func (h *Hooks) RefreshDropped(k metacache.Kind, keys []string) {
	keys = slices.Clone(keys)
	h.try(func() { h.inner.RefreshDropped(k, keys) })
}
func (h *Hooks) HashFailed(key string, err error) { h.try(func() { h.inner.HashFailed(key, err) }) }
