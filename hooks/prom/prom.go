// Package prom exports cache events as Prometheus counters.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/metacache"
)

const DefaultNamespace = "metacache"

type Hooks struct {
	discarded    *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	fetchedKeys  *prometheus.CounterVec
	storedRows   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	refreshKeys  *prometheus.CounterVec
	hashFailures prometheus.Counter
}

var _ metacache.Hooks = (*Hooks)(nil)

// New registers the collectors on reg (prometheus.DefaultRegisterer if nil).
// namespace "" => DefaultNamespace.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)
	return &Hooks{
		discarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_discarded_total",
			Help:      "Stored rows not served, by kind and reason",
		}, []string{"kind", "reason"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origin_fetches_total",
			Help:      "Completed origin dispatches",
		}, []string{"kind", "mode"}),
		fetchedKeys: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origin_requested_keys_total",
			Help:      "Keys requested from the origin",
		}, []string{"kind", "mode"}),
		storedRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origin_stored_entries_total",
			Help:      "Entries written through after an origin dispatch, side entries included",
		}, []string{"kind", "mode"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origin_failures_total",
			Help:      "Failed origin dispatches or write-throughs",
		}, []string{"kind", "mode"}),
		refreshKeys: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_keys_total",
			Help:      "Keys queued for or dropped from background refresh",
		}, []string{"kind", "result"}),
		hashFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hash_failures_total",
			Help:      "Local files that could not be hashed",
		}),
	}
}

func mode(background bool) string {
	if background {
		return "background"
	}
	return "sync"
}

func (h *Hooks) EntryDiscarded(kind metacache.Kind, _ string, reason string) {
	h.discarded.WithLabelValues(kind.String(), reason).Inc()
}

func (h *Hooks) OriginFetched(kind metacache.Kind, requested, stored int, background bool) {
	m := mode(background)
	h.fetches.WithLabelValues(kind.String(), m).Inc()
	h.fetchedKeys.WithLabelValues(kind.String(), m).Add(float64(requested))
	h.storedRows.WithLabelValues(kind.String(), m).Add(float64(stored))
}

func (h *Hooks) OriginFailed(kind metacache.Kind, _ int, background bool, _ error) {
	h.failures.WithLabelValues(kind.String(), mode(background)).Inc()
}

func (h *Hooks) RefreshScheduled(kind metacache.Kind, keys []string) {
	h.refreshKeys.WithLabelValues(kind.String(), "scheduled").Add(float64(len(keys)))
}

func (h *Hooks) RefreshDropped(kind metacache.Kind, keys []string) {
	h.refreshKeys.WithLabelValues(kind.String(), "dropped").Add(float64(len(keys)))
}

func (h *Hooks) HashFailed(string, error) { h.hashFailures.Inc() }
