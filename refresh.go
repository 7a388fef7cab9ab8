package metacache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/metacache/internal/util"
)

type refreshJob struct {
	kind Kind
	keys []string
}

// refresher runs background refresh jobs on a fixed set of workers. It owns
// the store and dispatcher it was built with; callers never wait on it.
type refresher struct {
	store Store
	disp  *dispatcher
	log   Logger
	hooks Hooks

	jobs   chan refreshJob
	flight singleflight.Group
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // guards closed and sends on jobs
	closed bool
}

func newRefresher(store Store, disp *dispatcher, log Logger, hooks Hooks, workers, queue int) *refresher {
	ctx, cancel := context.WithCancel(context.Background())
	r := &refresher{
		store:  store,
		disp:   disp,
		log:    log,
		hooks:  hooks,
		jobs:   make(chan refreshJob, queue),
		ctx:    ctx,
		cancel: cancel,
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.loop()
	}
	return r
}

// schedule enqueues a job without blocking. A full queue or a closed
// refresher drops the job; the entries stay stale and are retried on a later read.
func (r *refresher) schedule(kind Kind, keys []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.hooks.RefreshDropped(kind, keys)
		return false
	}
	select {
	case r.jobs <- refreshJob{kind: kind, keys: keys}:
		r.hooks.RefreshScheduled(kind, keys)
		return true
	default:
		r.hooks.RefreshDropped(kind, keys)
		r.log.Warn("refresh queue full; job dropped", Fields{"kind": kind.String(), "keys": len(keys)})
		return false
	}
}

func (r *refresher) loop() {
	defer r.wg.Done()
	for job := range r.jobs {
		if r.ctx.Err() != nil {
			r.hooks.RefreshDropped(job.kind, job.keys)
			continue
		}
		r.run(job)
	}
}

// run executes a job. Identical jobs running at the same time share one
// origin round trip.
func (r *refresher) run(job refreshJob) {
	_, err, shared := r.flight.Do(util.JobKey(job.kind.String(), job.keys), func() (any, error) {
		return nil, r.refresh(job)
	})
	if shared {
		r.log.Debug("refresh shared with in-flight job", Fields{"kind": job.kind.String(), "keys": len(job.keys)})
	}
	if err != nil {
		r.log.Warn("background refresh failed", Fields{"kind": job.kind.String(), "keys": len(job.keys), "err": err})
	}
}

func (r *refresher) refresh(job refreshJob) error {
	_, all, err := r.disp.fetch(r.ctx, job.kind, job.keys)
	if err == nil && len(all) > 0 {
		if uerr := r.store.Upsert(r.ctx, all); uerr != nil {
			err = &StoreError{Op: OpUpsert, Kind: job.kind, Err: uerr}
		}
	}
	if err != nil {
		r.hooks.OriginFailed(job.kind, len(job.keys), true, err)
		return err
	}
	r.hooks.OriginFetched(job.kind, len(job.keys), len(all), true)
	return nil
}

// close stops accepting jobs and drains the queue. If ctx ends first, jobs
// in flight are cancelled and the rest are dropped.
func (r *refresher) close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
