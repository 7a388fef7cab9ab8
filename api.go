package metacache

import (
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"
)

// Options configure a Cache. Only Store and Origin are required; others have
// sensible defaults.
type Options struct {
	// Required
	Store  Store
	Origin Origin

	// Files is the profiles root content hashes are computed under.
	// If nil, ContentHash lookups that miss the store fail with an OriginError.
	Files billy.Filesystem

	Logger          Logger           // if nil, NopLogger is used
	Hooks           Hooks            // if nil, NopHooks is used
	HashConcurrency int              // concurrent file reads when hashing; 0 => 16
	RefreshWorkers  int              // background refresh workers; 0 => 2
	RefreshQueue    int              // pending refresh jobs before drops; 0 => 256
	MaxPayloadBytes int              // stored payloads above this are discarded on read; 0 => unlimited
	Now             func() time.Time // clock; nil => time.Now
}

func New(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("metacache: store is required")
	}
	if opts.Origin == nil {
		return nil, fmt.Errorf("metacache: origin is required")
	}
	if opts.HashConcurrency < 0 || opts.RefreshWorkers < 0 || opts.RefreshQueue < 0 || opts.MaxPayloadBytes < 0 {
		return nil, fmt.Errorf("metacache: negative limits are not allowed")
	}

	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	disp := &dispatcher{
		origin:    opts.Origin,
		files:     opts.Files,
		hashLimit: coalesce(opts.HashConcurrency, defaultHashConcurrency),
		log:       log,
		hooks:     hooks,
		now:       now,
	}
	c := &Cache{
		store:      opts.Store,
		disp:       disp,
		log:        log,
		hooks:      hooks,
		now:        now,
		maxPayload: opts.MaxPayloadBytes,
	}
	c.refresh = newRefresher(opts.Store, disp, log, hooks,
		coalesce(opts.RefreshWorkers, defaultRefreshWorkers),
		coalesce(opts.RefreshQueue, defaultRefreshQueue))
	return c, nil
}
