package metacache

// Discard reasons passed to Hooks.EntryDiscarded.
const (
	ReasonDecode      = "decode"
	ReasonKeyMismatch = "key_mismatch"
	ReasonExpired     = "expired"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths and from refresh workers.
type Hooks interface {
	// A stored row was not served.
	// reason ∈ {"decode", "key_mismatch", "expired"}
	EntryDiscarded(kind Kind, id, reason string)

	// An origin dispatch completed. stored counts written entries, side
	// entries included.
	OriginFetched(kind Kind, requested, stored int, background bool)

	// An origin dispatch or its write-through failed.
	OriginFailed(kind Kind, requested int, background bool, err error)

	// Stale keys were queued for refresh, or dropped because the queue was full
	// or the cache was closing.
	RefreshScheduled(kind Kind, keys []string)
	RefreshDropped(kind Kind, keys []string)

	// A local file could not be hashed. The key is omitted from the batch.
	HashFailed(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) EntryDiscarded(Kind, string, string) {}
func (NopHooks) OriginFetched(Kind, int, int, bool)  {}
func (NopHooks) OriginFailed(Kind, int, bool, error) {}
func (NopHooks) RefreshScheduled(Kind, []string)     {}
func (NopHooks) RefreshDropped(Kind, []string)       {}
func (NopHooks) HashFailed(string, error)            {}
