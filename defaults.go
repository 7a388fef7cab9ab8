package metacache

const (
	defaultHashConcurrency = 16
	defaultRefreshWorkers  = 2
	defaultRefreshQueue    = 256

	// read size when hashing local files
	hashChunkSize = 256 << 10
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
