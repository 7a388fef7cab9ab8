package metacache

import "context"

// Store persists entries keyed by (ID, Kind).
// Implementations must be safe for concurrent reads and writes; concurrent
// upserts of the same key resolve last-writer-wins.
type Store interface {
	// Find returns rows of kind whose ID or alias is in keys. Aliases of kinds
	// with Kind.FoldAlias match case-insensitively. Expired rows are returned.
	Find(ctx context.Context, kind Kind, keys []string) ([]Entry, error)

	// Upsert writes entries in one atomic batch, inserting new rows and
	// overwriting Alias, Payload and ExpiresAt of existing ones.
	Upsert(ctx context.Context, entries []Entry) error
}
