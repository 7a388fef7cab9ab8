package metacache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entry is the persisted record. Storage identity is (ID, Kind).
type Entry struct {
	ID        string          `json:"id"`
	Alias     string          `json:"alias,omitempty"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`

	// Value is the decoded payload. Set on entries returned by the cache,
	// ignored by stores.
	Value Value `json:"-"`
}

// NewEntry encodes v and stamps it with the freshness of its kind.
func NewEntry(v Value, now time.Time) (Entry, error) {
	if v == nil {
		return Entry{}, fmt.Errorf("metacache: nil value")
	}
	k := v.Kind()
	if !k.Valid() {
		return Entry{}, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("metacache: encode %s %q: %w", k, v.PrimaryKey(), err)
	}
	alias, _ := v.Alias()
	return Entry{
		ID:        v.PrimaryKey(),
		Alias:     alias,
		Kind:      k,
		Payload:   payload,
		ExpiresAt: now.Add(k.Freshness()),
		Value:     v,
	}, nil
}

// Fresh reports whether the entry is still within its freshness window.
func (e Entry) Fresh(now time.Time) bool { return e.ExpiresAt.After(now) }

// Matches reports whether key addresses this entry by id or alias.
func (e Entry) Matches(key string) bool {
	if e.ID == key {
		return true
	}
	if e.Alias == "" {
		return false
	}
	if e.Kind.FoldAlias() {
		return strings.EqualFold(e.Alias, key)
	}
	return e.Alias == key
}

// AliasKey normalizes an alias for lookups against kind k. Stores that
// index aliases use it on both the write and the read side.
func AliasKey(k Kind, alias string) string {
	if k.FoldAlias() {
		return strings.ToLower(alias)
	}
	return alias
}
