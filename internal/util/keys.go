package util

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// JobKey returns a deterministic key for a set of members: order and
// duplicates do not change it.
func JobKey(prefix string, keys []string) string {
	s := slices.Clone(keys)
	slices.Sort(s)
	s = slices.Compact(s)

	h := sha256.New()
	for _, k := range s {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))[:16] // prefix + ":" + first 16 hex chars
}
