package metacache

import (
	"errors"
	"fmt"
	"strings"
)

// Behaviour selects how a read treats stored entries. It is a per-call
// parameter and is never persisted.
type Behaviour uint8

const (
	// StaleWhileRevalidate serves expired entries and refreshes them in the
	// background. It is the zero value.
	StaleWhileRevalidate Behaviour = iota
	// MustRevalidate never serves an expired entry; expired keys are fetched
	// synchronously.
	MustRevalidate
	// Bypass skips the store read entirely and always fetches from origin.
	Bypass
	// StaleIfOffline behaves like StaleWhileRevalidate, and in addition a
	// failed synchronous fetch is swallowed: the call returns what the store
	// had and the unresolved keys are queued for background refresh.
	StaleIfOffline
)

var ErrInvalidBehaviour = errors.New("metacache: invalid behaviour")

var behaviourNames = [...]string{
	StaleWhileRevalidate: "stale_while_revalidate",
	MustRevalidate:       "must_revalidate",
	Bypass:               "bypass",
	StaleIfOffline:       "stale_if_offline",
}

func (b Behaviour) String() string {
	if int(b) >= len(behaviourNames) {
		return fmt.Sprintf("behaviour(%d)", uint8(b))
	}
	return behaviourNames[b]
}

// ParseBehaviour accepts the names returned by String, case-insensitively,
// with '-' and '_' treated alike. The empty string is StaleWhileRevalidate.
func ParseBehaviour(s string) (Behaviour, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if n == "" {
		return StaleWhileRevalidate, nil
	}
	for i, name := range behaviourNames {
		if name == n {
			return Behaviour(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBehaviour, s)
}

func (b Behaviour) MarshalText() ([]byte, error) {
	if int(b) >= len(behaviourNames) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBehaviour, uint8(b))
	}
	return []byte(behaviourNames[b]), nil
}

func (b *Behaviour) UnmarshalText(text []byte) error {
	v, err := ParseBehaviour(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b Behaviour) readsStore() bool { return b != Bypass }

func (b Behaviour) servesStale() bool {
	return b == StaleWhileRevalidate || b == StaleIfOffline
}
