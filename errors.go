package metacache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by reads and writes issued after Close.
var ErrClosed = errors.New("metacache: cache closed")

// Store operations reported in StoreError.Op.
const (
	OpFind   = "find"
	OpUpsert = "upsert"
)

// StoreError wraps a failure of the backing store.
type StoreError struct {
	Op   string
	Kind Kind // zero for multi-kind upserts
	Err  error
}

func (e *StoreError) Error() string {
	if e.Kind.Valid() {
		return fmt.Sprintf("metacache: store %s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("metacache: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// OriginError wraps a transport or decode failure talking to the origin.
type OriginError struct {
	Kind Kind
	Keys []string
	Err  error
}

func (e *OriginError) Error() string {
	const maxShown = 5
	keys := e.Keys
	more := ""
	if len(keys) > maxShown {
		more = fmt.Sprintf(" (+%d more)", len(keys)-maxShown)
		keys = keys[:maxShown]
	}
	return fmt.Sprintf("metacache: origin %s [%s%s]: %v", e.Kind, strings.Join(keys, ","), more, e.Err)
}

func (e *OriginError) Unwrap() error { return e.Err }
