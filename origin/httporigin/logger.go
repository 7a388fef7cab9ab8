package httporigin

import (
	"fmt"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/unkn0wn-root/metacache"
)

// leveled adapts metacache.Logger to retryablehttp.LeveledLogger.
type leveled struct{ l metacache.Logger }

var _ retryablehttp.LeveledLogger = leveled{}

func (b leveled) Error(msg string, kv ...any) { b.l.Error(msg, fields(kv)) }
func (b leveled) Info(msg string, kv ...any)  { b.l.Info(msg, fields(kv)) }
func (b leveled) Debug(msg string, kv ...any) { b.l.Debug(msg, fields(kv)) }
func (b leveled) Warn(msg string, kv ...any)  { b.l.Warn(msg, fields(kv)) }

func fields(kv []any) metacache.Fields {
	f := make(metacache.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		f[k] = kv[i+1]
	}
	return f
}
