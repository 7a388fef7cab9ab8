package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/metacache"
)

var _ metacache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New wraps a logger; l nil => logrus.StandardLogger().
func New(l *logrus.Logger) LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return LogrusLogger{E: logrus.NewEntry(l).WithField("component", "metacache")}
}

func (l LogrusLogger) Debug(msg string, f metacache.Fields) { l.log(logrus.DebugLevel, msg, f) }
func (l LogrusLogger) Info(msg string, f metacache.Fields)  { l.log(logrus.InfoLevel, msg, f) }
func (l LogrusLogger) Warn(msg string, f metacache.Fields)  { l.log(logrus.WarnLevel, msg, f) }
func (l LogrusLogger) Error(msg string, f metacache.Fields) { l.log(logrus.ErrorLevel, msg, f) }

func (l LogrusLogger) log(lvl logrus.Level, msg string, f metacache.Fields) {
	if l.E == nil || !l.E.Logger.IsLevelEnabled(lvl) {
		return
	}
	e := l.E
	if len(f) > 0 {
		fields := make(logrus.Fields, len(f))
		for k, v := range f {
			// "err" is rendered through logrus.ErrorKey
			if k == "err" {
				k = logrus.ErrorKey
			}
			fields[k] = v
		}
		e = e.WithFields(fields)
	}
	e.Log(lvl, msg)
}
