package audit

import (
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	enabled atomic.Bool
	logger  atomic.Pointer[logrus.Logger]
)

func init() {
	RefreshFromEnv()
}

// Log writes an audit line at info level, tagged audit=true, when auditing is
// enabled (FLEXMAILER_DEBUG=1). It does not depend on the debug log level.
func Log(format string, args ...any) {
	if !enabled.Load() {
		return
	}
	l := logger.Load()
	if l == nil {
		l = logrus.StandardLogger()
	}
	l.WithField("audit", true).Infof(format, args...)
}

// SetLogger routes audit messages to l.
func SetLogger(l *logrus.Logger) {
	logger.Store(l)
}

// Set enables or disables auditing.
func Set(v bool) {
	enabled.Store(v)
}

// Enabled reports whether auditing is on.
func Enabled() bool {
	return enabled.Load()
}

// RefreshFromEnv re-reads FLEXMAILER_DEBUG.
func RefreshFromEnv() {
	enabled.Store(os.Getenv("FLEXMAILER_DEBUG") == "1")
}
