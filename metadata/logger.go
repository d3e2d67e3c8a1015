package metadata

import (
	"sync"

	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/metadata/internal/cursor"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the metadata package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the metadata package's logger and the logger of the
// decoding primitives underneath it.
func SetLogger(l *zap.Logger) {
	logger = l
	cursor.SetLogger(l)
}
