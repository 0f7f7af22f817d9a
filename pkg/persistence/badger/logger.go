package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// storeLogger routes badger's internal logging through the store's zap logger,
// tagged with the database path so several stores in one process stay apart.
type storeLogger struct {
	logger *zap.SugaredLogger
}

var _ badgerdb.Logger = (*storeLogger)(nil)

func newStoreLogger(logger *zap.Logger, dataPath string) *storeLogger {
	return &storeLogger{
		logger: logger.Named("badger").With(
			zap.String("component", "authorization-store"),
			zap.String("path", dataPath),
		).Sugar(),
	}
}

// badger terminates most messages with a newline
func message(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func (s *storeLogger) Errorf(format string, args ...interface{}) {
	s.logger.Error(message(format, args))
}

func (s *storeLogger) Warningf(format string, args ...interface{}) {
	s.logger.Warn(message(format, args))
}

// Infof is demoted to debug: badger reports every table replay and compaction at info.
func (s *storeLogger) Infof(format string, args ...interface{}) {
	s.logger.Debug(message(format, args))
}

func (s *storeLogger) Debugf(format string, args ...interface{}) {
	s.logger.Debug(message(format, args))
}
