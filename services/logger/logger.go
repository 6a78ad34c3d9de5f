package logsvc

import (
	"io"
	"log"
	"os"

	"github.com/trezcool/masomo-chat/core"
)

// New returns a RollbarLogger writing to stdout with the given prefix ("API", "DB", ...).
// Reporting to Rollbar is disabled in debug mode.
func New(prefix string, conf *core.Config) *RollbarLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	if conf.Debug {
		flags |= log.Lshortfile
	}
	logger := NewRollbarLogger(log.New(os.Stdout, prefix+" : ", flags), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

// NewDiscard returns a logger that reports nowhere, for tests.
func NewDiscard(conf *core.Config) *RollbarLogger {
	logger := NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}
