package transport

import (
	"log/slog"

	"github.com/teslashibe/go-piar/internal/log"
)

// Log is a dry-run transport that only logs messages.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging transport.
func NewLog() *Log {
	return &Log{logger: log.Component("transport")}
}

// Send logs msg at info level.
func (l *Log) Send(msg string) error {
	l.logger.Info("report", "message", msg, "dry_run", true)
	return nil
}
