package sessionauth

import (
	"io"

	"github.com/nexustalent/sessionauth/internal/audit"
)

// AuditEvent is one login or logout audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards events into a buffered channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// LoggerSink writes events through a Logger.
type LoggerSink = audit.LoggerSink

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLoggerSink returns a sink writing structured log lines to log.
func NewLoggerSink(log Logger) *LoggerSink {
	return audit.NewLoggerSink(log)
}
