package audit

import (
	"context"
	"encoding/json"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nexustalent/sessionauth/internal/logging"
)

// Event records one login, logout or failed attempt. Passwords and
// credentials never appear in it.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IP        string            `json:"ip,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// attrs flattens e into slog key-value pairs, skipping empty fields.
// Metadata keys are sorted and prefixed with "meta.".
func (e Event) attrs() []any {
	out := []any{"event_type", e.EventType, "success", e.Success}
	add := func(k, v string) {
		if v != "" {
			out = append(out, k, v)
		}
	}
	add("user_id", e.UserID)
	add("email", e.Email)
	add("ip", e.IP)
	add("request_id", e.RequestID)
	add("error", e.Error)
	for _, k := range slices.Sorted(maps.Keys(e.Metadata)) {
		out = append(out, "meta."+k, e.Metadata[k])
	}
	return out
}

// Sink receives audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer through a buffered channel.
type ChannelSink struct {
	ch chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, max(buffer, 1))}
}

// Emit blocks while the buffer is full and gives up once ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.ch <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.ch }

// JSONWriterSink writes newline-delimited JSON.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}

// LoggerSink logs successes at info and everything else at warn.
type LoggerSink struct {
	log logging.Logger
}

func NewLoggerSink(log logging.Logger) *LoggerSink {
	if log == nil {
		log = logging.Nop()
	}
	return &LoggerSink{log: log.With("component", "audit")}
}

func (s *LoggerSink) Emit(ctx context.Context, event Event) {
	logf := s.log.Warn
	if event.Success {
		logf = s.log.Info
	}
	logf(ctx, "audit", event.attrs()...)
}
