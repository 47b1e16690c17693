package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// SetSSEHeaders prepares w for an event stream.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Sink receives events. Send returns an error once the consumer is gone;
// producers stop on the first error.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// WriterSink writes SSE frames to an io.Writer, flushing after each frame
// when the writer supports it.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink over w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Send implements Sink.
func (s *WriterSink) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(ev.Frame()); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Tag, err)
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Recorder is a Sink that keeps every event. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Send implements Sink.
func (r *Recorder) Send(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Tags returns the recorded tags in order.
func (r *Recorder) Tags() []Tag {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Tag, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Tag
	}
	return out
}

// ParseEvents reads SSE frames from r until EOF.
func ParseEvents(r io.Reader) ([]Event, error) {
	var (
		events []Event
		data   []string
	)
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		ev, err := ParseEvent(strings.Join(data, "\n"))
		data = data[:0]
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch {
		case line == "":
			if err := flush(); err != nil {
				return events, err
			}
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read events: %w", err)
	}
	return events, flush()
}
