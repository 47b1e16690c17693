package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// Timings are the reveal pauses. They are best-effort defaults.
type Timings struct {
	AfterLayout   time.Duration
	BetweenNodes  time.Duration
	BetweenPhases time.Duration
	BetweenEdges  time.Duration
}

// DefaultTimings paces a reveal for a browser canvas.
func DefaultTimings() Timings {
	return Timings{
		AfterLayout:   150 * time.Millisecond,
		BetweenNodes:  200 * time.Millisecond,
		BetweenPhases: 300 * time.Millisecond,
		BetweenEdges:  100 * time.Millisecond,
	}
}

// NoPacing emits reveal events back to back, for non-interactive consumers.
var NoPacing = Timings{}

// Emitter writes protocol events to a Sink. After a terminal event it
// drops everything else.
type Emitter struct {
	sink    Sink
	timings Timings
	logger  *slog.Logger
	done    bool
	sent    int
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithTimings sets the reveal pacing.
func WithTimings(t Timings) EmitterOption {
	return func(e *Emitter) {
		e.timings = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// NewEmitter returns an Emitter using DefaultTimings.
func NewEmitter(sink Sink, opts ...EmitterOption) *Emitter {
	e := &Emitter{sink: sink, timings: DefaultTimings()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Emit sends ev.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	if e.done {
		return nil
	}
	if err := e.sink.Send(ctx, ev); err != nil {
		e.done = true
		e.logger.Debug("stream consumer gone",
			slog.String("tag", string(ev.Tag)),
			slog.String("error", err.Error()),
		)
		return err
	}
	e.sent++
	if ev.Tag.Terminal() {
		e.done = true
	}
	return nil
}

// Done reports whether a terminal event was sent or the sink failed.
func (e *Emitter) Done() bool {
	return e.done
}

// Sent returns how many events were delivered.
func (e *Emitter) Sent() int {
	return e.sent
}

// Layout sends the LAYOUT_DATA event carrying v as JSON.
func (e *Emitter) Layout(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode layout data: %w", err)
	}
	return e.Emit(ctx, Event{Tag: TagLayoutData, Payload: string(data)})
}

// Reveal sends the post-generation sequence for g: LAYOUT_DATA, RESULT,
// one NODE_SHOW per node then one EDGE_SHOW per edge, in graph order,
// with the configured pauses. It does not send END.
func (e *Emitter) Reveal(ctx context.Context, g model.Graph) error {
	if err := e.Layout(ctx, g); err != nil {
		return err
	}
	if err := e.Emit(ctx, Result(len(g.Nodes), len(g.Edges))); err != nil {
		return err
	}
	if err := sleep(ctx, e.timings.AfterLayout); err != nil {
		return err
	}

	for i, n := range g.Nodes {
		if i > 0 {
			if err := sleep(ctx, e.timings.BetweenNodes); err != nil {
				return err
			}
		}
		if err := e.Emit(ctx, Event{Tag: TagNodeShow, Payload: n.ID}); err != nil {
			return err
		}
	}

	if len(g.Edges) > 0 {
		if err := sleep(ctx, e.timings.BetweenPhases); err != nil {
			return err
		}
	}
	for i, edge := range g.Edges {
		if i > 0 {
			if err := sleep(ctx, e.timings.BetweenEdges); err != nil {
				return err
			}
		}
		if err := e.Emit(ctx, Event{Tag: TagEdgeShow, Payload: edge.ID}); err != nil {
			return err
		}
	}
	return nil
}

// Fail sends an ERROR event unless the stream already ended. The event
// is written with a fresh context so a cancelled request still learns why.
func (e *Emitter) Fail(err error) {
	if e.done || err == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = e.Emit(ctx, Error(err))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
