package diagramflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter is a minimal state for engine tests.
type counter struct {
	Value int
	Trail []string
}

func increment(_ Context, s counter) (counter, error) {
	s.Value++
	return s, nil
}

func tracking(name string) StageFunc[counter] {
	return func(_ Context, s counter) (counter, error) {
		s.Trail = append(s.Trail, name)
		return s, nil
	}
}

func testCtx() Context {
	return NewContext(context.Background())
}

// recordingMetrics captures stage and generation metrics.
type recordingMetrics struct {
	mu          sync.Mutex
	stages      []string
	stageErrs   int
	generations []string
	successes   []bool
	safeModes   []string
	sizes       []int64
}

func (m *recordingMetrics) RecordStage(_ context.Context, stage string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
	if err != nil {
		m.stageErrs++
	}
}

func (m *recordingMetrics) RecordGeneration(_ context.Context, mode string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations = append(m.generations, mode)
	m.successes = append(m.successes, success)
}

func (m *recordingMetrics) RecordSafeMode(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.safeModes = append(m.safeModes, reason)
}

func (m *recordingMetrics) RecordSessionSize(_ context.Context, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = append(m.sizes, n)
}

func TestAddStage_Panics(t *testing.T) {
	tests := map[string]func(){
		"empty id":   func() { NewPipeline[counter]().AddStage("", increment) },
		"END":        func() { NewPipeline[counter]().AddStage("END", increment) },
		"end marker": func() { NewPipeline[counter]().AddStage(End, increment) },
		"whitespace": func() { NewPipeline[counter]().AddStage("a b", increment) },
		"nil func":   func() { NewPipeline[counter]().AddStage("a", nil) },
		"duplicate":  func() { NewPipeline[counter]().AddStage("a", increment).AddStage("a", increment) },
		"nil router": func() { NewPipeline[counter]().AddConditionalEdge("a", nil) },
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, fn)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	t.Run("no entry", func(t *testing.T) {
		_, err := NewPipeline[counter]().
			AddStage("a", increment).
			AddEdge("a", End).
			Compile()
		assert.ErrorIs(t, err, ErrNoEntryPoint)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := NewPipeline[counter]().
			AddStage("a", increment).
			AddEdge("a", End).
			SetEntry("missing").
			Compile()
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("unknown edge target and no path", func(t *testing.T) {
		_, err := NewPipeline[counter]().
			AddStage("a", increment).
			AddEdge("a", "ghost").
			SetEntry("a").
			Compile()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStageNotFound)
		assert.ErrorIs(t, err, ErrNoPathToEnd)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("unknown router source", func(t *testing.T) {
		_, err := NewPipeline[counter]().
			AddStage("a", increment).
			AddEdge("a", End).
			AddConditionalEdge("ghost", func(Context, counter) string { return End }).
			SetEntry("a").
			Compile()
		assert.ErrorIs(t, err, ErrStageNotFound)
	})
}

func TestCompile_Introspection(t *testing.T) {
	cp, err := NewPipeline[counter]().
		AddStage("a", increment).
		AddStage("b", increment).
		AddStage("c", increment).
		AddEdge("a", "b").
		AddEdge("a", "c").
		AddEdge("b", End).
		AddConditionalEdge("c", func(Context, counter) string { return End }).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	assert.Equal(t, "a", cp.EntryPoint())
	assert.Equal(t, []string{"a", "b", "c"}, cp.StageIDs())
	assert.True(t, cp.HasStage("b"))
	assert.False(t, cp.HasStage(End))
	assert.Equal(t, []string{"b", "c"}, cp.Successors("a"))
	assert.Nil(t, cp.Successors(End))
	assert.Equal(t, []string{"a"}, cp.Predecessors("c"))
	assert.True(t, cp.IsConditional("c"))
	assert.False(t, cp.IsConditional("a"))
}

func TestRun_Linear(t *testing.T) {
	cp, err := NewPipeline[counter]().
		AddStage("one", tracking("one")).
		AddStage("two", tracking("two")).
		AddStage("three", tracking("three")).
		AddEdge("one", "two").
		AddEdge("two", "three").
		AddEdge("three", End).
		SetEntry("one").
		Compile()
	require.NoError(t, err)

	out, err := cp.Run(testCtx(), counter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, out.Trail)
}

func TestRun_RouterLoop(t *testing.T) {
	cp, err := NewPipeline[counter]().
		AddStage("inc", increment).
		AddConditionalEdge("inc", func(_ Context, s counter) string {
			if s.Value < 3 {
				return "inc"
			}
			return End
		}).
		SetEntry("inc").
		Compile()
	require.NoError(t, err)

	out, err := cp.Run(testCtx(), counter{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Value)
}

func TestRun_MaxIterations(t *testing.T) {
	cp, err := NewPipeline[counter]().
		AddStage("spin", increment).
		AddConditionalEdge("spin", func(Context, counter) string { return "spin" }).
		SetEntry("spin").
		Compile()
	require.NoError(t, err)

	out, err := cp.Run(testCtx(), counter{}, WithMaxIterations(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxIterations)

	var maxErr *MaxIterationsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 5, maxErr.Max)
	assert.Equal(t, "spin", maxErr.LastStage)
	assert.Equal(t, 5, out.Value)
	assert.Equal(t, "spin", FailedStage(err))
}

func TestRun_RouterErrors(t *testing.T) {
	build := func(to string) *CompiledPipeline[counter] {
		cp, err := NewPipeline[counter]().
			AddStage("a", increment).
			AddConditionalEdge("a", func(Context, counter) string { return to }).
			SetEntry("a").
			Compile()
		require.NoError(t, err)
		return cp
	}

	_, err := build("").Run(testCtx(), counter{})
	assert.ErrorIs(t, err, ErrInvalidRouterResult)

	_, err = build("nowhere").Run(testCtx(), counter{})
	assert.ErrorIs(t, err, ErrRouterTargetNotFound)
	var routerErr *RouterError
	require.ErrorAs(t, err, &routerErr)
	assert.Equal(t, "nowhere", routerErr.Returned)
	assert.Equal(t, "a", FailedStage(err))
}

func TestRun_StageErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	cp, err := NewPipeline[counter]().
		AddStage("a", increment).
		AddStage("b", func(_ Context, s counter) (counter, error) { return s, boom }).
		AddEdge("a", "b").
		AddEdge("b", End).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	out, err := cp.Run(testCtx(), counter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, out.Value)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "b", stageErr.Stage)
	assert.Equal(t, "execute", stageErr.Op)
}

func TestRun_PanicRecovered(t *testing.T) {
	cp, err := NewPipeline[counter]().
		AddStage("a", func(Context, counter) (counter, error) { panic("kaboom") }).
		AddEdge("a", End).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	_, err = cp.Run(testCtx(), counter{Value: 7})
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "a", panicErr.Stage)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestRun_CancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cp, err := NewPipeline[counter]().
		AddStage("a", func(_ Context, s counter) (counter, error) {
			cancel()
			s.Value++
			return s, nil
		}).
		AddStage("b", increment).
		AddEdge("a", "b").
		AddEdge("b", End).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	out, err := cp.Run(NewContext(ctx), counter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.Equal(t, "b", cancelErr.Stage)
	assert.Equal(t, 1, out.Value)
}

func TestRun_NilContext(t *testing.T) {
	cp, err := NewPipeline[counter]().
		AddStage("a", increment).
		AddEdge("a", End).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	_, err = cp.Run(nil, counter{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRun_StageContext(t *testing.T) {
	var stage, runID string
	cp, err := NewPipeline[counter]().
		AddStage("look", func(ctx Context, s counter) (counter, error) {
			stage, runID = ctx.Stage(), ctx.RunID()
			assert.NotNil(t, ctx.Logger())
			return s, nil
		}).
		AddEdge("look", End).
		SetEntry("look").
		Compile()
	require.NoError(t, err)

	_, err = cp.Run(NewContext(context.Background(), WithRunID("run-1")), counter{})
	require.NoError(t, err)
	assert.Equal(t, "look", stage)
	assert.Equal(t, "run-1", runID)
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := &recordingMetrics{}
	cp, err := NewPipeline[counter]().
		AddStage("a", increment).
		AddStage("b", func(_ Context, s counter) (counter, error) { return s, errors.New("nope") }).
		AddEdge("a", "b").
		AddEdge("b", End).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	_, err = cp.Run(testCtx(), counter{}, WithMetrics(m), WithMode("flow"))
	require.Error(t, err)

	assert.Equal(t, []string{"a", "b"}, m.stages)
	assert.Equal(t, 1, m.stageErrs)
	assert.Equal(t, []string{"flow"}, m.generations)
	assert.Equal(t, []bool{false}, m.successes)
}

func TestRun_ConcurrentRuns(t *testing.T) {
	cp, err := NewPipeline[counter]().
		AddStage("inc", increment).
		AddEdge("inc", End).
		SetEntry("inc").
		Compile()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := cp.Run(testCtx(), counter{Value: i})
			assert.NoError(t, err)
			assert.Equal(t, i+1, out.Value)
		}()
	}
	wg.Wait()
}
