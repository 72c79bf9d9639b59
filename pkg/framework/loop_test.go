package framework

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testEvent struct {
	src int
	seq int
}

func (e *testEvent) EventName() string { return "test" }

type stopEvent struct{}

func (e *stopEvent) EventName() string { return "stop" }

func TestLoopOrderAndExclusion(t *testing.T) {
	const producers, count = 4, 100

	var running int32
	seen := make([][]int, producers)
	doneCh := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := NewLoop().AddHandler(HandleEventFunc(func(ctx context.Context, ev Event) error {
		require.Equal(t, int32(1), atomic.AddInt32(&running, 1), "handlers overlapped")
		defer atomic.AddInt32(&running, -1)
		switch e := ev.(type) {
		case *testEvent:
			seen[e.src] = append(seen[e.src], e.seq)
		case *stopEvent:
			close(doneCh)
		}
		return nil
	}))
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for n := 0; n < count; n++ {
				loop.PostEvent(&testEvent{src: p, seq: n})
			}
		}(p)
	}
	wg.Wait()
	loop.PostEvent(&stopEvent{})

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}
	for p := 0; p < producers; p++ {
		require.Len(t, seen[p], count)
		for n, seq := range seen[p] {
			require.Equal(t, n, seq)
		}
	}
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestLoopGoFromHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resultCh := make(chan string, 1)
	loop := NewLoop()
	loop.AddHandler(HandleEventFunc(func(ctx context.Context, ev Event) error {
		switch ev.(type) {
		case *testEvent:
			LoopCtlFrom(ctx).Go(RunFunc(func(ctx context.Context) error {
				LoopCtlFrom(ctx).PostEvent(&stopEvent{})
				return nil
			}))
		case *stopEvent:
			resultCh <- "stopped"
		}
		return nil
	}))
	go loop.Run(ctx)
	loop.PostEvent(&testEvent{})
	select {
	case r := <-resultCh:
		require.Equal(t, "stopped", r)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestRunnerCollectsErrors(t *testing.T) {
	r := NewRunner()
	r.Go(
		NamedRun("ok", RunFunc(func(context.Context) error { return nil })),
		NamedRun("canceled", RunFunc(func(context.Context) error { return context.Canceled })),
		NamedRun("bad", RunFunc(func(context.Context) error { return errors.New("boom") })),
	)
	err := r.Wait()
	require.Error(t, err)
	require.Equal(t, "bad: boom", err.Error())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, nil).Aggregate())
	errs.Add(errors.New("a"), nil, errors.New("b"))
	require.Equal(t, "Multiple errors:\na\nb", errs.Aggregate().Error())
}
