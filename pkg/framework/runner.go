package framework

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runner runs multiple Runnables and collect errors.
type Runner struct {
	Context context.Context

	count  int
	wg     sync.WaitGroup
	errs   AggregatedError
	lock   sync.Mutex
	exitCh chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		exitCh:  make(chan struct{}),
	}
}

// HandleSignals handles CtrlC and SIGTERM from the system.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		<-sigCh
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go spawns Runnables with default context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	return r.GoWith(r.Context, runners...)
}

// GoWith spawns Runnables with a specified context. Errors other
// than context.Canceled are collected and reported by Wait.
func (r *Runner) GoWith(ctx context.Context, runners ...Runnable) *Runner {
	for _, runner := range runners {
		r.lock.Lock()
		var name string
		if named, ok := runner.(Named); ok {
			name = named.Name()
		} else {
			name = strconv.Itoa(r.count)
		}
		r.count++
		r.lock.Unlock()
		r.wg.Add(1)
		glog.V(4).Infof("start Runner[%s]", name)
		go func(runner Runnable, name string) {
			defer r.wg.Done()
			err := runner.Run(ctx)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			if err != nil && err != context.Canceled {
				r.lock.Lock()
				r.errs.Add(fmt.Errorf("%s: %w", name, err))
				r.lock.Unlock()
			}
		}(runner, name)
	}
	return r
}

// Wait waits until all Runnables stop and aggregates errors.
func (r *Runner) Wait() error {
	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-r.exitCh:
		return errors.New("forced exit")
	case <-doneCh:
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.errs.Aggregate()
}
