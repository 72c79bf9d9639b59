package framework

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// Loop is a single-threaded event processor. Events posted from any
// goroutine are handled one at a time in arrival order, so handlers
// never run concurrently and need no locking for the state they own.
type Loop struct {
	handlers []EventHandler
	runners  []Runnable

	events eventList
	lock   sync.Mutex

	runner   *Runner
	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type eventList struct {
	head *eventItem
	tail *eventItem
}

type eventItem struct {
	ev   Event
	next *eventItem
}

func (l *eventList) append(item *eventItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
}

func (l *eventList) splice(src *eventList) {
	l.head, l.tail = src.head, src.tail
	src.head, src.tail = nil, nil
}

var (
	loopCtxKey = &Loop{}
)

// LoopCtlFrom gets LoopControl from context.
func LoopCtlFrom(ctx context.Context) LoopControl {
	return ctx.Value(loopCtxKey).(LoopControl)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{wakeUpCh: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddHandler registers event handlers. A handler which is also
// a Runnable is started together with the loop.
func (l *Loop) AddHandler(handlers ...EventHandler) *Loop {
	l.handlers = append(l.handlers, handlers...)
	for _, h := range handlers {
		if runner, ok := h.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementations started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// PostEvent implements EventPoster.
func (l *Loop) PostEvent(ev Event) {
	l.lock.Lock()
	l.events.append(&eventItem{ev: ev})
	l.lock.Unlock()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Go implements LoopControl. It must be called from the loop goroutine
// (inside a handler) or before Run.
func (l *Loop) Go(runnables ...Runnable) {
	if l.runner == nil {
		l.runners = append(l.runners, runnables...)
		return
	}
	l.runner.Go(runnables...)
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	l.runner = NewRunnerWith(context.WithValue(ctx, loopCtxKey, LoopControl(l)))
	l.runner.Go(l.runners...)

	hctx := context.WithValue(ctx, loopCtxKey, LoopControl(l))
	for {
		select {
		case <-ctx.Done():
			var errs AggregatedError
			errs.Add(ctx.Err(), l.runner.Wait())
			l.runner = nil
			if len(errs.Errors) == 1 {
				return errs.Errors[0]
			}
			return errs.Aggregate()
		case <-l.wakeUpCh:
			l.drain(hctx)
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		glog.Exitln(err)
	}
}

func (l *Loop) drain(ctx context.Context) {
	for {
		var pending eventList
		l.lock.Lock()
		pending.splice(&l.events)
		l.lock.Unlock()
		if pending.head == nil {
			return
		}
		for item := pending.head; item != nil; item = item.next {
			l.dispatch(ctx, item.ev)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, ev Event) {
	glog.V(4).Infof("event %s", ev.EventName())
	for _, h := range l.handlers {
		if err := h.HandleEvent(ctx, ev); err != nil {
			glog.Errorf("handle event %s error: %v", ev.EventName(), err)
		}
	}
}
