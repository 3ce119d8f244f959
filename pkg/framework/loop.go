// Package framework provides the cooperative control loop the node and
// coordinator runtimes are built on: a periodic wake, check, act cycle
// with staged controllers and message handoff from asynchronous
// callbacks.
package framework

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Loop runs registered controllers once per tick, stage by stage.
// Controllers execute on the loop goroutine, so state shared only among
// controllers of one loop needs no locking. Asynchronous producers
// interact with the loop through PostMessage and TriggerNext only.
type Loop struct {
	Interval time.Duration

	controllers [stageCount][]Controller
	runners     []Runnable

	messages []Message
	lock     sync.Mutex

	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to a loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// DefaultInterval is the tick interval used when none is configured.
// It is the coarse poll rate of an idle loop; TriggerNext bypasses it
// when there is work.
const DefaultInterval = 100 * time.Millisecond

var loopCtxKey = &Loop{}

// LoopCtlFrom gets the LoopControl from a runner's context.
func LoopCtlFrom(ctx context.Context) LoopControl {
	return ctx.Value(loopCtxKey).(LoopControl)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, wakeUpCh: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a stage. Controllers that are
// also Runnable are started alongside the loop.
func (l *Loop) AddController(stage Stage, ctls ...Controller) *Loop {
	l.controllers[stage] = append(l.controllers[stage], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds background runners started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages = append(l.messages, msg)
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Run implements Runnable. It drives iterations until the context is
// canceled and supervises the registered runners.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey, LoopControl(l)))
	runner.Go("loop", l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runIteration(ctx)
		case <-l.wakeUpCh:
			l.runIteration(ctx)
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail() {
	if err := l.Run(context.TODO()); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

func (l *Loop) runIteration(ctx context.Context) {
	iter := &loopIteration{loop: l, ctx: ctx, time: time.Now()}
	l.lock.Lock()
	iter.messages, l.messages = l.messages, nil
	l.lock.Unlock()

	for s := Stage(0); s < stageCount; s++ {
		iter.stage = s
		for _, ctl := range l.controllers[s] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}

	// Untaken messages carry over to the next iteration.
	if len(iter.messages) > 0 {
		l.lock.Lock()
		l.messages = append(iter.messages, l.messages...)
		l.lock.Unlock()
	}
}

type loopIteration struct {
	loop     *Loop
	ctx      context.Context
	time     time.Time
	stage    Stage
	messages []Message
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.time }
func (t *loopIteration) Stage() Stage             { return t.stage }

func (t *loopIteration) PostMessage(msg Message) { t.loop.PostMessage(msg) }
func (t *loopIteration) TriggerNext()            { t.loop.TriggerNext() }

func (t *loopIteration) ProcessMessages(proc func(Message) bool) {
	msgs := t.messages
	t.messages = t.messages[:0]
	for _, msg := range msgs {
		if !proc(msg) {
			t.messages = append(t.messages, msg)
		}
	}
}
