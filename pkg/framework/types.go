package framework

import (
	"context"
	"time"
)

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunnableFunc is the func form of Runnable.
type RunnableFunc func(context.Context) error

// Run implements Runnable.
func (f RunnableFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Message is an item posted to a loop for processing in a later
// iteration, typically from an asynchronous receive callback.
type Message interface{}

// Stage identifies when a controller runs within one loop iteration.
// Stages run in declaration order every iteration.
type Stage int

const (
	// StageSense runs acquisition controllers.
	StageSense Stage = iota
	// StageControl runs command/state controllers.
	StageControl
	// StageEmit runs transmission controllers.
	StageEmit
	// StageIdle runs diagnostics and leftover-message consumers.
	StageIdle

	stageCount
)

// Controller defines the per-iteration controlling logic.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// ControlContext provides the context of the current loop iteration.
type ControlContext interface {
	// Context retrieves the context.Context the loop runs under.
	Context() context.Context
	// Time is the start time of this iteration.
	Time() time.Time
	// Stage is the stage currently executing.
	Stage() Stage
	// ProcessMessages invokes proc for every pending message. A true
	// return takes the message; untaken messages stay pending for the
	// next iteration.
	ProcessMessages(proc func(Message) (taken bool))

	LoopControl
}

// LoopControl exposes access to the controlling loop and is safe to use
// from any goroutine.
type LoopControl interface {
	// PostMessage enqueues a message for the next iteration.
	PostMessage(Message)
	// TriggerNext schedules an iteration immediately instead of
	// waiting for the next tick.
	TriggerNext()
}
