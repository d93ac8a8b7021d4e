// Package streams implements the Device Stream, Notification and Logic
// Stream data model (spec.md §3, §4.3) plus the per-invocation
// Execution Context (spec.md §4.5) that commands run against.
//
// A command list is a sequence of closures, each capturing its
// bindings (function pointers, device-stream pointers, notification
// indices) by value at plan-construction time; none of them may retain
// a reference to per-invocation state, which is injected as the
// ExecutionContext argument at call time (spec.md §9).
package streams

import (
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/thomasbergersen/execplan/pkg/frame"
	"github.com/thomasbergersen/execplan/pkg/graphview"
	"github.com/thomasbergersen/execplan/pkg/registry"
	"github.com/thomasbergersen/execplan/pkg/session"
)

// NotificationIndex is a dense id assigned by the planner's
// notification-discovery pass (spec.md §4.2 pass 2). It also indexes
// into an ExecutionContext's per-call notification array.
type NotificationIndex int

// DeviceStream is an opaque per-provider asynchronous queue handle,
// owned by exactly one LogicStream (spec.md §3).
type DeviceStream struct {
	Handle   registry.Handle
	Provider graphview.Provider
}

// Notification is a per-call synchronization event. Owner is a
// non-owning back-reference to the device stream that will issue the
// notify -- device streams outlive notifications, which live only for
// one Execute call (spec.md §9).
type Notification struct {
	Handle registry.Handle
	Owner  *DeviceStream
}

// Command is one entry in a LogicStream's FIFO command list: wait,
// compute, or notify. It receives the ExecutionContext by reference at
// call time; it must not capture a reference to one itself.
type Command func(ctx *ExecutionContext)

// LogicStream is an in-order sequence of commands bound to one or more
// device streams (spec.md §3, §4.3).
type LogicStream struct {
	// Index identifies this logic stream within its Plan.
	Index int
	// Nodes lists, in execution order, the node indices assigned to this
	// stream. Kept for diagnostics and determinism checks.
	Nodes []graphview.NodeIndex
	// DeviceStreams is the ordered, unique-by-provider-instance list of
	// device streams this logic stream owns.
	DeviceStreams []*DeviceStream
	// Commands is the FIFO command list emitted by the planner.
	Commands []Command
}

// Run executes every command in order against ctx, then flushes every
// owned device stream in insertion order (spec.md §4.3).
func (l *LogicStream) Run(ctx *ExecutionContext) error {
	for _, cmd := range l.Commands {
		cmd(ctx)
	}
	for _, ds := range l.DeviceStreams {
		if err := ctx.Registry.FlushStream(ds.Handle); err != nil {
			return errors.Wrapf(err, "streams: logic stream %d: flush", l.Index)
		}
	}
	return nil
}

// Release releases every owned device stream, in reverse of insertion
// order (spec.md §4.3, "Destruction releases device-stream handles in
// reverse order").
func (l *LogicStream) Release(reg *registry.Registry) error {
	for i := len(l.DeviceStreams) - 1; i >= 0; i-- {
		if err := reg.ReleaseStream(l.DeviceStreams[i].Handle); err != nil {
			return errors.Wrapf(err, "streams: logic stream %d: release device stream", l.Index)
		}
	}
	return nil
}

// ExecutionContext is the per-invocation scratch object described in
// spec.md §4.5: a reference to the session state, a pointer to the
// frame, a reference to the logger, and the per-call notification
// array indexed by NotificationIndex.
type ExecutionContext struct {
	Session  session.State
	Frame    *frame.Frame
	Logger   logr.Logger
	Registry *registry.Registry

	notifications []Notification
	releaseFns    []func(registry.Handle) error
}

// NewExecutionContext builds an ExecutionContext and allocates one
// notification per entry in owners, using each owner's provider to
// create the handle (spec.md §4.4 step 2).
func NewExecutionContext(sess session.State, fr *frame.Frame, logger logr.Logger, reg *registry.Registry, owners []*DeviceStream) (*ExecutionContext, error) {
	ctx := &ExecutionContext{
		Session:       sess,
		Frame:         fr,
		Logger:        logger,
		Registry:      reg,
		notifications: make([]Notification, len(owners)),
		releaseFns:    make([]func(registry.Handle) error, len(owners)),
	}
	for i, owner := range owners {
		handle, err := reg.CreateNotification(owner.Handle)
		if err != nil {
			ctx.releaseCreated(i)
			return nil, errors.Wrapf(err, "streams: create notification %d", i)
		}
		ctx.notifications[i] = Notification{Handle: handle, Owner: owner}
		ctx.releaseFns[i] = reg.ReleaseNotification
	}
	return ctx, nil
}

// releaseCreated releases notifications [0, n) -- used to unwind if
// construction fails partway through.
func (c *ExecutionContext) releaseCreated(n int) {
	for i := 0; i < n; i++ {
		_ = c.releaseFns[i](c.notifications[i].Handle)
	}
}

// Notification returns the handle allocated for id.
func (c *ExecutionContext) Notification(id NotificationIndex) registry.Handle {
	return c.notifications[id].Handle
}

// Release releases every notification allocated for this call
// (spec.md §4.5, "On destruction it releases every notification").
func (c *ExecutionContext) Release() error {
	var firstErr error
	for i, n := range c.notifications {
		if err := c.releaseFns[i](n.Handle); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "streams: release notification %d", i)
		}
	}
	return firstErr
}
