// Package kernel defines the external kernel-compute contract consumed
// by the compute command (spec.md §4.2 pass 5, §6). Individual kernel
// implementations are explicitly out of scope for this module
// (spec.md §1) -- this package only describes the shape a kernel and
// its per-call context take.
package kernel

import (
	"github.com/go-logr/logr"

	"github.com/thomasbergersen/execplan/internal/workerspool"
	"github.com/thomasbergersen/execplan/pkg/frame"
	"github.com/thomasbergersen/execplan/pkg/graphview"
)

// Context is the per-kernel-invocation context the compute command
// constructs against the current execution frame and the intra-op
// thread pool (spec.md §4.2 pass 5, item 2).
type Context struct {
	Node       graphview.NodeIndex
	Frame      *frame.Frame
	IntraOp    *workerspool.Pool
	Logger     logr.Logger
}

// Kernel computes the output of exactly one node. A non-nil error is a
// KernelFailure (spec.md §7): fatal to the run.
type Kernel interface {
	Compute(ctx *Context) error
}

// Func adapts a plain function to the Kernel interface, mirroring the
// small-function-per-op convention used by reference backends rather
// than a class hierarchy per op.
type Func func(ctx *Context) error

// Compute implements Kernel.
func (f Func) Compute(ctx *Context) error {
	return f(ctx)
}
