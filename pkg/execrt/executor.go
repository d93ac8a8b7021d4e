// Package execrt implements the Executor (spec.md §4.4): at call time
// it constructs an execution context, dispatches all but one logic
// stream onto the inter-op thread pool, runs the remaining stream
// inline, joins via barriers, and returns outputs.
//
// A kernel failure is not reported through this package's error
// return: spec.md §7 treats it as fatal, and the compute command
// (pkg/plan) already panics via github.com/gomlx/exceptions before
// control would ever get back here. What Execute returns errors for is
// FrameFailure (output extraction) and any PlanningFailure surfaced at
// call time (a registry capability going missing between Build and
// Execute, for instance).
package execrt

import (
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/thomasbergersen/execplan/pkg/frame"
	"github.com/thomasbergersen/execplan/pkg/graphview"
	"github.com/thomasbergersen/execplan/pkg/plan"
	"github.com/thomasbergersen/execplan/pkg/session"
	"github.com/thomasbergersen/execplan/pkg/streams"
)

// Execute runs p against sess for one inference call: feeds are seeded
// at feedIdxs, outputs are extracted at fetchIdxs into fetches
// (spec.md §6). fetches must be pre-sized to len(fetchIdxs).
func Execute(
	p *plan.Plan,
	sess session.State,
	feedIdxs []graphview.NodeIndex,
	feeds []frame.Value,
	fetchIdxs []graphview.NodeIndex,
	fetches []frame.Value,
	logger logr.Logger,
) error {
	fr, err := frame.New(p.NumNodes, feedIdxs, feeds, fetchIdxs)
	if err != nil {
		return errors.Wrap(err, "execrt: build frame")
	}

	ctx, err := streams.NewExecutionContext(sess, fr, logger, p.Registry, p.NotificationOwners)
	if err != nil {
		return errors.Wrap(err, "execrt: build execution context")
	}
	defer func() {
		if relErr := ctx.Release(); relErr != nil {
			klog.Errorf("execrt: release execution context: %+v", relErr)
		}
	}()

	k := p.K
	interOp := sess.InterOpThreadPool()
	interOp.EnsureCapacity(k - 1)

	barriers := make([]barrier, k-1)
	errs := make([]error, k-1)
	for i := 0; i < k-1; i++ {
		i := i
		ls := p.LogicStreams[i]
		b := &barriers[i]
		interOp.WaitToStart(func() {
			errs[i] = ls.Run(ctx)
			b.set()
		})
	}

	lastErr := p.LogicStreams[k-1].Run(ctx)

	for i := range barriers {
		barriers[i].wait()
	}

	if lastErr != nil {
		return errors.Wrapf(lastErr, "execrt: logic stream %d", k-1)
	}
	for i, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "execrt: logic stream %d", i)
		}
	}

	if err := fr.GetOutputs(fetches); err != nil {
		return errors.Wrap(err, "execrt: extract outputs")
	}
	return nil
}
