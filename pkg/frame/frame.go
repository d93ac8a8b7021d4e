// Package frame implements the execution frame external collaborator
// (spec.md §1, §4.4, §4.5): per-invocation tensor storage. Memory
// planning and tensor allocation are explicitly out of scope for the
// core (spec.md §1); this is the minimal reference implementation the
// planner/executor tests and the demo binary build against.
//
// Frame keys every value by the producing node's index rather than by
// a separately-planned mlvalue slot, since real memory planning is an
// external collaborator this module does not implement.
package frame

import (
	"github.com/pkg/errors"

	"github.com/thomasbergersen/execplan/pkg/graphview"
)

// Value is a single tensor-shaped payload. The core never inspects the
// contents of a Value; kernels agree on the concrete type out of band.
type Value any

// Frame is the per-inference scratch space shared by every logic
// stream. Each node writes its own output slot exactly once, so no
// locking is required on the storage itself (spec.md §5); cross-stream
// visibility of a write is guaranteed by the notify/wait pair the
// planner inserts before any consumer reads it.
type Frame struct {
	outputs   []Value
	written   []bool
	fetchIdxs []graphview.NodeIndex
}

// New allocates a Frame for a graph with numNodes nodes, seeds the feed
// values, and records which nodes are fetches.
func New(numNodes int, feedIdxs []graphview.NodeIndex, feeds []Value, fetchIdxs []graphview.NodeIndex) (*Frame, error) {
	if len(feedIdxs) != len(feeds) {
		return nil, errors.Errorf("frame: %d feed indices but %d feed values", len(feedIdxs), len(feeds))
	}
	f := &Frame{
		outputs:   make([]Value, numNodes),
		written:   make([]bool, numNodes),
		fetchIdxs: append([]graphview.NodeIndex(nil), fetchIdxs...),
	}
	for i, idx := range feedIdxs {
		if int(idx) < 0 || int(idx) >= numNodes {
			return nil, errors.Errorf("frame: feed index %d out of range for %d nodes", idx, numNodes)
		}
		f.outputs[idx] = feeds[i]
		f.written[idx] = true
	}
	return f, nil
}

// SetOutput records the value produced by node n. Called exactly once
// per node, by the single kernel assigned to compute it.
func (f *Frame) SetOutput(n graphview.NodeIndex, v Value) {
	f.outputs[n] = v
	f.written[n] = true
}

// Output returns the value produced by node n, or false if it has not
// been written yet.
func (f *Frame) Output(n graphview.NodeIndex) (Value, bool) {
	if int(n) < 0 || int(n) >= len(f.outputs) {
		return nil, false
	}
	return f.outputs[n], f.written[n]
}

// GetOutputs fills fetches, in the order given to New, with the values
// produced for each fetch index. It fails (FrameFailure, spec.md §7) if
// any fetch was never written -- normally impossible given a plan built
// from the same graph, but possible if the executor is misused with a
// mismatched plan.
func (f *Frame) GetOutputs(fetches []Value) error {
	if len(fetches) != len(f.fetchIdxs) {
		return errors.Errorf("frame: GetOutputs: expected %d slots, got %d", len(f.fetchIdxs), len(fetches))
	}
	for i, idx := range f.fetchIdxs {
		v, ok := f.Output(idx)
		if !ok {
			return errors.Errorf("frame: GetOutputs: fetch node %d was never computed", idx)
		}
		fetches[i] = v
	}
	return nil
}
