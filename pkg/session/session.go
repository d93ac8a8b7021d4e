// Package session defines the session-state external collaborator
// (spec.md §6): execution-provider enumeration, kernel lookup by node
// index, and the intra-op / inter-op thread pools. Session
// configuration itself (spec.md §1) is out of scope; this package only
// describes the contract the planner and executor consume, plus a
// reference in-memory implementation for tests and the demo binary.
package session

import (
	"github.com/pkg/errors"

	"github.com/thomasbergersen/execplan/internal/workerspool"
	"github.com/thomasbergersen/execplan/pkg/graphview"
	"github.com/thomasbergersen/execplan/pkg/kernel"
	"github.com/thomasbergersen/execplan/pkg/registry"
)

// State is the session-state contract consumed by the planner and
// executor.
type State interface {
	// GraphView returns the graph being executed.
	GraphView() graphview.GraphView

	// ExecutionProviders returns every execution provider participating
	// in this session, in a stable order.
	ExecutionProviders() []registry.HandlerProvider

	// GetKernel returns the kernel object bound to node n.
	GetKernel(n graphview.NodeIndex) (kernel.Kernel, error)

	// ThreadPool returns the intra-op thread pool: the pool kernel
	// compute may use internally to parallelize a single op.
	ThreadPool() *workerspool.Pool

	// InterOpThreadPool returns the pool the executor fans logic streams
	// out onto (spec.md §4.4).
	InterOpThreadPool() *workerspool.Pool
}

// InMemory is a reference State backed by plain slices/maps, good
// enough for tests and the demo binary. It is not a production session
// layer: session configuration is out of scope for this module.
type InMemory struct {
	graph      graphview.GraphView
	providers  []registry.HandlerProvider
	kernels    map[graphview.NodeIndex]kernel.Kernel
	intraOp    *workerspool.Pool
	interOp    *workerspool.Pool
}

// New builds an InMemory session state. intraOp/interOp may be nil, in
// which case a default pool is created for each.
func New(graph graphview.GraphView, providers []registry.HandlerProvider, kernels map[graphview.NodeIndex]kernel.Kernel, intraOp, interOp *workerspool.Pool) *InMemory {
	if intraOp == nil {
		intraOp = workerspool.New()
	}
	if interOp == nil {
		interOp = workerspool.New()
	}
	return &InMemory{
		graph:     graph,
		providers: providers,
		kernels:   kernels,
		intraOp:   intraOp,
		interOp:   interOp,
	}
}

func (s *InMemory) GraphView() graphview.GraphView { return s.graph }

func (s *InMemory) ExecutionProviders() []registry.HandlerProvider { return s.providers }

func (s *InMemory) GetKernel(n graphview.NodeIndex) (kernel.Kernel, error) {
	k, ok := s.kernels[n]
	if !ok {
		return nil, errors.Errorf("session: no kernel registered for node %d", n)
	}
	return k, nil
}

func (s *InMemory) ThreadPool() *workerspool.Pool { return s.intraOp }

func (s *InMemory) InterOpThreadPool() *workerspool.Pool { return s.interOp }
