package graphview

import (
	"github.com/pkg/errors"
)

// Builder assembles an in-memory GraphView for tests and the demo
// binary. It is not the graph importer described in spec.md §1 — it
// has no notion of an on-disk format and does no shape inference.
type Builder struct {
	providers []Provider
	inputs    [][]NodeIndex
	outputs   [][]NodeIndex
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode registers a new node bound to provider and returns its index.
// Node indices are assigned densely in AddNode call order.
func (b *Builder) AddNode(provider Provider) NodeIndex {
	idx := NodeIndex(len(b.providers))
	b.providers = append(b.providers, provider)
	b.inputs = append(b.inputs, nil)
	b.outputs = append(b.outputs, nil)
	return idx
}

// AddEdge records a data dependency from -> to: from produces a value
// consumed by to. Edges are recorded in call order, which becomes the
// deterministic in-edge / out-edge iteration order used by the planner.
func (b *Builder) AddEdge(from, to NodeIndex) error {
	if int(from) < 0 || int(from) >= len(b.providers) {
		return errors.Errorf("graphview: AddEdge: source node %d does not exist", from)
	}
	if int(to) < 0 || int(to) >= len(b.providers) {
		return errors.Errorf("graphview: AddEdge: destination node %d does not exist", to)
	}
	b.outputs[from] = append(b.outputs[from], to)
	b.inputs[to] = append(b.inputs[to], from)
	return nil
}

// Build validates the graph is acyclic and returns an immutable
// GraphView with a stable topological order.
func (b *Builder) Build() (GraphView, error) {
	n := len(b.providers)
	inDegree := make([]int, n)
	for to := 0; to < n; to++ {
		inDegree[to] = len(b.inputs[to])
	}

	// Kahn's algorithm over a plain slice queue, never a map, so the
	// resulting order is a deterministic function of insertion order
	// (spec.md §9, "must not rely on unordered containers").
	var queue []NodeIndex
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, NodeIndex(i))
		}
	}
	order := make([]NodeIndex, 0, n)
	remaining := append([]int(nil), inDegree...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, next := range b.outputs[node] {
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != n {
		return nil, errors.New("graphview: Build: graph has a cycle")
	}

	g := &graph{
		providers: append([]Provider(nil), b.providers...),
		inputs:    make([][]NodeIndex, n),
		outputs:   make([][]NodeIndex, n),
		order:     order,
	}
	for i := 0; i < n; i++ {
		g.inputs[i] = append([]NodeIndex(nil), b.inputs[i]...)
		g.outputs[i] = append([]NodeIndex(nil), b.outputs[i]...)
	}
	return g, nil
}

type graph struct {
	providers []Provider
	inputs    [][]NodeIndex
	outputs   [][]NodeIndex
	order     []NodeIndex
}

func (g *graph) TopologicalOrder() []NodeIndex {
	return append([]NodeIndex(nil), g.order...)
}

func (g *graph) Provider(n NodeIndex) Provider {
	return g.providers[n]
}

func (g *graph) InputNodes(n NodeIndex) []NodeIndex {
	return g.inputs[n]
}

func (g *graph) OutputNodes(n NodeIndex) []NodeIndex {
	return g.outputs[n]
}
