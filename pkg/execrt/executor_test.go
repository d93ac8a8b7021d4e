package execrt

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasbergersen/execplan/pkg/frame"
	"github.com/thomasbergersen/execplan/pkg/graphview"
	"github.com/thomasbergersen/execplan/pkg/kernel"
	"github.com/thomasbergersen/execplan/pkg/plan"
	"github.com/thomasbergersen/execplan/pkg/provider/cpu"
	"github.com/thomasbergersen/execplan/pkg/provider/gpu"
	"github.com/thomasbergersen/execplan/pkg/registry"
	"github.com/thomasbergersen/execplan/pkg/session"
)

func doubler(in graphview.NodeIndex) kernel.Kernel {
	return kernel.Func(func(ctx *kernel.Context) error {
		v, _ := ctx.Frame.Output(in)
		n, _ := v.(int)
		ctx.Frame.SetOutput(ctx.Node, n*2)
		return nil
	})
}

func identity() kernel.Kernel {
	return kernel.Func(func(*kernel.Context) error { return nil })
}

// buildChain wires A -> B -> C -> D, all on a single cpu provider: A
// passes its feed through, and B, C and D each double their input.
func buildChain(t *testing.T) (session.State, graphview.NodeIndex, graphview.NodeIndex) {
	t.Helper()
	p := cpu.New("cpu:0")
	b := graphview.NewBuilder()
	a := b.AddNode(p)
	c := b.AddNode(p)
	d := b.AddNode(p)
	e := b.AddNode(p)
	require.NoError(t, b.AddEdge(a, c))
	require.NoError(t, b.AddEdge(c, d))
	require.NoError(t, b.AddEdge(d, e))
	g, err := b.Build()
	require.NoError(t, err)

	kernels := map[graphview.NodeIndex]kernel.Kernel{
		a: identity(), c: doubler(a), d: doubler(c), e: doubler(d),
	}
	sess := session.New(g, []registry.HandlerProvider{p}, kernels, nil, nil)
	return sess, a, e
}

func TestExecute_LinearChain_AcrossK(t *testing.T) {
	for _, k := range []int{1, 2, 3, 4, 8} {
		sess, a, e := buildChain(t)
		reg := registry.New()
		p, err := plan.Build(sess, k, reg)
		require.NoError(t, err, "k=%d", k)

		fetches := make([]frame.Value, 1)
		err = Execute(p, sess, []graphview.NodeIndex{a}, []frame.Value{1}, []graphview.NodeIndex{e}, fetches, logr.Discard())
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, 8, fetches[0], "k=%d: 1 doubled three times is 8", k)

		require.NoError(t, p.Close())
	}
}

func TestExecute_TwoProviders_CrossDeviceChain(t *testing.T) {
	cpuP := cpu.New("cpu:0")
	gpuP := gpu.New("gpu:0")
	b := graphview.NewBuilder()
	a := b.AddNode(cpuP)
	bb := b.AddNode(gpuP)
	c := b.AddNode(cpuP)
	require.NoError(t, b.AddEdge(a, bb))
	require.NoError(t, b.AddEdge(bb, c))
	g, err := b.Build()
	require.NoError(t, err)

	kernels := map[graphview.NodeIndex]kernel.Kernel{a: identity(), bb: doubler(a), c: doubler(bb)}
	sess := session.New(g, []registry.HandlerProvider{cpuP, gpuP}, kernels, nil, nil)

	for _, k := range []int{1, 2} {
		reg := registry.New()
		p, err := plan.Build(sess, k, reg)
		require.NoError(t, err, "k=%d", k)

		fetches := make([]frame.Value, 1)
		err = Execute(p, sess, []graphview.NodeIndex{a}, []frame.Value{5}, []graphview.NodeIndex{c}, fetches, logr.Discard())
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, 20, fetches[0], "k=%d", k)

		require.NoError(t, p.Close())
	}
}

func TestExecute_MismatchedFetches_ReturnsFrameFailure(t *testing.T) {
	sess, a, e := buildChain(t)
	reg := registry.New()
	p, err := plan.Build(sess, 2, reg)
	require.NoError(t, err)
	defer p.Close()

	fetches := make([]frame.Value, 2) // wrong size
	err = Execute(p, sess, []graphview.NodeIndex{a}, []frame.Value{1}, []graphview.NodeIndex{e}, fetches, logr.Discard())
	assert.Error(t, err)
}

func TestExecute_DiamondAggregatesBothBranches(t *testing.T) {
	p := cpu.New("cpu:0")
	b := graphview.NewBuilder()
	a := b.AddNode(p)
	bb := b.AddNode(p)
	c := b.AddNode(p)
	d := b.AddNode(p)
	require.NoError(t, b.AddEdge(a, bb))
	require.NoError(t, b.AddEdge(a, c))
	require.NoError(t, b.AddEdge(bb, d))
	require.NoError(t, b.AddEdge(c, d))
	g, err := b.Build()
	require.NoError(t, err)

	sum := kernel.Func(func(ctx *kernel.Context) error {
		vb, _ := ctx.Frame.Output(bb)
		vc, _ := ctx.Frame.Output(c)
		nb, _ := vb.(int)
		nc, _ := vc.(int)
		ctx.Frame.SetOutput(ctx.Node, nb+nc)
		return nil
	})
	kernels := map[graphview.NodeIndex]kernel.Kernel{
		a: identity(), bb: doubler(a), c: doubler(a), d: sum,
	}
	sess := session.New(g, []registry.HandlerProvider{p}, kernels, nil, nil)

	reg := registry.New()
	plan1, err := plan.Build(sess, 2, reg)
	require.NoError(t, err)
	defer plan1.Close()

	fetches := make([]frame.Value, 1)
	err = Execute(plan1, sess, []graphview.NodeIndex{a}, []frame.Value{3}, []graphview.NodeIndex{d}, fetches, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, 12, fetches[0]) // 3*2 + 3*2
}
