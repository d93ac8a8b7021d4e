// Command execplanviz builds a small linear-chain graph, plans it at a
// caller-supplied logic-stream count, and runs one inference call end
// to end. The schedule table is written to the klog output when run
// with -v=1 or higher. It plays the role the
// teacher's numerous examples/*/demo binaries play: a runnable surface
// over an otherwise library-only package.
package main

import (
	"flag"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/klog/v2"

	"github.com/thomasbergersen/execplan/pkg/execrt"
	"github.com/thomasbergersen/execplan/pkg/frame"
	"github.com/thomasbergersen/execplan/pkg/graphview"
	"github.com/thomasbergersen/execplan/pkg/kernel"
	"github.com/thomasbergersen/execplan/pkg/plan"
	"github.com/thomasbergersen/execplan/pkg/provider/cpu"
	"github.com/thomasbergersen/execplan/pkg/provider/gpu"
	"github.com/thomasbergersen/execplan/pkg/registry"
	"github.com/thomasbergersen/execplan/pkg/session"
)

var flagK = flag.Int("k", 2, "number of logic streams")
var flagUseGPU = flag.Bool("gpu", false, "assign the middle node to the gpu provider instead of cpu")

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if err := run(*flagK, *flagUseGPU); err != nil {
		klog.Fatalf("execplanviz: %+v", err)
	}
}

// run builds A -> B -> C -> D (spec.md §8 scenario A), where B may be
// bound to a second provider, plans it at k, executes it, and prints
// the result.
func run(k int, useGPU bool) error {
	cpuProvider := cpu.New("cpu:0")

	b := graphview.NewBuilder()
	nodeA := b.AddNode(cpuProvider)
	var providerB graphview.Provider = cpuProvider
	if useGPU {
		providerB = gpu.New("gpu:0")
	}
	nodeB := b.AddNode(providerB)
	nodeC := b.AddNode(cpuProvider)
	nodeD := b.AddNode(cpuProvider)
	for _, e := range [][2]graphview.NodeIndex{{nodeA, nodeB}, {nodeB, nodeC}, {nodeC, nodeD}} {
		if err := b.AddEdge(e[0], e[1]); err != nil {
			return err
		}
	}
	g, err := b.Build()
	if err != nil {
		return err
	}

	// A is a graph input: its feed value is already its output slot, so
	// its kernel is a no-op. B, C and D each double their single input.
	identity := kernel.Func(func(*kernel.Context) error { return nil })
	double := func(in graphview.NodeIndex) kernel.Kernel {
		return kernel.Func(func(ctx *kernel.Context) error {
			v, _ := ctx.Frame.Output(in)
			n, _ := v.(int)
			ctx.Frame.SetOutput(ctx.Node, n*2)
			return nil
		})
	}
	kernels := map[graphview.NodeIndex]kernel.Kernel{
		nodeA: identity,
		nodeB: double(nodeA),
		nodeC: double(nodeB),
		nodeD: double(nodeC),
	}

	providers := []registry.HandlerProvider{cpuProvider}
	if useGPU {
		providers = append(providers, providerB.(*gpu.Provider))
	}
	sess := session.New(g, providers, kernels, nil, nil)

	reg := registry.New()
	p, err := plan.Build(sess, k, reg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			klog.Errorf("execplanviz: close plan: %+v", closeErr)
		}
	}()

	fetches := make([]frame.Value, 1)
	err = execrt.Execute(
		p, sess,
		[]graphview.NodeIndex{nodeA}, []frame.Value{1},
		[]graphview.NodeIndex{nodeD}, fetches,
		logr.Discard(),
	)
	if err != nil {
		return err
	}
	fmt.Printf("K=%d useGPU=%v result=%v\n", k, useGPU, fetches[0])
	return nil
}
