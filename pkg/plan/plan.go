// Package plan implements the Planner (spec.md §4.2): it partitions a
// graph's nodes into logic streams, binds device streams, computes the
// minimum set of cross-stream notifications, and emits the resulting
// command sequence.
package plan

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/thomasbergersen/execplan/pkg/graphview"
	"github.com/thomasbergersen/execplan/pkg/kernel"
	"github.com/thomasbergersen/execplan/pkg/registry"
	"github.com/thomasbergersen/execplan/pkg/session"
	"github.com/thomasbergersen/execplan/pkg/streams"
)

// Plan is the immutable artifact produced by Build (spec.md §2): the
// logic streams, the notification-owners vector, and the total
// node -> device-stream map.
type Plan struct {
	K                  int
	NumNodes           int
	Registry           *registry.Registry
	LogicStreams       []*streams.LogicStream
	NotificationOwners []*streams.DeviceStream
	nodeDeviceStream   []*streams.DeviceStream
	nodeLogicStream    []int
}

// ComputeStreamForNode returns the device stream node n will execute
// on, used by kernels that need to enqueue auxiliary work on the same
// device stream as the caller (spec.md §6).
func (p *Plan) ComputeStreamForNode(n graphview.NodeIndex) (*streams.DeviceStream, bool) {
	if int(n) < 0 || int(n) >= len(p.nodeDeviceStream) {
		return nil, false
	}
	ds := p.nodeDeviceStream[n]
	return ds, ds != nil
}

// LogicStreamIndex returns the index of the logic stream node n was
// assigned to.
func (p *Plan) LogicStreamIndex(n graphview.NodeIndex) (int, bool) {
	if int(n) < 0 || int(n) >= len(p.nodeLogicStream) {
		return 0, false
	}
	return p.nodeLogicStream[n], true
}

// Close releases every device stream owned by every logic stream, in
// logic-stream order, each releasing its own streams in reverse of
// insertion order (spec.md §4.3).
func (p *Plan) Close() error {
	var firstErr error
	for _, ls := range p.LogicStreams {
		if err := ls.Release(p.Registry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build constructs a Plan for sess's graph with k logic streams
// (spec.md §4.2). Device streams are created as a side effect, and a
// textual schedule is written to the diagnostic sink at klog.V(1)
// (spec.md §6, §9 Open Questions).
func Build(sess session.State, k int, reg *registry.Registry) (*Plan, error) {
	if k < 1 {
		return nil, errors.New("plan: K must be >= 1")
	}
	reg.EnsureRegistered(sess.ExecutionProviders())

	g := sess.GraphView()
	order := g.TopologicalOrder()

	size := 0
	for _, n := range order {
		if int(n)+1 > size {
			size = int(n) + 1
		}
	}

	logicStreams := make([]*streams.LogicStream, k)
	for i := range logicStreams {
		logicStreams[i] = &streams.LogicStream{Index: i}
	}

	// Pass 1: partition. Round-robin over the global topological order,
	// deterministic and total over node indices (spec.md §4.2 pass 1).
	nodeLogicStream := make([]int, size)
	for i, n := range order {
		strm := i % k
		nodeLogicStream[n] = strm
		logicStreams[strm].Nodes = append(logicStreams[strm].Nodes, n)
	}

	// Pass 2: notification discovery. A node gets a notification iff any
	// out-edge crosses a logic-stream boundary. Ids are dense, assigned
	// in stream order then within-stream node order (spec.md §4.2 pass 2).
	hasNotification := make([]bool, size)
	notificationID := make([]streams.NotificationIndex, size)
	numNotifications := 0
	for i := 0; i < k; i++ {
		for _, u := range logicStreams[i].Nodes {
			for _, v := range g.OutputNodes(u) {
				if nodeLogicStream[v] != i {
					hasNotification[u] = true
					notificationID[u] = streams.NotificationIndex(numNotifications)
					numNotifications++
					break
				}
			}
		}
	}

	// Pass 3: device-stream binding. Within each logic stream, one
	// device stream per distinct provider instance encountered, in the
	// order the stream's nodes are visited (spec.md §4.2 pass 3).
	nodeDeviceStream := make([]*streams.DeviceStream, size)
	for i := 0; i < k; i++ {
		for _, u := range logicStreams[i].Nodes {
			p := g.Provider(u)
			ds := findDeviceStream(logicStreams[i].DeviceStreams, p)
			if ds == nil {
				h, err := reg.CreateStream(p.Type())
				if err != nil {
					return nil, errors.Wrapf(err, "plan: binding node %d to provider %q", u, p.Type())
				}
				ds = &streams.DeviceStream{Handle: h, Provider: p}
				logicStreams[i].DeviceStreams = append(logicStreams[i].DeviceStreams, ds)
			}
			nodeDeviceStream[u] = ds
		}
	}

	// Pass 4: notification-owner fixup, in topological order so that
	// notification_owners_ is filled deterministically regardless of
	// partition order (spec.md §4.2 pass 4).
	notificationOwners := make([]*streams.DeviceStream, numNotifications)
	for _, u := range order {
		if hasNotification[u] {
			notificationOwners[notificationID[u]] = nodeDeviceStream[u]
		}
	}

	// Pass 5: command emission.
	for i := 0; i < k; i++ {
		for _, n := range logicStreams[i].Nodes {
			for _, producer := range g.InputNodes(n) {
				if nodeLogicStream[producer] == i {
					continue
				}
				id := notificationID[producer]
				owner := notificationOwners[id]
				consumerType := g.Provider(n).Type()
				waitFn, err := reg.GetWaitHandle(owner.Handle, consumerType)
				if err != nil {
					return nil, errors.Wrapf(err, "plan: node %d: wait handle from %q to %q", n, owner.Handle.ProviderType, consumerType)
				}
				consumerStream := nodeDeviceStream[n]
				notifID := id
				logicStreams[i].Commands = append(logicStreams[i].Commands, func(ctx *streams.ExecutionContext) {
					waitFn(consumerStream.Handle, ctx.Notification(notifID))
				})
			}

			node := n
			logicStreams[i].Commands = append(logicStreams[i].Commands, func(ctx *streams.ExecutionContext) {
				kern, err := ctx.Session.GetKernel(node)
				if err != nil {
					exceptions.Throw(errors.Wrapf(err, "plan: node %d: kernel lookup failed", node))
				}
				kctx := &kernel.Context{
					Node:    node,
					Frame:   ctx.Frame,
					IntraOp: ctx.Session.ThreadPool(),
					Logger:  ctx.Logger,
				}
				if err := kern.Compute(kctx); err != nil {
					klog.Errorf("plan: node %d: kernel failed: %+v", node, err)
					exceptions.Throw(errors.Wrapf(err, "plan: node %d: kernel failed", node))
				}
			})

			if hasNotification[n] {
				id := notificationID[n]
				logicStreams[i].Commands = append(logicStreams[i].Commands, func(ctx *streams.ExecutionContext) {
					if err := ctx.Registry.Notify(ctx.Notification(id)); err != nil {
						exceptions.Throw(errors.Wrapf(err, "plan: node %d: notify failed", n))
					}
				})
			}
		}
	}

	p := &Plan{
		K:                  k,
		NumNodes:           size,
		Registry:           reg,
		LogicStreams:       logicStreams,
		NotificationOwners: notificationOwners,
		nodeDeviceStream:   nodeDeviceStream,
		nodeLogicStream:    nodeLogicStream,
	}

	if klog.V(1).Enabled() {
		klog.Info("\n" + renderSchedule(p))
	}

	return p, nil
}

func findDeviceStream(list []*streams.DeviceStream, p graphview.Provider) *streams.DeviceStream {
	for _, ds := range list {
		if ds.Provider == p {
			return ds
		}
	}
	return nil
}
