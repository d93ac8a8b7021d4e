// Package gpu is a second reference execution provider, standing in
// for an accelerator with a genuinely asynchronous device queue. It
// exists so the planner and executor can be exercised against a
// cross-provider chain (spec.md §8 scenarios C and D) without pulling
// in a real accelerator SDK, which is out of scope for this module
// (spec.md §1).
//
// Its device stream is a single goroutine draining a FIFO channel of
// submitted work; FlushStream queues a marker and blocks until
// everything submitted before it has drained. Notify and wait are not
// queued: notify closes the event's channel on the calling goroutine,
// and a wait blocks the calling goroutine until that channel is closed.
package gpu

import (
	"sync"

	"github.com/google/uuid"

	"github.com/thomasbergersen/execplan/pkg/registry"
)

// TypeName is the stable provider-type tag for this provider.
const TypeName = "gpu"

// Provider is a reference accelerator-like execution provider.
type Provider struct {
	name string
}

// New returns a new, independent GPU-like provider instance.
func New(name string) *Provider {
	return &Provider{name: name}
}

// Type implements registry.Provider / graphview.Provider.
func (p *Provider) Type() string { return TypeName }

// String returns the provider's diagnostic name.
func (p *Provider) String() string { return p.name }

type queue struct {
	id      uuid.UUID
	work    chan func()
	drained chan struct{}
}

func newQueue() *queue {
	q := &queue{id: uuid.New(), work: make(chan func(), 256), drained: make(chan struct{})}
	go q.run()
	return q
}

func (q *queue) run() {
	for fn := range q.work {
		fn()
	}
	close(q.drained)
}

func (q *queue) submit(fn func()) {
	q.work <- fn
}

func (q *queue) release() {
	close(q.work)
	<-q.drained
}

type event struct {
	fired chan struct{}
	once  sync.Once
}

func newEvent() *event {
	return &event{fired: make(chan struct{})}
}

func (e *event) set() {
	e.once.Do(func() { close(e.fired) })
}

// RegisterStreamHandlers implements registry.HandlerProvider.
func (p *Provider) RegisterStreamHandlers(r *registry.Registry) {
	r.Register(TypeName, registry.Registration{
		CreateStream: func() registry.Handle {
			return registry.Handle{Value: newQueue()}
		},
		ReleaseStream: func(h registry.Handle) {
			h.Value.(*queue).release()
		},
		FlushStream: func(h registry.Handle) {
			// Submitting a no-op and waiting for it to run drains everything
			// queued before it -- a stand-in for a device-side queue submit.
			done := make(chan struct{})
			h.Value.(*queue).submit(func() { close(done) })
			<-done
		},
		CreateNotification: func(h registry.Handle) registry.Handle {
			return registry.Handle{Value: newEvent()}
		},
		ReleaseNotification: func(registry.Handle) {},
		Notify: func(h registry.Handle) {
			h.Value.(*event).set()
		},
		GetWaitHandle: func(consumerProviderType string) (registry.WaitFn, error) {
			// Both a CPU consumer (host spin) and a GPU consumer (device-side
			// wait) can block on the same channel close here: the reference
			// provider doesn't model separate host/device address spaces, so
			// one bridging mechanism covers every consumer type.
			return func(_ registry.Handle, notif registry.Handle) {
				<-notif.Value.(*event).fired
			}, nil
		},
	})
}
