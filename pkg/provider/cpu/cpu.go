// Package cpu is a reference execution provider used by tests and the
// demo binary. It is not a production execution provider: real kernel
// implementations and device management are external collaborators
// (spec.md §1). It exists to give the registry (pkg/registry) and the
// planner something concrete to dispatch against, and to demonstrate
// the RegisterStreamHandlers contract every provider must satisfy.
//
// Its "device stream" is a mutex-guarded handle with a closed flag and
// no queue of its own (compute runs synchronously on the logic stream's
// goroutine); its "notification" is a single-shot channel close, which is the
// natural Go analogue of a host-visible event a wait can block on.
package cpu

import (
	"sync"

	"github.com/google/uuid"

	"github.com/thomasbergersen/execplan/pkg/registry"
)

// TypeName is the stable provider-type tag for this provider.
const TypeName = "cpu"

// Provider is a reference CPU execution provider. Every Provider value
// is a distinct provider instance: two nodes bound to two different
// *Provider values are never colocated on the same device stream, even
// though they share TypeName (spec.md §3).
type Provider struct {
	name string
}

// New returns a new, independent CPU provider instance.
func New(name string) *Provider {
	return &Provider{name: name}
}

// Type implements registry.Provider / graphview.Provider.
func (p *Provider) Type() string { return TypeName }

// String returns the provider's diagnostic name.
func (p *Provider) String() string { return p.name }

type stream struct {
	id     uuid.UUID
	mu     sync.Mutex
	closed bool
}

type notification struct {
	id   uuid.UUID
	once sync.Once
	ch   chan struct{}
}

func newNotification() *notification {
	return &notification{id: uuid.New(), ch: make(chan struct{})}
}

func (n *notification) fire() {
	n.once.Do(func() { close(n.ch) })
}

// RegisterStreamHandlers implements registry.HandlerProvider. Every
// *Provider instance registers the same functions under the same
// TypeName -- Register is idempotent per provider type, so multiple
// CPU provider instances sharing a Registry cost nothing extra
// (spec.md §4.1).
func (p *Provider) RegisterStreamHandlers(r *registry.Registry) {
	r.Register(TypeName, registry.Registration{
		CreateStream: func() registry.Handle {
			return registry.Handle{Value: &stream{id: uuid.New()}}
		},
		ReleaseStream: func(h registry.Handle) {
			s := h.Value.(*stream)
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
		},
		FlushStream: func(registry.Handle) {
			// A CPU stream has no queue to submit: compute commands already
			// ran synchronously on the logic stream's own goroutine.
		},
		CreateNotification: func(registry.Handle) registry.Handle {
			return registry.Handle{Value: newNotification()}
		},
		ReleaseNotification: func(registry.Handle) {
			// The channel is garbage the moment nothing references it; no
			// explicit teardown is required.
		},
		Notify: func(h registry.Handle) {
			h.Value.(*notification).fire()
		},
		GetWaitHandle: func(consumerProviderType string) (registry.WaitFn, error) {
			// A CPU producer's notification is a closed channel: any
			// consumer, CPU or otherwise, can block on it directly with no
			// provider-specific bridging.
			return func(_ registry.Handle, notif registry.Handle) {
				<-notif.Value.(*notification).ch
			}, nil
		},
	})
}
