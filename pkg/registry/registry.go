// Package registry implements the process-wide Stream Handle Registry
// (spec.md §4.1): a capability table, keyed by execution-provider type,
// of the function entries a provider must supply to participate in the
// parallel execution plan.
//
// The registry holds no per-call state: it is a thin dispatch table.
// Registration is idempotent per provider type and is expected to run
// exactly once per process, serialized through EnsureRegistered.
package registry

import (
	"sync"

	"github.com/pkg/errors"
)

// Handle is an opaque, provider-defined device or notification handle.
// It is represented as a tagged variant rather than an interface
// hierarchy (spec.md §9): ProviderType identifies which provider's
// functions know how to interpret Value.
type Handle struct {
	ProviderType string
	Value        any
}

// WaitFn makes consumerStream wait, asynchronously where the provider
// supports it, until notif has been recorded.
type WaitFn func(consumerStream Handle, notif Handle)

// Registration is the tuple of function entries an execution provider
// contributes for its provider type (spec.md §4.1).
type Registration struct {
	// CreateStream allocates a fresh asynchronous queue on the device.
	CreateStream func() Handle
	// ReleaseStream releases a stream handle; safe to call exactly once.
	ReleaseStream func(stream Handle)
	// FlushStream best-effort submits any pending work on the queue.
	FlushStream func(stream Handle)
	// CreateNotification allocates an event associated with stream's device.
	CreateNotification func(stream Handle) Handle
	// ReleaseNotification releases a notification handle.
	ReleaseNotification func(notif Handle)
	// Notify records notif on its owning device stream. Must be called
	// from the command sequence of the logic stream owning that stream.
	Notify func(notif Handle)
	// GetWaitHandle returns a WaitFn specialized for bridging a
	// notification produced by this provider to a consumer of
	// consumerProviderType (host spin, device event, inter-device
	// semaphore -- the provider's choice).
	GetWaitHandle func(consumerProviderType string) (WaitFn, error)
}

// Provider is anything with a stable provider-type tag. Object identity
// (not the Type() string) is what the planner uses to decide whether
// two nodes can share a device stream (spec.md §3).
type Provider interface {
	Type() string
}

// HandlerProvider is a Provider capable of registering its stream
// handler functions with a Registry. Execution providers implement
// this to participate in planning.
type HandlerProvider interface {
	Provider
	RegisterStreamHandlers(r *Registry)
}

// Registry is a capability table keyed by provider type. The zero value
// is not usable; construct with New.
type Registry struct {
	once     sync.Once
	mu       sync.RWMutex
	entries  map[string]Registration
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register installs reg under providerType. Calling Register more than
// once for the same providerType is a no-op after the first call,
// matching the "idempotent per provider type" contract in spec.md §4.1
// -- a provider's RegisterStreamHandlers may be invoked more than once
// across a process without ill effect.
func (r *Registry) Register(providerType string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[providerType]; ok {
		return
	}
	r.entries[providerType] = reg
}

// EnsureRegistered calls RegisterStreamHandlers on every provider in
// providers, but only the first time it is ever called on this
// Registry, serializing concurrent first-time callers. This is the
// one-time initialization hook spec.md §4.1 and §5 require to run
// before any plan is constructed.
func (r *Registry) EnsureRegistered(providers []HandlerProvider) {
	r.once.Do(func() {
		for _, p := range providers {
			p.RegisterStreamHandlers(r)
		}
	})
}

func (r *Registry) lookup(providerType string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[providerType]
	if !ok {
		return Registration{}, errors.Errorf("registry: no stream handlers registered for provider type %q", providerType)
	}
	return reg, nil
}

// CreateStream allocates a new device stream for providerType.
func (r *Registry) CreateStream(providerType string) (Handle, error) {
	reg, err := r.lookup(providerType)
	if err != nil {
		return Handle{}, err
	}
	if reg.CreateStream == nil {
		return Handle{}, errors.Errorf("registry: provider type %q did not register CreateStream", providerType)
	}
	h := reg.CreateStream()
	h.ProviderType = providerType
	return h, nil
}

// ReleaseStream releases a device stream previously created for stream.ProviderType.
func (r *Registry) ReleaseStream(stream Handle) error {
	reg, err := r.lookup(stream.ProviderType)
	if err != nil {
		return err
	}
	if reg.ReleaseStream == nil {
		return errors.Errorf("registry: provider type %q did not register ReleaseStream", stream.ProviderType)
	}
	reg.ReleaseStream(stream)
	return nil
}

// FlushStream submits any pending work queued on stream.
func (r *Registry) FlushStream(stream Handle) error {
	reg, err := r.lookup(stream.ProviderType)
	if err != nil {
		return err
	}
	if reg.FlushStream == nil {
		return errors.Errorf("registry: provider type %q did not register FlushStream", stream.ProviderType)
	}
	reg.FlushStream(stream)
	return nil
}

// CreateNotification allocates a notification handle bound to stream's device.
func (r *Registry) CreateNotification(stream Handle) (Handle, error) {
	reg, err := r.lookup(stream.ProviderType)
	if err != nil {
		return Handle{}, err
	}
	if reg.CreateNotification == nil {
		return Handle{}, errors.Errorf("registry: provider type %q did not register CreateNotification", stream.ProviderType)
	}
	h := reg.CreateNotification(stream)
	h.ProviderType = stream.ProviderType
	return h, nil
}

// ReleaseNotification releases a notification handle.
func (r *Registry) ReleaseNotification(notif Handle) error {
	reg, err := r.lookup(notif.ProviderType)
	if err != nil {
		return err
	}
	if reg.ReleaseNotification == nil {
		return errors.Errorf("registry: provider type %q did not register ReleaseNotification", notif.ProviderType)
	}
	reg.ReleaseNotification(notif)
	return nil
}

// Notify records notif on its owning device stream.
func (r *Registry) Notify(notif Handle) error {
	reg, err := r.lookup(notif.ProviderType)
	if err != nil {
		return err
	}
	if reg.Notify == nil {
		return errors.Errorf("registry: provider type %q did not register Notify", notif.ProviderType)
	}
	reg.Notify(notif)
	return nil
}

// GetWaitHandle returns a WaitFn bridging a notification produced on
// producerStream to a consumer of consumerProviderType (spec.md §4.1).
func (r *Registry) GetWaitHandle(producerStream Handle, consumerProviderType string) (WaitFn, error) {
	reg, err := r.lookup(producerStream.ProviderType)
	if err != nil {
		return nil, err
	}
	if reg.GetWaitHandle == nil {
		return nil, errors.Errorf("registry: provider type %q did not register GetWaitHandle", producerStream.ProviderType)
	}
	return reg.GetWaitHandle(consumerProviderType)
}
