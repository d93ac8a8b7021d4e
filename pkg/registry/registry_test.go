package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	typ   string
	calls *atomic.Int32
}

func (p countingProvider) Type() string { return p.typ }

func (p countingProvider) RegisterStreamHandlers(r *Registry) {
	p.calls.Add(1)
	r.Register(p.typ, Registration{
		CreateStream:         func() Handle { return Handle{Value: "stream"} },
		ReleaseStream:        func(Handle) {},
		FlushStream:          func(Handle) {},
		CreateNotification:   func(Handle) Handle { return Handle{Value: "notif"} },
		ReleaseNotification:  func(Handle) {},
		Notify:               func(Handle) {},
		GetWaitHandle: func(consumer string) (WaitFn, error) {
			return func(Handle, Handle) {}, nil
		},
	})
}

func TestRegistry_CreateStream_StampsProviderType(t *testing.T) {
	r := New()
	var calls atomic.Int32
	r.EnsureRegistered([]HandlerProvider{countingProvider{typ: "cpu", calls: &calls}})

	h, err := r.CreateStream("cpu")
	require.NoError(t, err)
	assert.Equal(t, "cpu", h.ProviderType)
	assert.Equal(t, "stream", h.Value)
}

func TestRegistry_EnsureRegistered_RunsOnce(t *testing.T) {
	r := New()
	var calls atomic.Int32
	p := countingProvider{typ: "cpu", calls: &calls}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.EnsureRegistered([]HandlerProvider{p})
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestRegistry_Register_IdempotentPerType(t *testing.T) {
	r := New()
	var oneCalls atomic.Int32
	first := Registration{CreateStream: func() Handle { return Handle{Value: "first"} }}
	second := Registration{CreateStream: func() Handle { return Handle{Value: "second"} }}
	r.Register("cpu", first)
	r.Register("cpu", second)

	h, err := r.CreateStream("cpu")
	require.NoError(t, err)
	assert.Equal(t, "first", h.Value)
	_ = oneCalls
}

func TestRegistry_UnknownProviderType(t *testing.T) {
	r := New()
	_, err := r.CreateStream("gpu")
	assert.Error(t, err)

	_, err = r.CreateNotification(Handle{ProviderType: "gpu"})
	assert.Error(t, err)

	err = r.Notify(Handle{ProviderType: "gpu"})
	assert.Error(t, err)
}

func TestRegistry_MissingFunctionEntry(t *testing.T) {
	r := New()
	r.Register("cpu", Registration{})
	_, err := r.CreateStream("cpu")
	assert.Error(t, err)

	err = r.ReleaseStream(Handle{ProviderType: "cpu"})
	assert.Error(t, err)
}

func TestRegistry_GetWaitHandle_BridgesConsumerType(t *testing.T) {
	r := New()
	var calls atomic.Int32
	r.EnsureRegistered([]HandlerProvider{countingProvider{typ: "cpu", calls: &calls}})

	stream, err := r.CreateStream("cpu")
	require.NoError(t, err)
	wait, err := r.GetWaitHandle(stream, "gpu")
	require.NoError(t, err)
	require.NotNil(t, wait)
}
