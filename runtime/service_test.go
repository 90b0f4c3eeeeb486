package runtime_test

import (
	"testing"

	"github.com/modality-network/node/runtime"
	"github.com/stretchr/testify/require"
)

type fakeServiceA struct {
	started bool
	stopped bool
}

func (s *fakeServiceA) Start()       { s.started = true }
func (s *fakeServiceA) Stop() error  { s.stopped = true; return nil }
func (s *fakeServiceA) Status() error { return nil }

type fakeServiceB struct {
	started bool
	stopped bool
}

func (s *fakeServiceB) Start()       { s.started = true }
func (s *fakeServiceB) Stop() error  { s.stopped = true; return nil }
func (s *fakeServiceB) Status() error { return nil }

func TestServiceRegistryStartsAndStopsAll(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	a := &fakeServiceA{}
	b := &fakeServiceB{}
	require.NoError(t, registry.RegisterService(a))
	require.NoError(t, registry.RegisterService(b))

	registry.StartAll()
	require.True(t, a.started)
	require.True(t, b.started)

	require.NoError(t, registry.StopAll())
	require.True(t, a.stopped)
	require.True(t, b.stopped)
}

func TestServiceRegistryRejectsDuplicateType(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&fakeServiceA{}))
	require.Error(t, registry.RegisterService(&fakeServiceA{}))
}

func TestServiceRegistryFetchService(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	a := &fakeServiceA{}
	require.NoError(t, registry.RegisterService(a))

	var dest *fakeServiceA
	require.NoError(t, registry.FetchService(&dest))
	require.Same(t, a, dest)

	var missing *fakeServiceB
	require.Error(t, registry.FetchService(&missing))
}
