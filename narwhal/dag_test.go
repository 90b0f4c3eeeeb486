package narwhal_test

import (
	"testing"

	"github.com/modality-network/node/errs"
	"github.com/modality-network/node/narwhal"
	"github.com/stretchr/testify/require"
)

func TestDAGInsertAndGet(t *testing.T) {
	dag := narwhal.NewDAG()
	cert := &narwhal.Certificate{Header: narwhal.Header{Author: "peer-0", Round: 0}}

	require.NoError(t, dag.Insert(cert))
	found, ok := dag.Get(cert.Digest())
	require.True(t, ok)
	require.Equal(t, cert.Header.Author, found.Header.Author)
}

func TestDAGRejectsEquivocation(t *testing.T) {
	dag := narwhal.NewDAG()
	cert1 := &narwhal.Certificate{Header: narwhal.Header{Author: "peer-0", Round: 0, Timestamp: 1000}}
	cert2 := &narwhal.Certificate{Header: narwhal.Header{Author: "peer-0", Round: 0, Timestamp: 2000}}

	require.NoError(t, dag.Insert(cert1))
	err := dag.Insert(cert2)
	require.True(t, errs.Is(err, errs.ErrEquivocation))
}

func TestDAGAllowsSameDigestReinsert(t *testing.T) {
	dag := narwhal.NewDAG()
	cert := &narwhal.Certificate{Header: narwhal.Header{Author: "peer-0", Round: 0}}

	require.NoError(t, dag.Insert(cert))
	require.NoError(t, dag.Insert(cert))
}

func TestDAGGetRoundAndHighestRound(t *testing.T) {
	dag := narwhal.NewDAG()
	require.NoError(t, dag.Insert(&narwhal.Certificate{Header: narwhal.Header{Author: "a", Round: 0}}))
	require.NoError(t, dag.Insert(&narwhal.Certificate{Header: narwhal.Header{Author: "b", Round: 0}}))
	require.NoError(t, dag.Insert(&narwhal.Certificate{Header: narwhal.Header{Author: "a", Round: 1}}))

	require.Len(t, dag.GetRound(0), 2)
	require.Len(t, dag.GetRound(1), 1)
	require.Equal(t, uint64(1), dag.HighestRound())
}

func TestDAGDetectEquivocationWithoutMutating(t *testing.T) {
	dag := narwhal.NewDAG()
	cert1 := &narwhal.Certificate{Header: narwhal.Header{Author: "peer-0", Round: 0, Timestamp: 1000}}
	cert2 := &narwhal.Certificate{Header: narwhal.Header{Author: "peer-0", Round: 0, Timestamp: 2000}}

	require.NoError(t, dag.Insert(cert1))
	require.True(t, dag.DetectEquivocation(cert2))
	require.Len(t, dag.GetRound(0), 1)
}

func TestDAGParentsAvailable(t *testing.T) {
	dag := narwhal.NewDAG()
	parent := &narwhal.Certificate{Header: narwhal.Header{Author: "peer-0", Round: 0}}
	require.NoError(t, dag.Insert(parent))

	child := &narwhal.Certificate{Header: narwhal.Header{
		Author:  "peer-1",
		Round:   1,
		Parents: []narwhal.Digest{parent.Digest()},
	}}
	require.True(t, dag.ParentsAvailable(child))

	missingParent := &narwhal.Certificate{Header: narwhal.Header{
		Author:  "peer-2",
		Round:   1,
		Parents: []narwhal.Digest{{0x42}},
	}}
	require.False(t, dag.ParentsAvailable(missingParent))
}
