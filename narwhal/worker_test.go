package narwhal_test

import (
	"testing"

	"github.com/modality-network/node/narwhal"
	"github.com/stretchr/testify/require"
)

func TestWorkerAddTransaction(t *testing.T) {
	worker := narwhal.NewWorker(0, "validator-1", 100, 1024*512)
	worker.AddTransaction(narwhal.Transaction{Data: []byte{1, 2, 3}, Timestamp: 1000})
	require.Equal(t, 1, worker.PendingCount())
}

func TestWorkerFormBatch(t *testing.T) {
	worker := narwhal.NewWorker(0, "validator-1", 100, 1024*512)
	for i := 0; i < 5; i++ {
		worker.AddTransaction(narwhal.Transaction{Data: []byte{byte(i)}, Timestamp: int64(1000 + i)})
	}

	batch, _, ok := worker.FormBatch(2000)
	require.True(t, ok)
	require.Len(t, batch.Transactions, 5)
	require.Equal(t, uint32(0), batch.WorkerID)
	require.Equal(t, 0, worker.PendingCount())
}

func TestWorkerServeBatch(t *testing.T) {
	worker := narwhal.NewWorker(0, "validator-1", 100, 1024*512)
	worker.AddTransaction(narwhal.Transaction{Data: []byte{1, 2, 3}, Timestamp: 1000})

	batch, digest, ok := worker.FormBatch(2000)
	require.True(t, ok)

	served, ok := worker.ServeBatch(digest)
	require.True(t, ok)
	require.Equal(t, len(batch.Transactions), len(served.Transactions))

	_, ok = worker.ServeBatch(narwhal.Digest{0x99})
	require.False(t, ok)
}

func TestWorkerBatchSizeLimit(t *testing.T) {
	worker := narwhal.NewWorker(0, "validator-1", 3, 1024*512)
	for i := 0; i < 5; i++ {
		worker.AddTransaction(narwhal.Transaction{Data: []byte{byte(i)}, Timestamp: int64(1000 + i)})
	}

	batch1, _, ok := worker.FormBatch(2000)
	require.True(t, ok)
	require.Len(t, batch1.Transactions, 3)
	require.Equal(t, 2, worker.PendingCount())

	batch2, _, ok := worker.FormBatch(2001)
	require.True(t, ok)
	require.Len(t, batch2.Transactions, 2)
	require.Equal(t, 0, worker.PendingCount())
}

func TestWorkerFormBatchEmpty(t *testing.T) {
	worker := narwhal.NewWorker(0, "validator-1", 100, 1024*512)
	_, _, ok := worker.FormBatch(2000)
	require.False(t, ok)
}
