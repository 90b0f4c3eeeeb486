package narwhal

import (
	"sync"
)

// Worker collects submitted transactions and drains them into batches
// on demand (spec.md §4.5). Grounded on
// modal-sequencer-consensus/src/narwhal/worker.rs, generalized from its
// tokio::Mutex-guarded HashMap storage to a plain sync.Mutex since this
// module has no async runtime.
type Worker struct {
	ID            uint32
	Validator     string
	BatchSize     int
	MaxBatchBytes int

	mu       sync.Mutex
	txBuffer []Transaction
	storage  map[Digest]Batch
}

func NewWorker(id uint32, validator string, batchSize, maxBatchBytes int) *Worker {
	return &Worker{
		ID:            id,
		Validator:     validator,
		BatchSize:     batchSize,
		MaxBatchBytes: maxBatchBytes,
		storage:       make(map[Digest]Batch),
	}
}

// AddTransaction appends tx to the pending buffer.
func (w *Worker) AddTransaction(tx Transaction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txBuffer = append(w.txBuffer, tx)
}

// FormBatch drains up to BatchSize pending transactions into a new
// batch, taking fewer when their total data size would exceed
// MaxBatchBytes (a single oversized transaction still forms a batch of
// its own), and stores it for later retrieval by ServeBatch. Returns
// (nil, zero digest, false) when the buffer is empty (worker.rs's
// form_batch returning None).
func (w *Worker) FormBatch(timestamp int64) (*Batch, Digest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.txBuffer) == 0 {
		return nil, Digest{}, false
	}

	take := len(w.txBuffer)
	if take > w.BatchSize && w.BatchSize > 0 {
		take = w.BatchSize
	}
	if w.MaxBatchBytes > 0 {
		size := 0
		for i := 0; i < take; i++ {
			size += len(w.txBuffer[i].Data)
			if size > w.MaxBatchBytes && i > 0 {
				take = i
				break
			}
		}
	}

	transactions := append([]Transaction(nil), w.txBuffer[:take]...)
	w.txBuffer = w.txBuffer[take:]

	batch := Batch{
		Transactions: transactions,
		WorkerID:     w.ID,
		Author:       w.Validator,
		Timestamp:    timestamp,
	}
	digest := batch.Digest()
	w.storage[digest] = batch

	return &batch, digest, true
}

// ServeBatch returns the stored batch for digest, if this worker has
// formed one (spec.md §4.5 "serve_batch: availability protocol").
func (w *Worker) ServeBatch(digest Digest) (*Batch, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	batch, ok := w.storage[digest]
	if !ok {
		return nil, false
	}
	return &batch, true
}

// PendingCount returns the number of buffered, not-yet-batched
// transactions.
func (w *Worker) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.txBuffer)
}
