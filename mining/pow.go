package mining

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/modality-network/node/async"
	"github.com/modality-network/node/errs"
	"github.com/pkg/errors"
)

// ErrDifficultyUnreachable is returned by Mine when MaxNonces attempts
// are exhausted without finding a satisfying nonce (spec.md §4.2).
var ErrDifficultyUnreachable = errors.New("mining: difficulty unreachable")

// DefaultMaxNonces is the design target from spec.md §4.2 ("≥ 10^11").
// Tests override it via Miner.MaxNonces to keep runtime bounded.
const DefaultMaxNonces uint64 = 100_000_000_000

// cancellationCheckInterval is how often the POW inner loop checks the
// cancellation flag, per spec.md §5 ("at least every 10^5 attempts").
const cancellationCheckInterval = 100_000

// Miner searches for a nonce satisfying a block's target difficulty. It
// is interruptible: if ctx is cancelled (e.g. because a new canonical
// tip arrived for the block's index), the search is abandoned with
// errs.ErrCancelled.
type Miner struct {
	// MaxNonces overrides DefaultMaxNonces; zero means use the default.
	MaxNonces uint64
}

type powResult struct {
	nonce uint64
	hash  string
	found bool
}

// Mine partitions [0, MaxNonces) across GOMAXPROCS workers via
// async.Scatter (spec.md §5 "parallel CPU use is limited to the POW
// hash search") and searches each partition for a nonce satisfying
// block's target difficulty. It stops early, across all workers, as
// soon as one is found or ctx is cancelled, and sets block.Header.Nonce
// / block.Header.Hash on success.
func (m *Miner) Mine(ctx context.Context, block *Block) error {
	maxNonces := m.MaxNonces
	if maxNonces == 0 {
		maxNonces = DefaultMaxNonces
	}
	if maxNonces > uint64(^uint(0)>>1) {
		maxNonces = uint64(^uint(0) >> 1)
	}

	var stop int32
	var cancelled int32

	results, err := async.Scatter(int(maxNonces), func(offset, entries int, _ *sync.RWMutex) (interface{}, error) {
		count := 0
		for i := 0; i < entries; i++ {
			if atomic.LoadInt32(&stop) != 0 {
				return powResult{}, nil
			}
			count++
			if count%cancellationCheckInterval == 0 {
				select {
				case <-ctx.Done():
					atomic.StoreInt32(&cancelled, 1)
					atomic.StoreInt32(&stop, 1)
					return powResult{}, nil
				default:
				}
			}
			nonce := uint64(offset + i)
			hash, hashErr := block.Header.CalculateHash(nonce)
			if hashErr != nil {
				continue
			}
			if SatisfiesDifficulty(hash, block.Header.TargetDifficulty) {
				atomic.StoreInt32(&stop, 1)
				return powResult{nonce: nonce, hash: hash, found: true}, nil
			}
		}
		return powResult{}, nil
	})
	if err != nil {
		return errors.Wrap(err, "mining: pow search")
	}

	for _, r := range results {
		pr, ok := r.Extent.(powResult)
		if ok && pr.found {
			block.Header.Nonce = pr.nonce
			block.Header.Hash = pr.hash
			return nil
		}
	}
	if atomic.LoadInt32(&cancelled) != 0 {
		return errs.ErrCancelled
	}
	return ErrDifficultyUnreachable
}
