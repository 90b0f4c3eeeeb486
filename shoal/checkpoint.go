package shoal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/modality-network/node/datastore"
	"github.com/modality-network/node/narwhal"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// defaultCheckpointRetention is Shoal's K (spec.md §4.8 "prunes all but
// the most recent K (default 4)").
const defaultCheckpointRetention = 4

const checkpointPrefix = "/dag/checkpoints/round/"

func checkpointKey(round uint64) string {
	return fmt.Sprintf("%s%d", checkpointPrefix, round)
}

// Snapshot is the serialized unit a checkpoint persists: the DAG's
// certificates, the commit cursor, and reputation scores (spec.md
// §4.8 "serializes (DAG snapshot, consensus state, reputation
// state)"). No Rust source defines this shape; it is built directly
// from spec.md §4.8's checkpointing paragraph.
type Snapshot struct {
	Round              uint64                  `json:"round"`
	Certificates       []*narwhal.Certificate  `json:"certificates"`
	ReputationScores   map[string]float64      `json:"reputation_scores"`
}

// Checkpointer periodically persists Snapshots and prunes all but the
// most recent K. A small LRU cache keeps the most recently written
// snapshots in memory so the common case (replay from the latest
// checkpoint on restart) avoids a disk round trip.
type Checkpointer struct {
	store     *datastore.Store
	retention int
	cache     *lru.Cache
}

func NewCheckpointer(store *datastore.Store, retention int) (*Checkpointer, error) {
	if retention <= 0 {
		retention = defaultCheckpointRetention
	}
	cache, err := lru.New(retention)
	if err != nil {
		return nil, errors.Wrap(err, "shoal: create checkpoint cache")
	}
	return &Checkpointer{store: store, retention: retention, cache: cache}, nil
}

// Save serializes every certificate across all DAG rounds up to and
// including round, plus the reputation manager's current scores, under
// /dag/checkpoints/round/<round>, then prunes all but the most recent K.
func (c *Checkpointer) Save(round uint64, dag *narwhal.DAG, reputer *ReputationManager) error {
	var certs []*narwhal.Certificate
	for r := uint64(0); r <= round; r++ {
		certs = append(certs, dag.GetRound(r)...)
	}

	snapshot := &Snapshot{
		Round:            round,
		Certificates:     certs,
		ReputationScores: reputer.GetAllScores(),
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "shoal: marshal checkpoint")
	}
	if err := c.store.Put(checkpointKey(round), payload); err != nil {
		return err
	}
	c.cache.Add(round, snapshot)

	return c.prune()
}

// Load returns the checkpoint at round, preferring the in-memory cache.
func (c *Checkpointer) Load(round uint64) (*Snapshot, bool, error) {
	if cached, ok := c.cache.Get(round); ok {
		return cached.(*Snapshot), true, nil
	}

	raw, ok, err := c.store.Get(checkpointKey(round))
	if err != nil || !ok {
		return nil, ok, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, false, errors.Wrap(err, "shoal: unmarshal checkpoint")
	}
	c.cache.Add(round, &snapshot)
	return &snapshot, true, nil
}

// LatestRound returns the greatest checkpointed round, or (0, false)
// if none exist.
func (c *Checkpointer) LatestRound() (uint64, bool, error) {
	rounds, err := c.rounds()
	if err != nil {
		return 0, false, err
	}
	if len(rounds) == 0 {
		return 0, false, nil
	}
	return rounds[len(rounds)-1], true, nil
}

// prune keeps only the retention most recent checkpoints, deleting
// everything older.
func (c *Checkpointer) prune() error {
	rounds, err := c.rounds()
	if err != nil {
		return err
	}
	if len(rounds) <= c.retention {
		return nil
	}
	for _, round := range rounds[:len(rounds)-c.retention] {
		if err := c.store.Delete(checkpointKey(round)); err != nil {
			return err
		}
		c.cache.Remove(round)
	}
	return nil
}

func (c *Checkpointer) rounds() ([]uint64, error) {
	kvs, err := c.store.Iterate(checkpointPrefix)
	if err != nil {
		return nil, err
	}
	rounds := make([]uint64, 0, len(kvs))
	for _, kv := range kvs {
		suffix := strings.TrimPrefix(kv.Key, checkpointPrefix)
		round, err := strconv.ParseUint(suffix, 10, 64)
		if err != nil {
			continue
		}
		rounds = append(rounds, round)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i] < rounds[j] })
	return rounds, nil
}
