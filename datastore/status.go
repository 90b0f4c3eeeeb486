package datastore

import (
	"strconv"

	"github.com/pkg/errors"
)

// Status keys live in the NodeState store (spec.md §3 store layout).
const (
	currentRoundKey = "/status/current_round"
	currentEpochKey = "/status/current_epoch"
)

// CurrentRound returns the current DAG round, 0 if never set (mirrors
// modality-network-datastore's get_current_round).
func (m *Manager) CurrentRound() (uint64, error) {
	return m.readUint64(currentRoundKey)
}

// SetCurrentRound overwrites the current DAG round.
func (m *Manager) SetCurrentRound(round uint64) error {
	return m.writeUint64(currentRoundKey, round)
}

// BumpCurrentRound increments and persists the current DAG round,
// returning the new value (mirrors bump_current_round).
func (m *Manager) BumpCurrentRound() (uint64, error) {
	round, err := m.CurrentRound()
	if err != nil {
		return 0, err
	}
	round++
	if err := m.SetCurrentRound(round); err != nil {
		return 0, err
	}
	return round, nil
}

// CurrentEpoch returns the current mining epoch, 0 if never set.
func (m *Manager) CurrentEpoch() (uint64, error) {
	return m.readUint64(currentEpochKey)
}

// SetCurrentEpoch overwrites the current mining epoch.
func (m *Manager) SetCurrentEpoch(epoch uint64) error {
	return m.writeUint64(currentEpochKey, epoch)
}

func (m *Manager) readUint64(key string) (uint64, error) {
	raw, ok, err := m.NodeStateStore().GetString(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	value, parseErr := strconv.ParseUint(raw, 10, 64)
	if parseErr != nil {
		return 0, errors.Wrapf(parseErr, "datastore: parse %s", key)
	}
	return value, nil
}

func (m *Manager) writeUint64(key string, value uint64) error {
	return m.NodeStateStore().Put(key, []byte(strconv.FormatUint(value, 10)))
}
