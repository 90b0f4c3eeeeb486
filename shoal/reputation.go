// Package shoal implements the ordering half of the DAG-based BFT
// engine: reputation-weighted leader selection and the two-round-wave
// commit rule over certificates Narwhal has already assembled
// (spec.md §4.8). Grounded on
// modal-validator-consensus/src/shoal/reputation.rs for the
// ReputationManager surface; ReputationConfig/ReputationState/
// PerformanceRecord are not defined anywhere in the retrieved sources
// (reputation.rs imports them from a sibling module absent from the
// pack) and are built here directly from spec.md §4.8's formula.
package shoal

import (
	"sort"

	"github.com/modality-network/node/narwhal"
)

// ReputationConfig bounds the EMA reputation formula (spec.md §4.8).
type ReputationConfig struct {
	// TargetLatencyMS is the latency term's normalization point:
	// latency_term = clamp01(1 - max(0, latency_ms-target)/target).
	TargetLatencyMS uint64
	// DecayFactor weights the previous score against the new term:
	// score_new = decay*score_old + (1-decay)*term.
	DecayFactor float64
	// WindowSize bounds how many recent PerformanceRecords per peer
	// feed update_scores's success rate and mean latency.
	WindowSize int
}

// DefaultReputationConfig matches the values reputation.rs's own tests
// rely on implicitly via ReputationConfig::default() (1s target
// latency, 0.9 decay, a 20-record rolling window).
func DefaultReputationConfig() ReputationConfig {
	return ReputationConfig{
		TargetLatencyMS: 1000,
		DecayFactor:     0.9,
		WindowSize:      20,
	}
}

// PerformanceRecord is one observed round outcome for a peer (spec.md
// §4.8 "each PerformanceRecord is folded into an exponentially
// weighted moving score").
type PerformanceRecord struct {
	Validator string
	Round     uint64
	LatencyMS uint64
	Success   bool
	Timestamp int64
}

// reputationState holds per-peer scores and the recent-record window
// update_scores folds into them.
type reputationState struct {
	config  ReputationConfig
	scores  map[string]float64
	records map[string][]PerformanceRecord
}

func newReputationState(peers []string, config ReputationConfig) *reputationState {
	scores := make(map[string]float64, len(peers))
	for _, p := range peers {
		scores[p] = 1.0
	}
	return &reputationState{
		config:  config,
		scores:  scores,
		records: make(map[string][]PerformanceRecord),
	}
}

func (s *reputationState) recordPerformance(record PerformanceRecord) {
	window := append(s.records[record.Validator], record)
	if s.config.WindowSize > 0 && len(window) > s.config.WindowSize {
		window = window[len(window)-s.config.WindowSize:]
	}
	s.records[record.Validator] = window
	if _, ok := s.scores[record.Validator]; !ok {
		s.scores[record.Validator] = 1.0
	}
}

func (s *reputationState) updateScores() {
	for peer, window := range s.records {
		if len(window) == 0 {
			continue
		}
		term := compositeTerm(window, s.config.TargetLatencyMS)
		old := s.scores[peer]
		s.scores[peer] = s.config.DecayFactor*old + (1-s.config.DecayFactor)*term
	}
}

// compositeTerm folds a peer's recent window into latency_term *
// success_term (spec.md §4.8).
func compositeTerm(window []PerformanceRecord, targetLatencyMS uint64) float64 {
	var latencySum float64
	var successCount int
	for _, r := range window {
		latencySum += latencyTerm(r.LatencyMS, targetLatencyMS)
		if r.Success {
			successCount++
		}
	}
	meanLatencyTerm := latencySum / float64(len(window))
	successTerm := float64(successCount) / float64(len(window))
	return meanLatencyTerm * successTerm
}

// latencyTerm is clamp01(1 - max(0, latency_ms-target)/target).
func latencyTerm(latencyMS, targetMS uint64) float64 {
	if targetMS == 0 {
		return 1.0
	}
	over := 0.0
	if latencyMS > targetMS {
		over = float64(latencyMS-targetMS) / float64(targetMS)
	}
	term := 1.0 - over
	if term < 0 {
		return 0
	}
	if term > 1 {
		return 1
	}
	return term
}

// ReputationManager tracks per-round leader selection over a
// committee's reputation scores (spec.md §4.8).
type ReputationManager struct {
	committee narwhal.Committee
	state     *reputationState
}

func NewReputationManager(committee narwhal.Committee, config ReputationConfig) *ReputationManager {
	peers := make([]string, len(committee.Validators()))
	for i, v := range committee.Validators() {
		peers[i] = v.PeerID
	}
	return &ReputationManager{committee: committee, state: newReputationState(peers, config)}
}

// SelectLeader ranks the committee by reputation descending, ties
// broken by ascending SHA-256(round‖peer_id) (spec.md §4.8 steps 1-3).
func (m *ReputationManager) SelectLeader(round uint64) string {
	ranked := m.rankedPeers(round, nil)
	if len(ranked) == 0 {
		validators := m.committee.Validators()
		if len(validators) == 0 {
			return ""
		}
		return validators[0].PeerID
	}
	return ranked[0]
}

// SelectFallbackLeader returns the next-ranked peer not in exclude.
func (m *ReputationManager) SelectFallbackLeader(round uint64, exclude []string) (string, bool) {
	excludeSet := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excludeSet[e] = true
	}
	ranked := m.rankedPeers(round, excludeSet)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0], true
}

func (m *ReputationManager) rankedPeers(round uint64, exclude map[string]bool) []string {
	type scored struct {
		peer  string
		score float64
	}
	var candidates []scored
	for _, v := range m.committee.Validators() {
		if exclude[v.PeerID] {
			continue
		}
		candidates = append(candidates, scored{peer: v.PeerID, score: m.state.scores[v.PeerID]})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return narwhal.LeaderTiebreakKey(round, candidates[i].peer) < narwhal.LeaderTiebreakKey(round, candidates[j].peer)
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.peer
	}
	return out
}

// RecordPerformance folds record into the peer's recent window.
func (m *ReputationManager) RecordPerformance(record PerformanceRecord) {
	m.state.recordPerformance(record)
}

// UpdateScores applies the EMA update across every peer with pending
// records.
func (m *ReputationManager) UpdateScores() {
	m.state.updateScores()
}

// GetScore returns validator's current reputation score, defaulting to
// 1.0 for an unobserved peer.
func (m *ReputationManager) GetScore(validator string) float64 {
	if score, ok := m.state.scores[validator]; ok {
		return score
	}
	return 1.0
}

// GetAllScores returns every tracked peer's current score.
func (m *ReputationManager) GetAllScores() map[string]float64 {
	out := make(map[string]float64, len(m.state.scores))
	for k, v := range m.state.scores {
		out[k] = v
	}
	return out
}
