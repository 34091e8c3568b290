package core

import (
	"math/big"
	"sync"
)

// Leader is the per-block winner of the VRF-weighted election: the
// address that signed the highest campaign value for that block number.
type Leader struct {
	Address  Address
	Stake    *big.Int
	Campaign *big.Int
}

// LeaderSchedule maps block numbers to elected leaders for the upcoming
// epoch, monotone in campaign value: once a leader with campaign C is
// recorded for a block number, only a strictly larger campaign replaces
// it.
type LeaderSchedule struct {
	mu            sync.Mutex
	leaders       map[uint64]Leader
	stakeWeighted bool
}

// NewLeaderSchedule constructs an empty schedule. stakeWeighted decides
// whether campaign values are weighted by stake before comparison. Off
// by default, matching the ambiguous behaviour of the system this was
// derived from.
func NewLeaderSchedule(stakeWeighted bool) *LeaderSchedule {
	return &LeaderSchedule{leaders: map[uint64]Leader{}, stakeWeighted: stakeWeighted}
}

func (s *LeaderSchedule) weighted(l Leader) *big.Int {
	if !s.stakeWeighted || l.Stake == nil || l.Stake.Sign() <= 0 {
		return l.Campaign
	}
	return new(big.Int).Mul(l.Campaign, l.Stake)
}

// AddLeader records newLeader at blockNumber if its (possibly
// stake-weighted) campaign strictly exceeds the incumbent's, returning
// whether the write happened.
func (s *LeaderSchedule) AddLeader(blockNumber uint64, newLeader Leader) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leaders[blockNumber]
	if ok && s.weighted(newLeader).Cmp(s.weighted(existing)) <= 0 {
		return false
	}
	s.leaders[blockNumber] = newLeader
	return true
}

// Get returns the current winner for blockNumber, if any.
func (s *LeaderSchedule) Get(blockNumber uint64) (Leader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leaders[blockNumber]
	return l, ok
}
