package core

import "sync"

// Decision is the per-candidate-block state the repeated-sampling
// consensus uses to converge on one sibling at a given height.
type Decision struct {
	Header               *Header
	Chit                 bool
	Confidence           int
	ConsecutiveSuccesses int
}

// SnowballStore tracks every competing block at each height (undecided
// siblings) plus the decision record for each candidate hash.
type SnowballStore struct {
	mu              sync.Mutex
	undecidedBlocks map[uint64][]Hash
	decisions       map[Hash]*Decision
}

// NewSnowballStore constructs an empty store.
func NewSnowballStore() *SnowballStore {
	return &SnowballStore{undecidedBlocks: map[uint64][]Hash{}, decisions: map[Hash]*Decision{}}
}

// AddBlock registers header as a new undecided candidate if its hash is
// not already present, appending it to its block number's sibling
// bucket in insertion order.
func (s *SnowballStore) AddBlock(header *Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := header.Hash()
	if _, ok := s.decisions[h]; ok {
		return
	}
	s.decisions[h] = &Decision{Header: header}
	s.undecidedBlocks[header.Number] = append(s.undecidedBlocks[header.Number], h)
}

// RemoveBlock drops hash from both the decision map and its sibling
// bucket, e.g. once it finalizes or loses out to a competitor.
func (s *SnowballStore) RemoveBlock(hash Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[hash]
	if !ok {
		return
	}
	delete(s.decisions, hash)
	bucket := s.undecidedBlocks[d.Header.Number]
	for i, h := range bucket {
		if h == hash {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(s.undecidedBlocks, d.Header.Number)
	} else {
		s.undecidedBlocks[d.Header.Number] = bucket
	}
}

// UpdateChit sets the chit flag for hash, if it has a decision record.
func (s *SnowballStore) UpdateChit(hash Hash, chit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.decisions[hash]; ok {
		d.Chit = chit
	}
}

// IncrementConfidence bumps hash's confidence counter by one.
func (s *SnowballStore) IncrementConfidence(hash Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.decisions[hash]; ok {
		d.Confidence++
	}
}

// DecrementConfidence drops hash's confidence counter by one, unbounded.
func (s *SnowballStore) DecrementConfidence(hash Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.decisions[hash]; ok {
		d.Confidence--
	}
}

// IncrementConsecutiveSuccesses bumps hash's streak counter by one.
func (s *SnowballStore) IncrementConsecutiveSuccesses(hash Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.decisions[hash]; ok {
		d.ConsecutiveSuccesses++
	}
}

// DecrementConsecutiveSuccesses drops hash's streak counter by one,
// unbounded, matching the underlying Snowball algorithm's plain
// decrement rather than a reset-to-zero.
func (s *SnowballStore) DecrementConsecutiveSuccesses(hash Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.decisions[hash]; ok {
		d.ConsecutiveSuccesses--
	}
}

// GetDecisionByBlockNumber returns the first undecided sibling's
// decision at height n — the node's current preferred candidate — or
// false if there is none.
func (s *SnowballStore) GetDecisionByBlockNumber(n uint64) (*Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.undecidedBlocks[n]
	if len(bucket) == 0 {
		return nil, false
	}
	return s.decisions[bucket[0]], true
}

// Heights returns the block numbers that currently have at least one
// undecided candidate, in no particular order.
func (s *SnowballStore) Heights() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.undecidedBlocks))
	for n := range s.undecidedBlocks {
		out = append(out, n)
	}
	return out
}

// SiblingsAt returns every undecided candidate hash at height n.
func (s *SnowballStore) SiblingsAt(n uint64) []Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.undecidedBlocks[n]
	out := make([]Hash, len(bucket))
	copy(out, bucket)
	return out
}

// GetDecision returns the decision record for hash, if any.
func (s *SnowballStore) GetDecision(hash Hash) (*Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[hash]
	return d, ok
}

// IsFinalized reports whether hash's consecutive-success streak has
// reached beta, the caller-supplied finalization threshold; beta is a
// consensus parameter, not hard-coded here.
func (s *SnowballStore) IsFinalized(hash Hash, beta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[hash]
	return ok && d.ConsecutiveSuccesses >= beta
}
