package core

import "testing"

func TestSnowballAddBlockIsIdempotentByHash(t *testing.T) {
	s := NewSnowballStore()
	h := &Header{Number: 5, ParentHash: BytesToHash([]byte{1}), Timestamp: 1}
	s.AddBlock(h)
	s.AddBlock(h)
	d, ok := s.GetDecisionByBlockNumber(5)
	if !ok {
		t.Fatal("expected a decision at block 5")
	}
	if d.Header.Hash() != h.Hash() {
		t.Fatal("unexpected decision header")
	}
}

func TestSnowballGetDecisionByBlockNumberReturnsFirstInserted(t *testing.T) {
	s := NewSnowballStore()
	h1 := &Header{Number: 5, ParentHash: BytesToHash([]byte{1}), Timestamp: 1}
	h2 := &Header{Number: 5, ParentHash: BytesToHash([]byte{2}), Timestamp: 2}
	s.AddBlock(h1)
	s.AddBlock(h2)
	d, ok := s.GetDecisionByBlockNumber(5)
	if !ok || d.Header.Hash() != h1.Hash() {
		t.Fatal("expected first-inserted sibling to remain preferred")
	}
}

func TestSnowballRemoveBlockClearsBothMaps(t *testing.T) {
	s := NewSnowballStore()
	h := &Header{Number: 5, ParentHash: BytesToHash([]byte{1}), Timestamp: 1}
	s.AddBlock(h)
	s.RemoveBlock(h.Hash())
	if _, ok := s.GetDecision(h.Hash()); ok {
		t.Fatal("expected decision removed")
	}
	if _, ok := s.GetDecisionByBlockNumber(5); ok {
		t.Fatal("expected bucket emptied")
	}
}

func TestSnowballConfidenceAndChitUpdates(t *testing.T) {
	s := NewSnowballStore()
	h := &Header{Number: 1, ParentHash: BytesToHash([]byte{1}), Timestamp: 1}
	s.AddBlock(h)
	s.UpdateChit(h.Hash(), true)
	s.IncrementConfidence(h.Hash())
	s.IncrementConfidence(h.Hash())
	s.DecrementConfidence(h.Hash())
	d, _ := s.GetDecision(h.Hash())
	if !d.Chit || d.Confidence != 1 {
		t.Fatalf("unexpected decision state: %+v", d)
	}
}

func TestSnowballFinalizationAtBeta(t *testing.T) {
	s := NewSnowballStore()
	h := &Header{Number: 1, ParentHash: BytesToHash([]byte{1}), Timestamp: 1}
	s.AddBlock(h)
	for i := 0; i < 3; i++ {
		s.IncrementConsecutiveSuccesses(h.Hash())
	}
	if s.IsFinalized(h.Hash(), 4) {
		t.Fatal("must not finalize before reaching beta")
	}
	s.IncrementConsecutiveSuccesses(h.Hash())
	if !s.IsFinalized(h.Hash(), 4) {
		t.Fatal("must finalize once consecutive successes reach beta")
	}
}

func TestSnowballDecrementConsecutiveSuccessesIsUnboundedDecrement(t *testing.T) {
	s := NewSnowballStore()
	h := &Header{Number: 1, ParentHash: BytesToHash([]byte{1}), Timestamp: 1}
	s.AddBlock(h)
	s.IncrementConsecutiveSuccesses(h.Hash())
	s.IncrementConsecutiveSuccesses(h.Hash())
	s.DecrementConsecutiveSuccesses(h.Hash())
	d, _ := s.GetDecision(h.Hash())
	if d.ConsecutiveSuccesses != 1 {
		t.Fatalf("expected a plain decrement to 1, got %d", d.ConsecutiveSuccesses)
	}
	s.DecrementConsecutiveSuccesses(h.Hash())
	s.DecrementConsecutiveSuccesses(h.Hash())
	d, _ = s.GetDecision(h.Hash())
	if d.ConsecutiveSuccesses != -1 {
		t.Fatalf("expected the counter to go negative rather than floor at 0, got %d", d.ConsecutiveSuccesses)
	}
}
