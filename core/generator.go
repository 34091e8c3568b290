package core

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// GeneratorMode distinguishes the two halves of an epoch's state
// machine.
type GeneratorMode int

const (
	// ModeElection is the last quarter of an epoch, during which nodes
	// campaign for leadership of the next epoch's block numbers.
	ModeElection GeneratorMode = iota
	// ModeBlockCollection is every other block, during which the
	// generator awaits inbound blocks from the current leader schedule.
	ModeBlockCollection
)

func (m GeneratorMode) String() string {
	if m == ModeElection {
		return "election"
	}
	return "block-collection"
}

// Generator runs the epoch-aligned state machine: at startup, and again
// whenever the window it computes elapses, it reads the canonical
// head's epoch context, decides whether the node is in the election or
// block-collection window, and waits out a window derived
// deterministically from the head's hash (vdf.go).
//
// An earlier design carried a separate `is_campaigning` flag alongside
// the mode. It is dropped here: GeneratorMode already distinguishes the
// two states a caller would have used the flag to ask about, so a
// redundant boolean would add a second source of truth for the same
// fact.
type Generator struct {
	Chain          *Chain
	Dispatch       *Dispatcher
	LeaderSchedule *LeaderSchedule
	Log            *logrus.Entry

	// CampaignKey, if set, lets the generator broadcast its own
	// campaign entries during the election window. A node running
	// read-only (no key) still observes the window but never campaigns.
	CampaignKey *ecdsa.PrivateKey
	Node        *Node

	// Beta and SampleSize parameterise the finalization round's
	// repeated sampling. Zero selects DefaultBeta/DefaultSampleSize.
	Beta       int
	SampleSize int

	release chan struct{}
}

// NewGenerator constructs a Generator bound to chain and dispatch, with
// the default finalization parameters.
func NewGenerator(chain *Chain, dispatch *Dispatcher) *Generator {
	return &Generator{
		Chain: chain, Dispatch: dispatch, LeaderSchedule: dispatch.LeaderSchedule,
		Beta: DefaultBeta, SampleSize: DefaultSampleSize,
		release: make(chan struct{}, 1),
	}
}

// Release sends the cross-process signal that ends an election window
// early, instead of waiting out its full derived duration.
func (g *Generator) Release() {
	select {
	case g.release <- struct{}{}:
	default:
	}
}

// ModeForHead classifies head against the epoch's leader threshold. A
// nil or genesis head is always the election window, since there is no
// prior epoch's leader schedule to collect blocks against yet.
func ModeForHead(head *Header) GeneratorMode {
	if head == nil || head.IsGenesis() {
		return ModeElection
	}
	epochStart := head.Number - (head.EpochBlockNumber - 1)
	threshold := LeaderThreshold(head.EpochSize, epochStart)
	if head.Number == threshold {
		return ModeElection
	}
	return ModeBlockCollection
}

// RunOnce executes a single iteration of the state machine: classify
// the current head, wait out its derived window (or, in the election
// case, until Release fires first), optionally campaigning while it
// waits.
func (g *Generator) RunOnce() {
	head := g.Chain.GetCanonicalHead()
	mode := ModeForHead(head)
	iterations := defaultWindowIterations(head)

	if g.Log != nil {
		g.Log.WithField("mode", mode.String()).WithField("iterations", iterations).Debug("generator window starting")
	}

	switch mode {
	case ModeElection:
		g.runElectionWindow(head, iterations)
	case ModeBlockCollection:
		g.runBlockCollectionWindow(iterations)
	}

	g.runFinalizationRound()
}

func defaultWindowIterations(head *Header) uint64 {
	if head == nil {
		return 1
	}
	return WindowIterations(head.Hash())
}

// runElectionWindow optionally broadcasts this node's own campaign for
// the upcoming epoch's first block number, then blocks on whichever
// comes first: the VDF-derived window completing, or Release.
func (g *Generator) runElectionWindow(head *Header, iterations uint64) {
	if g.CampaignKey != nil && g.Node != nil && head != nil {
		nextEpochFirstBlock := head.Number + 1
		sig, campaign, err := GenerateCampaign(g.CampaignKey, nextEpochFirstBlock)
		if err == nil {
			addr := BytesToAddress(crypto.PubkeyToAddress(g.CampaignKey.PublicKey).Bytes())
			payload := CampaignPayload{
				uintToDecimalString(nextEpochFirstBlock): CampaignEntry{Address: addr.Hex(), Campaign: CampaignHex(sig)},
			}
			g.LeaderSchedule.AddLeader(nextEpochFirstBlock, Leader{Address: addr, Campaign: campaign})
			g.Node.Broadcast(FlagCampaign, nil, payload)
		}
	}

	done := make(chan struct{})
	go func() {
		if head != nil {
			Compute(head.Hash(), iterations)
		}
		close(done)
	}()

	select {
	case <-g.release:
	case <-done:
	}
}

// runBlockCollectionWindow blocks for the VDF-derived window while
// inbound BLOCK messages are processed concurrently by the server's own
// accept-loop goroutines, which call into the same dispatcher.
func (g *Generator) runBlockCollectionWindow(iterations uint64) {
	head := g.Chain.GetCanonicalHead()
	if head == nil {
		time.Sleep(time.Millisecond)
		return
	}
	Compute(head.Hash(), iterations)
}

// runFinalizationRound drives one repeated-sampling round over every
// height with undecided candidates: query a random sample of peers for
// their preferred sibling, update each candidate's chit/confidence/
// consecutive-success counters from the round's majority, and commit
// whichever candidate crosses the beta threshold, pruning its siblings.
func (g *Generator) runFinalizationRound() {
	if g.Node == nil || g.Dispatch == nil || g.Dispatch.Snowball == nil {
		return
	}
	beta := g.Beta
	if beta == 0 {
		beta = DefaultBeta
	}
	sampleSize := g.SampleSize
	if sampleSize == 0 {
		sampleSize = DefaultSampleSize
	}

	sb := g.Dispatch.Snowball
	for _, height := range sb.Heights() {
		siblings := sb.SiblingsAt(height)
		if len(siblings) == 0 {
			continue
		}
		preferred := siblings[0]
		votes := g.sampleQuery(height, sampleSize)

		tally := map[Hash]int{}
		for _, h := range votes {
			tally[h]++
		}
		winner, count := preferred, 0
		for h, c := range tally {
			if c > count {
				winner, count = h, c
			}
		}

		if len(votes) > 0 && count*2 > len(votes) {
			sb.UpdateChit(winner, true)
			sb.IncrementConfidence(winner)
			sb.IncrementConsecutiveSuccesses(winner)
			for _, s := range siblings {
				if s != winner {
					sb.DecrementConsecutiveSuccesses(s)
				}
			}
			if sb.IsFinalized(winner, beta) {
				g.finalize(winner, siblings)
			}
		} else {
			sb.UpdateChit(preferred, false)
			sb.DecrementConsecutiveSuccesses(preferred)
		}
	}
}

// sampleQuery asks up to sampleSize random peers for their preferred
// sibling at height, returning one vote per peer that replied (a peer
// with no chit=true decision at that height sends no reply at all).
func (g *Generator) sampleQuery(height uint64, sampleSize int) []Hash {
	peers := g.Node.Peers.All()
	if len(peers) == 0 {
		return nil
	}
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	if len(peers) > sampleSize {
		peers = peers[:sampleSize]
	}

	votes := make([]Hash, 0, len(peers))
	for _, p := range peers {
		conn, err := g.Node.Connect(p, KindStream)
		if err != nil {
			continue
		}
		envs, err := g.Node.Send(p, conn, TypeRequest, FlagQuery, QueryRequestPayload{BlockNumber: height}, false, true)
		conn.Close()
		if err != nil || len(envs) == 0 {
			continue
		}
		var resp QueryResponsePayload
		if err := json.Unmarshal(envs[0].Data, &resp); err != nil {
			continue
		}
		raw, err := hexDecode(resp.BlockHash)
		if err != nil || len(raw) != len(Hash{}) {
			continue
		}
		votes = append(votes, BytesToHash(raw))
	}
	return votes
}

// finalize commits winner as the new canonical block at its height and
// drops every other undecided sibling at that height.
func (g *Generator) finalize(winner Hash, siblings []Hash) {
	sb := g.Dispatch.Snowball
	dec, ok := sb.GetDecision(winner)
	if !ok || dec.Header == nil {
		return
	}
	if _, err := g.Dispatch.Chain.ImportBlock(&Block{Header: dec.Header}, NewMemState()); err != nil && g.Log != nil {
		g.Log.WithError(err).WithField("height", dec.Header.Number).Warn("finalize: import failed")
	}
	for _, s := range siblings {
		sb.RemoveBlock(s)
	}
}

func uintToDecimalString(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

