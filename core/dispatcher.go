package core

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Dispatcher routes one inbound message to the state it affects. It
// never unwinds: every handler call is expected to be wrapped by the
// caller (Server) in a best-effort recover.
type Dispatcher struct {
	Chain          *Chain
	Mempool        *Mempool
	LeaderSchedule *LeaderSchedule
	Snowball       *SnowballStore
	Peers          *PeerSet
	Freezer        *Freezer
	Log            *logrus.Entry

	SelfVersion string
	SelfAddress string
	SelfPort    string

	bootstrapping atomic.Bool
}

// SetBootstrapping toggles whether inbound BLOCK responses are treated
// as catch-up imports (bootstrapping) or Snowball candidates (steady
// state).
func (d *Dispatcher) SetBootstrapping(v bool) { d.bootstrapping.Store(v) }

// IsBootstrapping reports the current mode.
func (d *Dispatcher) IsBootstrapping() bool { return d.bootstrapping.Load() }

// Dispatch validates env's payload schema and routes it to the handler
// for (env.Type, env.Flag). Schema failures are silently dropped — no
// reply is sent for a message that fails validation. elapsed is the
// round-trip time the caller measured getting this reply, zero if the
// message was not itself a reply to a timed request (e.g. an inbound
// request the server is handling); only dispatchResponse's heartbeat
// case uses it.
func (d *Dispatcher) Dispatch(pc *PeerConnection, requester PeerKey, env *Envelope, elapsed time.Duration) {
	if err := ValidatePayload(env.Type, env.Flag, env.Data); err != nil {
		if d.Log != nil {
			d.Log.WithError(err).WithField("flag", env.Flag.String()).Debug("dropping message with invalid payload")
		}
		return
	}
	if env.Type == TypeRequest {
		d.dispatchRequest(pc, requester, env)
	} else {
		d.dispatchResponse(pc, requester, env, elapsed)
	}
}

func (d *Dispatcher) dispatchRequest(pc *PeerConnection, requester PeerKey, env *Envelope) {
	switch env.Flag {
	case FlagHeartbeat:
		_ = pc.SendData(TypeResponse, FlagHeartbeat, "PONG")

	case FlagVersion:
		var v VersionPayload
		_ = json.Unmarshal(env.Data, &v)
		p := &Peer{Address: v.Address, Port: v.Port, Version: v.Version}
		if d.Peers.AddPeer(p) {
			_ = pc.SendData(TypeResponse, FlagVersion, VersionPayload{Address: d.SelfAddress, Port: d.SelfPort, Version: d.SelfVersion})
		}

	case FlagTransaction:
		var t TransactionPayload
		_ = json.Unmarshal(env.Data, &t)
		tx, err := TransactionFromPayload(t)
		if err != nil {
			return
		}
		d.Mempool.Add(tx)

	case FlagAddress:
		entries := make([]AddressEntry, 0)
		for _, p := range d.Peers.Excluding(requester) {
			entries = append(entries, AddressEntry{Address: p.Address, Port: p.Port})
		}
		_ = pc.SendData(TypeResponse, FlagAddress, AddressResponsePayload{Peers: entries})

	case FlagBlock:
		var req BlockRequestPayload
		_ = json.Unmarshal(env.Data, &req)
		head := d.Chain.GetCanonicalHead()
		if head == nil || head.Number <= req.BestBlock {
			return
		}
		headers := make([]HeaderJSON, 0, head.Number-req.BestBlock)
		for n := req.BestBlock + 1; n <= head.Number; n++ {
			h, err := d.Chain.GetCanonicalBlockByNumber(n)
			if err != nil {
				break
			}
			headers = append(headers, h.ToJSON())
		}
		_ = pc.SendData(TypeResponse, FlagBlock, BlockResponsePayload{Blocks: headers})

	case FlagCampaign:
		var entries CampaignPayload
		_ = json.Unmarshal(env.Data, &entries)
		for numStr, entry := range entries {
			n, err := strconv.ParseUint(numStr, 10, 64)
			if err != nil {
				continue
			}
			addr := BytesToAddress(mustHex(entry.Address))
			sig, err := CampaignFromHex(entry.Campaign)
			if err != nil {
				continue
			}
			campaign, err := VerifyCampaign(sig, n, addr)
			if err != nil {
				continue
			}
			d.LeaderSchedule.AddLeader(n, Leader{Address: addr, Campaign: campaign})
		}

	case FlagQuery:
		var q QueryRequestPayload
		_ = json.Unmarshal(env.Data, &q)
		dec, ok := d.Snowball.GetDecisionByBlockNumber(q.BlockNumber)
		if !ok || !dec.Chit {
			return
		}
		_ = pc.SendData(TypeResponse, FlagQuery, QueryResponsePayload{BlockHash: dec.Header.Hash().Hex()})
	}
}

func (d *Dispatcher) dispatchResponse(pc *PeerConnection, requester PeerKey, env *Envelope, elapsed time.Duration) {
	switch env.Flag {
	case FlagHeartbeat:
		if p, ok := d.Peers.GetPeer(requester); ok {
			p.PingMillis = float64(elapsed.Microseconds()) / 1000.0
			if d.Freezer != nil {
				_ = d.Freezer.StorePeer(p)
			}
		}

	case FlagVersion:
		var v VersionPayload
		_ = json.Unmarshal(env.Data, &v)
		d.Peers.AddPeer(&Peer{Address: v.Address, Port: v.Port, Version: v.Version})

	case FlagAddress:
		var a AddressResponsePayload
		_ = json.Unmarshal(env.Data, &a)
		for _, entry := range a.Peers {
			key := PeerKey{Address: entry.Address, Port: entry.Port}
			if _, known := d.Peers.GetPeer(key); known {
				continue
			}
			fresh, err := DialPeer(KindStream, entry.Address, entry.Port)
			if err != nil {
				continue
			}
			_ = fresh.SendData(TypeRequest, FlagVersion, VersionPayload{Address: d.SelfAddress, Port: d.SelfPort, Version: d.SelfVersion})
			fresh.Close()
		}

	case FlagBlock:
		var b BlockResponsePayload
		_ = json.Unmarshal(env.Data, &b)
		for _, hj := range b.Blocks {
			header, err := HeaderFromJSON(hj)
			if err != nil {
				continue
			}
			if d.IsBootstrapping() {
				if _, err := d.Chain.ImportBlock(&Block{Header: header}, NewMemState()); err != nil && d.Log != nil {
					d.Log.WithError(err).Warn("failed to import block during bootstrap")
				}
			} else {
				d.Snowball.AddBlock(header)
			}
		}
	}
}

func mustHex(s string) []byte {
	b, err := hexDecode(s)
	if err != nil {
		return nil
	}
	return b
}
