package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Node is the top-level owner of chain, mempool, leader schedule,
// Snowball store, peer set, and server. The server holds only a
// back-reference to Node's dispatcher; Node never reaches into the
// server's internals.
type Node struct {
	Chain          *Chain
	Mempool        *Mempool
	LeaderSchedule *LeaderSchedule
	Snowball       *SnowballStore
	Peers          *PeerSet
	Server         *Server
	Dispatch       *Dispatcher
	Log            *logrus.Entry
}

// Connect dials peer over the given transport kind. A nil error paired
// with a non-nil connection means the caller owns the connection and
// must Close it.
func (n *Node) Connect(peer *Peer, kind ConnKind) (*PeerConnection, error) {
	return DialPeer(kind, peer.Address, peer.Port)
}

// Send issues one message over conn, retrying once with a fresh
// connection on a transport failure, and — if waitForReply is set —
// blocks for one reply and runs it through the dispatcher before
// returning it to the caller.
func (n *Node) Send(peer *Peer, conn *PeerConnection, typ MessageType, flag Flag, data interface{}, retry bool, waitForReply bool) ([]*Envelope, error) {
	start := time.Now()
	err := conn.SendData(typ, flag, data)
	if err != nil && retry {
		if rerr := conn.Reconnect(); rerr == nil {
			start = time.Now()
			err = conn.SendData(typ, flag, data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("node: send to %s: %w", peer.Key(), err)
	}
	if !waitForReply {
		return nil, nil
	}
	env, err := conn.ReceiveData()
	if err != nil {
		return nil, fmt.Errorf("node: receive from %s: %w", peer.Key(), err)
	}
	elapsed := time.Since(start)
	n.Dispatch.Dispatch(conn, peer.Key(), env, elapsed)
	return []*Envelope{env}, nil
}

// Broadcast spawns one send task per peer (n.Peers.All() if peers is
// nil) carrying flag and payload, and waits for every task to finish.
func (n *Node) Broadcast(flag Flag, peers []*Peer, payload interface{}) {
	if peers == nil {
		peers = n.Peers.All()
	}
	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p *Peer) {
			defer wg.Done()
			conn, err := n.Connect(p, KindStream)
			if err != nil {
				if n.Log != nil {
					n.Log.WithError(err).WithField("peer", p.Key()).Debug("broadcast: dial failed")
				}
				return
			}
			defer conn.Close()
			if _, err := n.Send(p, conn, TypeRequest, flag, payload, true, true); err != nil && n.Log != nil {
				n.Log.WithError(err).WithField("peer", p.Key()).Debug("broadcast: send failed")
			}
		}(p)
	}
	wg.Wait()
}

// AddPeer, GetPeer, NumberOfPeers, and MaxPeersReached delegate to the
// node's peer set, the surface the bootstrap and dispatch layers use.
func (n *Node) AddPeer(p *Peer) bool           { return n.Peers.AddPeer(p) }
func (n *Node) GetPeer(k PeerKey) (*Peer, bool) { return n.Peers.GetPeer(k) }
func (n *Node) NumberOfPeers() int             { return n.Peers.NumberOfPeers() }
func (n *Node) MaxPeersReached() bool          { return n.Peers.MaxPeersReached() }

// SelfVersionPayload builds the VERSION payload this node advertises to
// peers, sourced from its dispatcher's self-identity fields.
func (n *Node) SelfVersionPayload() VersionPayload {
	return VersionPayload{Address: n.Dispatch.SelfAddress, Port: n.Dispatch.SelfPort, Version: n.Dispatch.SelfVersion}
}
