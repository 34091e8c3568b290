package core

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

// DiscoveryTag is the mDNS service tag LAN peers advertise under.
const DiscoveryTag = "cascade-chain"

// Discovery runs a libp2p host purely to announce and discover LAN
// peers over mDNS. It never carries request/response traffic itself —
// the bespoke TCP/UDP transport (peer_connection.go) does that — it
// only hands newly-found addresses to Node as VERSION-handshake
// candidates, same as a configured seed peer would be.
type Discovery struct {
	Node *Node
	Port string
	Log  *logrus.Entry

	host    host.Host
	cancel  context.CancelFunc
}

// Start creates a libp2p host bound to listenAddr, registers it as an
// mDNS notifee under DiscoveryTag, and begins advertising/discovering.
func (d *Discovery) Start(listenAddr string) error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return fmt.Errorf("discovery: create host: %w", err)
	}
	d.host = h

	svc := mdns.NewMdnsService(h, DiscoveryTag, d)
	if err := svc.Start(); err != nil {
		h.Close()
		cancel()
		return fmt.Errorf("discovery: start mdns: %w", err)
	}
	return nil
}

// Stop tears down the discovery host.
func (d *Discovery) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.host != nil {
		return d.host.Close()
	}
	return nil
}

var _ mdns.Notifee = (*Discovery)(nil)

// HandlePeerFound implements mdns.Notifee. It ignores our own host,
// extracts a dialable IP from the discovered multiaddrs, and hands the
// result to Node as a VERSION candidate on our own protocol's port (the
// libp2p host's port is unrelated to it).
func (d *Discovery) HandlePeerFound(info peer.AddrInfo) {
	if d.host != nil && info.ID == d.host.ID() {
		return
	}
	addr, ok := firstDialableIP(info.Addrs)
	if !ok {
		return
	}
	candidate := &Peer{Address: addr, Port: d.Port}
	if _, known := d.Node.GetPeer(candidate.Key()); known {
		return
	}
	conn, err := d.Node.Connect(candidate, KindStream)
	if err != nil {
		if d.Log != nil {
			d.Log.WithError(err).WithField("peer", candidate.Key()).Debug("discovery: dial failed")
		}
		return
	}
	defer conn.Close()
	if _, err := d.Node.Send(candidate, conn, TypeRequest, FlagVersion, d.Node.SelfVersionPayload(), false, true); err != nil && d.Log != nil {
		d.Log.WithError(err).WithField("peer", candidate.Key()).Debug("discovery: version handshake failed")
	}
}

func firstDialableIP(addrs []multiaddr.Multiaddr) (string, bool) {
	for _, a := range addrs {
		if v, err := a.ValueForProtocol(multiaddr.P_IP4); err == nil && v != "" {
			return v, true
		}
		if v, err := a.ValueForProtocol(multiaddr.P_IP6); err == nil && v != "" {
			return v, true
		}
	}
	return "", false
}
