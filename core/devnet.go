package core

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	pkgconfig "cascade-chain/pkg/config"
)

// NewNode wires up a single Node from a loaded configuration: freezer,
// chain, mempool, leader schedule, Snowball store, peer set, dispatcher
// and server, all pointed at each other the way cmd/node's single-node
// path does, so devnet/testnet exercise the exact same wiring a real
// deployment does.
func NewNode(cfg pkgconfig.Config, log *logrus.Entry) (*Node, error) {
	if cfg.Network.ListenAddr == "" {
		cfg.Network.ListenAddr = "0.0.0.0"
	}
	if cfg.Network.P2PPort == 0 {
		return nil, fmt.Errorf("node: config.network.p2p_port must be set")
	}

	frz := NewFreezer(cfg.Storage.FreezerPath)
	vm := MemVM{}
	state := NewMemState()
	chain := NewChain(frz, vm, state)
	if chain.GetCanonicalHead() == nil {
		genesis := NewGenesisHeader(orDefault(cfg.Consensus.SlotSize, DefaultSlotSize), orDefault(cfg.Consensus.EpochSize, DefaultEpochSize))
		if err := chain.InitGenesis(genesis, NewMemState()); err != nil {
			return nil, fmt.Errorf("node: init genesis: %w", err)
		}
	}

	txExpire := time.Duration(cfg.Consensus.TxExpireSeconds) * time.Second
	mempool := NewMempool(txExpire)
	leaders := NewLeaderSchedule(cfg.Consensus.StakeWeighted)
	snowball := NewSnowballStore()
	port := fmt.Sprintf("%d", cfg.Network.P2PPort)
	peers := NewPeerSet(cfg.Network.MaxPeers, cfg.Network.ListenAddr, port)

	dispatch := &Dispatcher{
		Chain: chain, Mempool: mempool, LeaderSchedule: leaders, Snowball: snowball,
		Peers: peers, Freezer: frz, Log: log,
		SelfVersion: pkgconfig.Version, SelfAddress: cfg.Network.ListenAddr, SelfPort: port,
	}

	srv := &Server{ListenAddr: fmt.Sprintf("%s:%d", cfg.Network.ListenAddr, cfg.Network.P2PPort), Dispatch: dispatch, Log: log}

	return &Node{
		Chain: chain, Mempool: mempool, LeaderSchedule: leaders, Snowball: snowball,
		Peers: peers, Server: srv, Dispatch: dispatch, Log: log,
	}, nil
}

func orDefault(v, def uint64) uint64 {
	if v == 0 {
		return def
	}
	return v
}

// ListenAndServe binds the node's server socket and runs its accept
// loop until Close is called. Intended to be run in its own goroutine.
func (n *Node) ListenAndServe() error {
	if err := n.Server.Listen(); err != nil {
		return err
	}
	n.Server.Serve()
	return nil
}

// Close shuts down the node's server and waits for in-flight handlers
// to finish.
func (n *Node) Close() error {
	if n.Server == nil {
		return nil
	}
	err := n.Server.Shutdown()
	n.Server.Wait()
	return err
}

// StartDevNet spins up count in-memory nodes listening on sequential
// loopback ports, each with its own freezer directory under baseDir.
// It returns the running nodes so the caller can manage their lifecycle.
func StartDevNet(count int, baseDir string) ([]*Node, error) {
	if count <= 0 {
		return nil, fmt.Errorf("devnet: number of nodes must be positive")
	}
	list := make([]*Node, count)
	for i := 0; i < count; i++ {
		var cfg pkgconfig.Config
		cfg.Network.ListenAddr = "127.0.0.1"
		cfg.Network.P2PPort = 4101 + i
		cfg.Network.MaxPeers = DefaultMaxPeers
		cfg.Consensus.SlotSize = DefaultSlotSize
		cfg.Consensus.EpochSize = DefaultEpochSize
		cfg.Consensus.Beta = DefaultBeta
		cfg.Consensus.SampleSize = DefaultSampleSize
		cfg.Storage.FreezerPath = fmt.Sprintf("%s/devnet-%d", baseDir, i)

		log := logrus.NewEntry(logrus.StandardLogger()).WithField("node", i)
		n, err := NewNode(cfg, log)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = list[j].Close()
			}
			return nil, fmt.Errorf("devnet: start node %d: %w", i, err)
		}
		list[i] = n
		go func() {
			if err := n.ListenAndServe(); err != nil && log != nil {
				log.WithError(err).Error("devnet: listen and serve")
			}
		}()
	}
	return list, nil
}

// StartTestNet creates one node per supplied configuration, starting
// each in its own goroutine, and returns them for management by the
// caller.
func StartTestNet(cfgs []pkgconfig.Config) ([]*Node, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("testnet: no node configurations supplied")
	}
	nodes := make([]*Node, len(cfgs))
	for i, cfg := range cfgs {
		log := logrus.NewEntry(logrus.StandardLogger()).WithField("node", i)
		n, err := NewNode(cfg, log)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = nodes[j].Close()
			}
			return nil, fmt.Errorf("testnet: start node %d: %w", i, err)
		}
		nodes[i] = n
		go func() {
			if err := n.ListenAndServe(); err != nil && log != nil {
				log.WithError(err).Error("testnet: listen and serve")
			}
		}()
	}
	return nodes, nil
}
