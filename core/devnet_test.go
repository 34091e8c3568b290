package core

import (
	"testing"
	"time"

	pkgconfig "cascade-chain/pkg/config"
)

func TestStartDevNetRejectsNonPositiveCount(t *testing.T) {
	if _, err := StartDevNet(0, t.TempDir()); err == nil {
		t.Fatal("expected error for zero nodes")
	}
}

func TestStartDevNetStartsRequestedNodeCount(t *testing.T) {
	nodes, err := StartDevNet(3, t.TempDir())
	if err != nil {
		t.Fatalf("start devnet: %v", err)
	}
	defer func() {
		for _, n := range nodes {
			_ = n.Close()
		}
	}()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	time.Sleep(50 * time.Millisecond)
	for i, n := range nodes {
		if n.Chain.GetCanonicalHead() == nil {
			t.Fatalf("node %d: expected genesis head", i)
		}
	}
}

func TestStartTestNetRejectsEmptyConfigs(t *testing.T) {
	if _, err := StartTestNet(nil); err == nil {
		t.Fatal("expected error for no configs")
	}
}

func TestStartTestNetStartsOneNodePerConfig(t *testing.T) {
	var cfg pkgconfig.Config
	cfg.Network.ListenAddr = "127.0.0.1"
	cfg.Network.P2PPort = 4201
	cfg.Storage.FreezerPath = t.TempDir()

	nodes, err := StartTestNet([]pkgconfig.Config{cfg})
	if err != nil {
		t.Fatalf("start testnet: %v", err)
	}
	defer func() {
		for _, n := range nodes {
			_ = n.Close()
		}
	}()
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
}
