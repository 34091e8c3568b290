package main

import "testing"

func TestParseSeedPeerSplitsHostPort(t *testing.T) {
	p, ok := parseSeedPeer("seed1.cascade.example:6969")
	if !ok {
		t.Fatal("expected a parsed peer")
	}
	if p.Address != "seed1.cascade.example" || p.Port != "6969" {
		t.Fatalf("unexpected peer: %+v", p)
	}
}

func TestParseSeedPeerRejectsMalformedInput(t *testing.T) {
	if _, ok := parseSeedPeer("not-a-hostport"); ok {
		t.Fatal("expected malformed input to be rejected")
	}
}
