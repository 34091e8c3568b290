package core

import (
	"encoding/json"
	"net"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *PeerSet) {
	t.Helper()
	peers := NewPeerSet(12, "127.0.0.1", "6969")
	return &Dispatcher{
		Chain:          nil,
		Mempool:        NewMempool(DefaultTxExpireTime),
		LeaderSchedule: NewLeaderSchedule(false),
		Snowball:       NewSnowballStore(),
		Peers:          peers,
		SelfVersion:    "1",
		SelfAddress:    "127.0.0.1",
		SelfPort:       "6969",
	}, peers
}

// pipe returns two connected PeerConnections wrapping a real TCP loopback
// socket pair, the same harness peer_connection_test.go uses.
func pipe(t *testing.T) (client, server *PeerConnection) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			acceptedCh <- conn
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	c, err := DialPeer(KindStream, host, port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var serverConn net.Conn
	select {
	case serverConn = <-acceptedCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
	}
	return c, WrapAccepted(KindStream, serverConn)
}

func TestDispatchHeartbeatRequestRepliesPong(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	if err := client.SendData(TypeRequest, FlagHeartbeat, "PING"); err != nil {
		t.Fatalf("send: %v", err)
	}
	env, err := server.ReceiveData()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	d.Dispatch(server, PeerKey{}, env, 0)

	reply, err := client.ReceiveData()
	if err != nil {
		t.Fatalf("receive reply: %v", err)
	}
	var s string
	if err := json.Unmarshal(reply.Data, &s); err != nil || s != "PONG" {
		t.Fatalf("expected PONG reply, got %+v", reply)
	}
}

func TestDispatchVersionRequestAddsPeerAndReplies(t *testing.T) {
	d, peers := newTestDispatcher(t)
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	payload := VersionPayload{Address: "10.0.0.9", Port: "7000", Version: "1"}
	if err := client.SendData(TypeRequest, FlagVersion, payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	env, err := server.ReceiveData()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	d.Dispatch(server, PeerKey{Address: payload.Address, Port: payload.Port}, env, 0)

	if _, ok := peers.GetPeer(PeerKey{Address: "10.0.0.9", Port: "7000"}); !ok {
		t.Fatal("expected peer to be registered")
	}

	reply, err := client.ReceiveData()
	if err != nil {
		t.Fatalf("receive reply: %v", err)
	}
	if reply.Flag != FlagVersion || reply.Type != TypeResponse {
		t.Fatalf("unexpected reply envelope: %+v", reply)
	}
}

func TestDispatchInvalidPayloadIsSilentlyDropped(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	bad := &Envelope{Type: TypeRequest, Flag: FlagHeartbeat, Data: json.RawMessage(`"NOT_PING"`)}
	d.Dispatch(server, PeerKey{}, bad, 0)

	_ = client.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := client.ReceiveData(); err == nil {
		t.Fatal("expected no reply for an invalid payload")
	}
}

func TestDispatchAddressRequestExcludesRequester(t *testing.T) {
	d, peers := newTestDispatcher(t)
	peers.AddPeer(&Peer{Address: "10.0.0.1", Port: "6969"})
	peers.AddPeer(&Peer{Address: "10.0.0.2", Port: "6969"})
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	if err := client.SendData(TypeRequest, FlagAddress, struct{}{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	env, err := server.ReceiveData()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	d.Dispatch(server, PeerKey{Address: "10.0.0.1", Port: "6969"}, env, 0)

	reply, err := client.ReceiveData()
	if err != nil {
		t.Fatalf("receive reply: %v", err)
	}
	var a AddressResponsePayload
	if err := json.Unmarshal(reply.Data, &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(a.Peers) != 1 || a.Peers[0].Address != "10.0.0.2" {
		t.Fatalf("expected only the non-excluded peer, got %+v", a.Peers)
	}
}

func TestDispatchTransactionRequestAddsToMempool(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	priv, err := genTestKey()
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tx := Transaction{Nonce: 0, GasPrice: 1, Gas: 21000, To: Address{1}, Value: 5}
	signed, err := SignTransaction(tx, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := client.SendData(TypeRequest, FlagTransaction, signed.ToPayload()); err != nil {
		t.Fatalf("send: %v", err)
	}
	env, err := server.ReceiveData()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	d.Dispatch(server, PeerKey{}, env, 0)

	if d.Mempool.Count() != 1 {
		t.Fatalf("expected 1 mempool entry, got %d", d.Mempool.Count())
	}
}

func TestDispatchCampaignRequestUpdatesLeaderSchedule(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	priv, err := genTestKey()
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	addr := pubkeyAddress(priv)
	sig, _, err := GenerateCampaign(priv, 7)
	if err != nil {
		t.Fatalf("generate campaign: %v", err)
	}
	payload := CampaignPayload{"7": CampaignEntry{Address: addr.Hex(), Campaign: CampaignHex(sig)}}

	if err := client.SendData(TypeRequest, FlagCampaign, payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	env, err := server.ReceiveData()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	d.Dispatch(server, PeerKey{}, env, 0)

	leader, ok := d.LeaderSchedule.Get(7)
	if !ok {
		t.Fatal("expected leader to be recorded for block 7")
	}
	if leader.Address != addr {
		t.Fatalf("expected leader address %s, got %s", addr.Hex(), leader.Address.Hex())
	}
}

func TestDispatchQueryRequestReturnsPreferredSibling(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	header := &Header{Number: 3}
	d.Snowball.AddBlock(header)
	d.Snowball.UpdateChit(header.Hash(), true)

	if err := client.SendData(TypeRequest, FlagQuery, QueryRequestPayload{BlockNumber: 3}); err != nil {
		t.Fatalf("send: %v", err)
	}
	env, err := server.ReceiveData()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	d.Dispatch(server, PeerKey{}, env, 0)

	reply, err := client.ReceiveData()
	if err != nil {
		t.Fatalf("receive reply: %v", err)
	}
	var q QueryResponsePayload
	if err := json.Unmarshal(reply.Data, &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if q.BlockHash != header.Hash().Hex() {
		t.Fatalf("expected block hash %s, got %s", header.Hash().Hex(), q.BlockHash)
	}
}

func TestDispatchHeartbeatResponseRecordsPingMillis(t *testing.T) {
	d, peers := newTestDispatcher(t)
	requester := PeerKey{Address: "10.0.0.5", Port: "6969"}
	peers.AddPeer(&Peer{Address: requester.Address, Port: requester.Port})
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	if err := client.SendData(TypeResponse, FlagHeartbeat, "PONG"); err != nil {
		t.Fatalf("send: %v", err)
	}
	env, err := server.ReceiveData()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	d.Dispatch(server, requester, env, 50*time.Millisecond)

	p, ok := peers.GetPeer(requester)
	if !ok {
		t.Fatal("expected peer to still be registered")
	}
	if p.PingMillis != 50 {
		t.Fatalf("expected PingMillis 50, got %v", p.PingMillis)
	}
}
