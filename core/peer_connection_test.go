package core

import (
	"net"
	"testing"
	"time"
)

func TestPeerConnectionSendReceiveRoundTrip(t *testing.T) {
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
	client, err := DialPeer(KindStream, host, port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var serverConn net.Conn
	select {
	case serverConn = <-acceptedCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
	}
	server := WrapAccepted(KindStream, serverConn)
	defer server.Close()

	if err := client.SendData(TypeRequest, FlagHeartbeat, "PING"); err != nil {
		t.Fatalf("send: %v", err)
	}
	env, err := server.ReceiveData()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if env.Type != TypeRequest || env.Flag != FlagHeartbeat {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestPeerConnectionIsOpenFalseAfterClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	pc, err := DialPeer(KindStream, host, port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	pc.Close()
	if pc.IsOpen() {
		t.Fatal("expected IsOpen to report false after close")
	}
}
