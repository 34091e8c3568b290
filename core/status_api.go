package core

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// StatusAPI is a read-only HTTP surface for operational visibility —
// chain head, peer count, mempool size — served over chi, the router
// the node's go.mod already carried without a caller; this is the
// component that finally exercises it.
type StatusAPI struct {
	Node       *Node
	ListenAddr string

	server *http.Server
}

// chainSummary is the JSON shape GET /status/chain returns.
type chainSummary struct {
	Number    uint64 `json:"number"`
	Hash      string `json:"hash"`
	Epoch     uint64 `json:"epoch"`
	Slot      uint64 `json:"slot"`
	Timestamp uint64 `json:"timestamp"`
}

// Router builds the chi router this API serves.
func (s *StatusAPI) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/status/chain", s.handleChain)
	r.Get("/status/peers", s.handlePeers)
	r.Get("/status/mempool", s.handleMempool)
	return r
}

func (s *StatusAPI) handleChain(w http.ResponseWriter, r *http.Request) {
	head := s.Node.Chain.GetCanonicalHead()
	if head == nil {
		http.Error(w, "chain not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, chainSummary{
		Number: head.Number, Hash: head.Hash().Hex(),
		Epoch: head.Epoch, Slot: head.Slot, Timestamp: head.Timestamp,
	})
}

func (s *StatusAPI) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Count int     `json:"count"`
		Peers []*Peer `json:"peers"`
	}{Count: s.Node.NumberOfPeers(), Peers: s.Node.Peers.All()})
}

func (s *StatusAPI) handleMempool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Count int `json:"count"`
	}{Count: s.Node.Mempool.Count()})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Start begins serving the status API in the background.
func (s *StatusAPI) Start() error {
	s.server = &http.Server{Addr: s.ListenAddr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return err
	}
	go func() { _ = s.server.Serve(ln) }()
	return nil
}

// Stop closes the status API's HTTP server and its listener at once;
// in-flight requests are not drained.
func (s *StatusAPI) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}
