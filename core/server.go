package core

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AcceptTimeout bounds how long Accept blocks before the loop re-checks
// the shutdown flag.
const AcceptTimeout = 2 * time.Second

// Server runs the listen-accept loop and hands each accepted socket to
// a dedicated handler goroutine. It holds a back-reference to the
// dispatcher it feeds, not the other way around: Server does not own
// Node, and only dispatches inbound messages through that reference.
type Server struct {
	ListenAddr string
	Dispatch   *Dispatcher
	Log        *logrus.Entry

	mu       sync.Mutex
	ln       net.Listener
	shutdown atomic.Bool
	wg       sync.WaitGroup
}

// Listen binds the TCP socket. Call before Serve.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve runs the accept loop until Shutdown is called, returning once
// the listening socket is closed. Each accepted connection is handed to
// its own goroutine running handleConn.
func (s *Server) Serve() {
	for {
		if s.shutdown.Load() {
			return
		}
		s.mu.Lock()
		ln := s.ln
		s.mu.Unlock()
		if tcpLn, ok := ln.(*net.TCPListener); ok {
			_ = tcpLn.SetDeadline(time.Now().Add(AcceptTimeout))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if s.shutdown.Load() {
				return
			}
			if s.Log != nil {
				s.Log.WithError(err).Warn("accept failed")
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads messages from conn until it closes, dispatching each
// one. A panic from the dispatcher is caught and logged so one bad
// message never takes the server down — the dispatcher never unwinds
// through the server loop.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	pc := WrapAccepted(KindStream, conn)
	defer pc.Close()

	host, port, _ := net.SplitHostPort(conn.RemoteAddr().String())
	requester := PeerKey{Address: host, Port: port}
	connID := uuid.NewString()
	log := s.Log
	if log != nil {
		log = log.WithField("conn_id", connID)
	}

	for {
		env, err := pc.ReceiveData()
		if err != nil {
			return
		}
		s.dispatchSafely(pc, requester, env, log)
	}
}

func (s *Server) dispatchSafely(pc *PeerConnection, requester PeerKey, env *Envelope, log *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.WithField("panic", r).Error("dispatcher panic recovered")
		}
	}()
	s.Dispatch.Dispatch(pc, requester, env, 0)
}

// Shutdown sets the shutdown flag and closes the listening socket. Serve
// observes the flag within AcceptTimeout and returns.
func (s *Server) Shutdown() error {
	s.shutdown.Store(true)
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Wait blocks until every in-flight handler goroutine has returned.
func (s *Server) Wait() { s.wg.Wait() }
