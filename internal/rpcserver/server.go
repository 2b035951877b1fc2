// Package rpcserver implements a length-prefixed JSON
// command server over a local stream socket. Each connection is
// serviced by its own goroutine processing requests strictly
// sequentially (no in-connection pipelining); the acceptor itself never
// blocks on command work, so one connection's slow `read` never stalls
// another's. `distribyted` itself is HTTP/gin-based rather than a raw
// socket server, so the accept-loop shape is grounded on `uber-kraken`'s
// `scheduler.listenLoop` (`lib/torrent/scheduler/scheduler.go`): a
// `for { conn, err := listener.Accept(); go handle(conn) }` loop that
// returns on a listener-closed error rather than panicking.
package rpcserver

import (
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/RetronetBR/torrentfs/internal/cachemgr"
	"github.com/RetronetBR/torrentfs/internal/config"
	"github.com/RetronetBR/torrentfs/internal/manager"
)

// Server accepts connections on a listener and dispatches each one's
// requests against a shared manager/cache/config triple.
type Server struct {
	listener net.Listener
	mgr      *manager.Manager
	cache    *cachemgr.Manager
	cfg      config.Config
	log      zerolog.Logger

	wg     sync.WaitGroup
	closed chan struct{}
}

// New wraps an already-bound listener; the daemon resolves the socket
// path and calls net.Listen itself.
func New(listener net.Listener, mgr *manager.Manager, cache *cachemgr.Manager, cfg config.Config, log zerolog.Logger) *Server {
	return &Server{
		listener: listener,
		mgr:      mgr,
		cache:    cache,
		cfg:      cfg,
		log:      log.With().Str("component", "rpcserver").Logger(),
		closed:   make(chan struct{}),
	}
}

// Serve accepts connections until the listener is closed. It blocks;
// call it from its own goroutine. Framing/decoding errors close only
// the offending connection, never the listener, so one bad peer can
// never take down the rest of the connections being served.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections and waits for every open
// connection's handler to return. Open connections are not closed here:
// each handler returns only when its peer disconnects or sends a
// malformed frame.
func (s *Server) Close() error {
	close(s.closed)
	err := s.listener.Close()
	s.wg.Wait()
	return err
}
