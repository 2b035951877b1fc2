package rpcserver

import (
	"context"
	"encoding/json"
	"net"

	"github.com/RetronetBR/torrentfs/internal/protocol"
)

// handleConn services one connection's requests strictly sequentially
// until a framing/decoding error or the peer closes. Command-level
// errors (Runtime/Validation/Path tokens) never close the
// connection; only a malformed frame does.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := conn.RemoteAddr().String()
	log := s.log.With().Str("remote", remote).Logger()
	log.Debug().Msg("connection opened")
	defer log.Debug().Msg("connection closed")

	for {
		body, err := protocol.ReadFrameBytes(conn)
		if err != nil {
			return
		}

		var req request
		if err := json.Unmarshal(body, &req); err != nil {
			log.Warn().Err(err).Msg("malformed request frame, closing connection")
			return
		}

		resp, tail := s.dispatch(connCtx, req)

		if err := protocol.WriteFrame(conn, resp); err != nil {
			return
		}
		if tail != nil {
			if err := protocol.WriteTail(conn, tail); err != nil {
				return
			}
		}
	}
}
