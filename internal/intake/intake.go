// Package intake accepts framed messages over TCP and replies with the
// decoded JSON, framed the same way.
package intake

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/wireconv/internal/observability"
	"github.com/danmuck/wireconv/internal/protocol"
	"github.com/danmuck/wireconv/internal/protocol/frame"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Decoder turns one complete message into a record.
type Decoder interface {
	Decode(transport, msg string) (protocol.Result, error)
}

type Config struct {
	// Service labels logs and metrics.
	Service      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Limits       frame.Limits
}

type errorReply struct {
	Error string `json:"error"`
}

// Server runs the TCP accept loop.
type Server struct {
	cfg Config
	dec Decoder

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int64
	wg      sync.WaitGroup
}

func New(cfg Config, dec Decoder) *Server {
	return &Server{
		cfg:   cfg,
		dec:   dec,
		conns: make(map[net.Conn]struct{}),
	}
}

// Active returns the number of open connections.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// Serve accepts connections on ln until ctx is done. Open connections are
// closed on shutdown and Serve waits for their handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()
	log.Info().Str("service", s.cfg.Service).Str("addr", ln.Addr().String()).Msg("intake.Serve listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.trackConn(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)

	logger := log.With().
		Str("service", s.cfg.Service).
		Str("conn_id", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	active := s.active.Add(1)
	observability.TCPConnectionOpened(s.cfg.Service)
	logger.Info().Int64("active_clients", active).Msg("intake client connected")
	defer func() {
		remaining := s.active.Add(-1)
		observability.TCPConnectionClosed(s.cfg.Service)
		logger.Info().Int64("active_clients", remaining).Msg("intake client disconnected")
	}()

	reader := bufio.NewReader(conn)
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		fr, err := frame.ReadFrame(reader, s.cfg.Limits)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) || errors.Is(err, net.ErrClosed) {
				logger.Debug().Err(err).Msg("intake read ended")
				return
			}
			// The stream position is lost after a framing error, so reply
			// once and drop the connection.
			observability.RecordDecode(s.cfg.Service, observability.TransportTCP, "", observability.OutcomeFraming, 0)
			logger.Warn().Err(err).Msg("intake framing error")
			_ = s.writeError(conn, err.Error())
			return
		}

		if err := s.reply(conn, fr.Message, logger); err != nil {
			logger.Warn().Err(err).Msg("intake write failed")
			return
		}
	}
}

func (s *Server) reply(conn net.Conn, msg string, logger zerolog.Logger) error {
	res, err := s.dec.Decode(observability.TransportTCP, msg)
	if err != nil {
		reason := "internal error"
		if protocol.IsBadRequest(err) {
			reason = protocol.Reason(err)
		} else {
			logger.Error().Err(err).Msg("intake decode failed")
		}
		return s.writeError(conn, reason)
	}
	payload, err := json.Marshal(res.Record)
	if err != nil {
		logger.Error().Err(err).Str("type_code", res.TypeCode).Msg("intake encode failed")
		return s.writeError(conn, "internal error")
	}
	return s.write(conn, string(payload))
}

func (s *Server) writeError(conn net.Conn, reason string) error {
	payload, err := json.Marshal(errorReply{Error: reason})
	if err != nil {
		return err
	}
	return s.write(conn, string(payload))
}

func (s *Server) write(conn net.Conn, payload string) error {
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := frame.WriteFrame(conn, payload, frame.DefaultLimits()); err != nil {
		if errors.Is(err, frame.ErrMessageTooLarge) {
			return frame.WriteFrame(conn, `{"error":"response too large"}`, frame.DefaultLimits())
		}
		return err
	}
	return nil
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
