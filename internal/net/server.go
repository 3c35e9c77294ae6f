// Package net is the connection edge: TCP accept loop, per-session reader
// and writer goroutines, and the line editor that turns raw client bytes
// into command lines. Nothing in here touches world state.
package net

import (
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
)

// Server accepts TCP connections and creates Sessions. New sessions reach
// the game loop through a channel; the loop notices dead ones itself.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	newConns chan *Session

	maxConns int
	active   atomic.Int64

	ansi    bool
	unicode bool
	outSize int

	log     *zap.Logger
	closeCh chan struct{}
}

func NewServer(bindAddr string, maxConns int, ansi, unicode bool, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		newConns: make(chan *Session, 16),
		maxConns: maxConns,
		ansi:     ansi,
		unicode:  unicode,
		outSize:  256,
		log:      log,
		closeCh:  make(chan struct{}),
	}, nil
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}

		if s.maxConns > 0 && int(s.active.Load()) >= s.maxConns {
			s.log.Warn("connection limit reached, refusing",
				zap.String("ip", conn.RemoteAddr().String()))
			fmt.Fprint(conn, "The realm is full. Try again later.\r\n")
			conn.Close()
			continue
		}

		id := s.nextID.Add(1)
		sess := NewSession(conn, id, s.ansi, s.unicode, s.outSize, s.log)
		sess.Start()
		s.active.Add(1)

		s.log.Info("client connected",
			zap.Uint64("session", id),
			zap.String("ip", sess.IP))

		select {
		case s.newConns <- sess:
		default:
			s.log.Warn("new connection queue full, refusing")
			sess.Close()
			s.active.Add(-1)
		}
	}
}

// NewSessions is the channel the game loop drains for fresh connections.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// SessionGone is called by the game loop when it drops a dead session.
func (s *Server) SessionGone() {
	s.active.Add(-1)
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
