// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package localproxy wires together socks5, tunnel, session and relay
// into the local proxy (L) described by §2 and §4.f: accept a SOCKS5
// client, dial the remote proxy, complete the tunnel handshake, then
// relay.
package localproxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/nishisan-dev/fakio/internal/config"
	"github.com/nishisan-dev/fakio/internal/eventloop"
	"github.com/nishisan-dev/fakio/internal/logging"
	"github.com/nishisan-dev/fakio/internal/relay"
	"github.com/nishisan-dev/fakio/internal/session"
	"github.com/nishisan-dev/fakio/internal/socks5"
	"github.com/nishisan-dev/fakio/internal/tunnel"
	"golang.org/x/time/rate"
)

// dialTimeout bounds the blocking connect to the remote proxy (§5,
// "Blocking exception"): the spec accepts this as a compromise rather
// than requiring a non-blocking dial here.
const dialTimeout = 10 * time.Second

// Server accepts SOCKS5 clients and relays them to a remote proxy.
type Server struct {
	cfg    *config.LocalConfig
	pool   *session.Pool
	loop   *eventloop.Loop
	logger *slog.Logger

	listener net.Listener
}

// New builds a Server bound to cfg; call Serve to start accepting.
func New(cfg *config.LocalConfig, pool *session.Pool, loop *eventloop.Loop, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, pool: pool, loop: loop, logger: logging.Component(logger, "localproxy")}
}

// Serve listens on cfg.ListenAddr and accepts connections until ctx is
// canceled or the listener errors. It returns once the listener is
// closed.
func (s *Server) Serve(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("localproxy: listen %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = l

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	s.logger.Info("local proxy listening", "addr", s.cfg.ListenAddr())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("localproxy: accept: %w", err)
		}
		s.loop.Go(func(ctx context.Context) {
			s.handleClient(ctx, conn)
		})
	}
}

func (s *Server) handleClient(ctx context.Context, clientConn net.Conn) {
	if err := socks5.Negotiate(clientConn); err != nil {
		s.logger.Warn("socks5 negotiation failed", "error", err)
		clientConn.Close()
		return
	}

	req, err := socks5.ReadRequest(clientConn)
	if err != nil {
		s.logger.Warn("socks5 request failed", "error", err)
		clientConn.Close()
		return
	}

	sess := s.pool.Get(session.MaskClient)
	if sess == nil {
		s.logger.Warn("session pool exhausted, dropping client")
		clientConn.Close()
		return
	}
	sess.ClientConn = clientConn

	remoteConn, err := net.DialTimeout("tcp", s.cfg.ServerAddr(), dialTimeout)
	if err != nil {
		s.logger.Warn("dialing remote proxy failed", "error", err)
		s.pool.Release(sess, session.MaskClient)
		return
	}
	sess.RemoteConn = remoteConn
	s.pool.Adopt(sess, session.MaskRemote)

	if err := socks5.WriteReply(clientConn, socks5.RepSucceeded, s.cfg.ListenHost, uint16(s.cfg.ListenPort)); err != nil {
		s.logger.Warn("writing socks5 reply failed", "error", err)
		s.pool.Release(sess, session.MaskClient|session.MaskRemote)
		return
	}

	if err := s.handshake(sess, req); err != nil {
		s.logger.Warn("tunnel handshake failed", "error", err)
		s.pool.Release(sess, session.MaskClient|session.MaskRemote)
		return
	}

	if s.cfg.RateBPS > 0 {
		sess.ReqLimiter = rate.NewLimiter(rate.Limit(s.cfg.RateBPS), int(s.cfg.RateBPS))
		sess.ResLimiter = rate.NewLimiter(rate.Limit(s.cfg.RateBPS), int(s.cfg.RateBPS))
	}

	relay.Run(ctx, s.pool, sess)
}

// handshake drives the L side of the tunnel handshake (§4.g): build and
// send the 1024-byte frame, read the 64-byte response, install session
// keys.
func (s *Server) handshake(sess *session.Context, req *socks5.Request) error {
	frame, _, err := tunnel.BuildClientFrame(tunnel.ClientHello{
		Username: s.cfg.Username,
		Key:      s.cfg.SessionKey,
		Atyp:     req.Atyp,
		Addr:     req.Addr,
		Port:     req.Port,
	})
	if err != nil {
		return fmt.Errorf("building handshake frame: %w", err)
	}

	if _, err := sess.RemoteConn.Write(frame[:]); err != nil {
		return fmt.Errorf("sending handshake frame: %w", err)
	}

	var response [tunnel.ResponseSize]byte
	if _, err := io.ReadFull(sess.RemoteConn, response[:]); err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}

	crypt, err := tunnel.ParseServerResponse(response, s.cfg.SessionKey)
	if err != nil {
		return fmt.Errorf("parsing handshake response: %w", err)
	}
	sess.Crypto = crypt
	return nil
}
