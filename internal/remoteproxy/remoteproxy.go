// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package remoteproxy is the remote proxy (R) side of §2 and §4.g:
// accept a tunnel connection from L, authenticate the embedded username,
// dial the real destination, complete the handshake, then relay. A
// 10-second handshake timer (§4.i) releases the session if it never
// leaves the handshake phase.
package remoteproxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/fakio/internal/config"
	"github.com/nishisan-dev/fakio/internal/eventloop"
	"github.com/nishisan-dev/fakio/internal/logging"
	"github.com/nishisan-dev/fakio/internal/relay"
	"github.com/nishisan-dev/fakio/internal/session"
	"github.com/nishisan-dev/fakio/internal/tunnel"
	"golang.org/x/time/rate"
)

// handshakeTimeout is the fixed 10-second one-shot timer of §4.g.
const handshakeTimeout = 10 * time.Second

// dialTimeout bounds the dial to the final destination.
const dialTimeout = 10 * time.Second

// Server accepts tunnel connections from a local proxy and relays them
// to their requested destination.
type Server struct {
	cfg    *config.RemoteConfig
	pool   *session.Pool
	loop   *eventloop.Loop
	wheel  *eventloop.Wheel
	logger *slog.Logger
}

// New builds a Server bound to cfg.
func New(cfg *config.RemoteConfig, pool *session.Pool, loop *eventloop.Loop, wheel *eventloop.Wheel, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, pool: pool, loop: loop, wheel: wheel, logger: logging.Component(logger, "remoteproxy")}
}

// Serve listens on cfg.ListenAddr and accepts tunnel connections until
// ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("remoteproxy: listen %s: %w", s.cfg.ListenAddr(), err)
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	s.logger.Info("remote proxy listening", "addr", s.cfg.ListenAddr())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("remoteproxy: accept: %w", err)
		}
		s.loop.Go(func(ctx context.Context) {
			s.handleTunnelConn(ctx, conn)
		})
	}
}

func (s *Server) handleTunnelConn(ctx context.Context, tunnelConn net.Conn) {
	sess := s.pool.Get(session.MaskRemote)
	if sess == nil {
		s.logger.Warn("session pool exhausted, dropping connection")
		tunnelConn.Close()
		return
	}
	sess.RemoteConn = tunnelConn

	// settled arbitrates between the timer firing and the handshake
	// concluding: the wheel runs a fired callback on its own goroutine
	// (timer.Stop afterward can't unsend it), so whichever side wins the
	// CAS is the only one allowed to act on sess — the timer truly has no
	// effect once the handshake has already concluded (§4.g).
	var settled atomic.Bool

	timer := s.wheel.AfterFunc(handshakeTimeout, func() {
		if !settled.CompareAndSwap(false, true) {
			return
		}
		s.logger.Warn("handshake timed out", "session", sess.ID)
		s.pool.Release(sess, session.MaskClient|session.MaskRemote)
	})

	if err := s.handshake(sess); err != nil {
		if !settled.CompareAndSwap(false, true) {
			return
		}
		timer.Stop()
		s.logger.Warn("tunnel handshake failed", "error", err)
		s.pool.Release(sess, session.MaskClient|session.MaskRemote)
		return
	}
	if !settled.CompareAndSwap(false, true) {
		return
	}
	timer.Stop()

	if s.cfg.RateBPS > 0 {
		sess.ReqLimiter = rate.NewLimiter(rate.Limit(s.cfg.RateBPS), int(s.cfg.RateBPS))
		sess.ResLimiter = rate.NewLimiter(rate.Limit(s.cfg.RateBPS), int(s.cfg.RateBPS))
	}

	relay.Run(ctx, s.pool, sess)
}

// handshake drives the R side of the tunnel handshake (§4.g steps 1-7).
func (s *Server) handshake(sess *session.Context) error {
	var frame [tunnel.HandshakeSize]byte
	if _, err := io.ReadFull(sess.RemoteConn, frame[:]); err != nil {
		return fmt.Errorf("reading handshake frame: %w", err)
	}

	sreq, err := tunnel.ParseClientFrame(frame, s.cfg.Users)
	if err != nil {
		return fmt.Errorf("parsing handshake frame: %w", err)
	}

	destConn, err := net.DialTimeout("tcp", net.JoinHostPort(sreq.Addr, strconv.Itoa(int(sreq.Port))), dialTimeout)
	if err != nil {
		return fmt.Errorf("dialing destination %s:%d: %w", sreq.Addr, sreq.Port, err)
	}
	sess.ClientConn = destConn
	sess.User = sreq.User
	s.pool.Adopt(sess, session.MaskClient)

	response, crypt, err := tunnel.BuildServerResponse(sreq.User.Key)
	if err != nil {
		return fmt.Errorf("building handshake response: %w", err)
	}
	if _, err := sess.RemoteConn.Write(response[:]); err != nil {
		return fmt.Errorf("sending handshake response: %w", err)
	}
	sess.Crypto = crypt

	return nil
}
