// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package session implements the per-flow Context (§3) and the fixed
// capacity arena (§4.d) that issues and reclaims them.
package session

import (
	"net"

	"github.com/nishisan-dev/fakio/internal/buffer"
	"github.com/nishisan-dev/fakio/internal/crypto"
	"github.com/nishisan-dev/fakio/internal/users"
	"golang.org/x/time/rate"
)

// Mask identifies which of the two sockets a Context still owns.
type Mask uint8

const (
	// MaskClient marks the client-facing socket as owned.
	MaskClient Mask = 1 << iota
	// MaskRemote marks the remote-facing socket as owned.
	MaskRemote
)

// Context is one proxied flow: a pair of sockets, a pair of independent
// directional buffers, and the crypto state that ties them together.
//
// Invariants (§3): a Context is reachable from at most one release call at
// a time (enforced by Pool's mutex); once mask becomes empty the Context is
// returned to its pool and both sockets are closed; ReqBuf carries bytes
// from client toward remote, ResBuf the reverse.
type Context struct {
	ID string // short hex id, for log correlation only — not a protocol field

	// ClientConn is the plaintext-side socket: the SOCKS5 client on L, the
	// dialed destination on R. RemoteConn is always the encrypted tunnel
	// socket: to R on L, to L on R. Framing it this way lets both proxies
	// share one relay implementation (§4.h): ReqBuf always flows
	// ClientConn→RemoteConn under encryption, ResBuf the reverse under
	// decryption, regardless of which side is running.
	ClientConn net.Conn
	RemoteConn net.Conn

	ReqBuf *buffer.Buffer // client → remote
	ResBuf *buffer.Buffer // remote → client

	Crypto *crypto.SessionCrypto

	// User identifies the authenticated principal on the remote proxy.
	// Left nil on the local proxy, which performs no authentication of
	// its own (§4.e: "server only").
	User *users.Record

	// ReqLimiter/ResLimiter optionally throttle each direction's relay
	// writes (§6.1). Nil means unlimited — the default, zero-config path.
	ReqLimiter *rate.Limiter
	ResLimiter *rate.Limiter

	mask  Mask
	index int // slot index in the owning Pool's arena
}

func (c *Context) reset() {
	c.ID = ""
	c.ClientConn = nil
	c.RemoteConn = nil
	c.ReqBuf = buffer.New()
	c.ResBuf = buffer.New()
	c.Crypto = nil
	c.User = nil
	c.ReqLimiter = nil
	c.ResLimiter = nil
	c.mask = 0
}

// Mask reports the sockets this Context currently owns.
func (c *Context) Mask() Mask {
	return c.mask
}
