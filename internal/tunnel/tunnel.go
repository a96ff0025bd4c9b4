// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package tunnel implements the handshake that bootstraps a fakio
// session's streaming keys (§4.g): a 1024-byte L→R frame carrying a
// clear-text username and an AES-CTR-encrypted SOCKS5-shaped request,
// answered by a 64-byte R→L frame carrying the two directional IVs and
// the streaming key.
package tunnel

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/nishisan-dev/fakio/internal/crypto"
	"github.com/nishisan-dev/fakio/internal/socks5"
	"github.com/nishisan-dev/fakio/internal/users"
)

const (
	// HandshakeSize is the fixed L→R frame size (§4.g).
	HandshakeSize = 1024
	// ResponseSize is the fixed R→L frame size (§4.g).
	ResponseSize = 64

	ivOffset       = 0
	nameLenOffset  = 16
	nameOffset     = 17
	maxNameLen     = users.MaxNameLen
	sessionKeySize = 48 // e_iv(16) || d_iv(16) || key(16)
)

// ClientHello is the plaintext material needed to build an L→R frame.
type ClientHello struct {
	Username string
	Key      [users.KeySize]byte // SHA-256(password), per §6

	// Atyp/Addr/Port are the destination the inner SOCKS5-shaped request
	// carries, copied verbatim from the client's own CONNECT request.
	Atyp byte
	Addr string
	Port uint16
}

// BuildClientFrame renders the 1024-byte handshake frame L sends to R,
// and returns the random IV used for its encrypted tail. The 64-byte
// response carries its own IV, so ParseServerResponse does not need this
// one.
func BuildClientFrame(h ClientHello) (frame [HandshakeSize]byte, iv [crypto.IVSize]byte, err error) {
	if len(h.Username) == 0 || len(h.Username) > maxNameLen {
		return frame, iv, fmt.Errorf("tunnel: username length %d out of range 1..%d", len(h.Username), maxNameLen)
	}

	if _, err = rand.Read(iv[:]); err != nil {
		return frame, iv, fmt.Errorf("tunnel: generating handshake IV: %w", err)
	}
	copy(frame[ivOffset:], iv[:])
	frame[nameLenOffset] = byte(len(h.Username))
	copy(frame[nameOffset:], h.Username)

	tailOffset := nameOffset + len(h.Username)
	atyp, body := socks5.EncodeAddrPort(h.Addr, h.Port)
	plain := append([]byte{socks5.Version, atyp}, body...)
	if len(plain) > HandshakeSize-tailOffset {
		return frame, iv, fmt.Errorf("tunnel: inner request too large for handshake frame")
	}
	// Remaining bytes stay zero — the spec calls this "undefined padding".
	cipherTail := make([]byte, HandshakeSize-tailOffset)
	copy(cipherTail, plain)
	if err = crypto.EncryptAll(h.Key[:], iv[:], len(cipherTail), cipherTail, cipherTail); err != nil {
		return frame, iv, fmt.Errorf("tunnel: encrypting handshake tail: %w", err)
	}
	copy(frame[tailOffset:], cipherTail)

	return frame, iv, nil
}

// ServerRequest is what R recovers after decrypting a client frame's
// tail: the caller-requested destination.
type ServerRequest struct {
	User *users.Record
	Atyp byte
	Addr string
	Port uint16
}

// ParseClientFrame authenticates and decrypts a 1024-byte frame read from
// a freshly accepted tunnel connection (§4.g steps 1-4).
func ParseClientFrame(frame [HandshakeSize]byte, dir *users.Directory) (*ServerRequest, error) {
	nameLen := int(frame[nameLenOffset])
	if nameLen < 1 || nameLen > maxNameLen {
		return nil, fmt.Errorf("tunnel: invalid name_len %d", nameLen)
	}

	name := string(frame[nameOffset : nameOffset+nameLen])
	rec := dir.Find(name)
	if rec == nil {
		return nil, fmt.Errorf("tunnel: unknown user %q", name)
	}

	iv := frame[ivOffset : ivOffset+crypto.IVSize]
	tailOffset := nameOffset + nameLen
	tail := append([]byte(nil), frame[tailOffset:]...)
	if err := crypto.DecryptAll(rec.Key[:], iv, len(tail), tail, tail); err != nil {
		return nil, fmt.Errorf("tunnel: decrypting handshake tail: %w", err)
	}

	if tail[0] != socks5.Version {
		return nil, fmt.Errorf("tunnel: bad inner request version 0x%02x", tail[0])
	}
	addr, port, err := socks5.DecodeAddrPort(bytes.NewReader(tail[2:]), tail[1])
	if err != nil {
		return nil, fmt.Errorf("tunnel: decoding inner request: %w", err)
	}

	return &ServerRequest{User: rec, Atyp: tail[1], Addr: addr, Port: port}, nil
}

// BuildServerResponse renders the 64-byte R→L response and the
// SessionCrypto it commits R to, from R's point of view: e_iv is the IV R
// will encrypt with, d_iv the IV R will decrypt with (§3: "L's e_iv is
// R's d_iv, and vice versa").
func BuildServerResponse(handshakeKey [users.KeySize]byte) (response [ResponseSize]byte, sess *crypto.SessionCrypto, err error) {
	var respIV [crypto.IVSize]byte
	if _, err = rand.Read(respIV[:]); err != nil {
		return response, nil, fmt.Errorf("tunnel: generating response IV: %w", err)
	}

	var plain [sessionKeySize]byte
	if _, err = rand.Read(plain[:]); err != nil {
		return response, nil, fmt.Errorf("tunnel: generating session keys: %w", err)
	}

	copy(response[:crypto.IVSize], respIV[:])
	cipher := make([]byte, sessionKeySize)
	if err = crypto.EncryptAll(handshakeKey[:], respIV[:], sessionKeySize, plain[:], cipher); err != nil {
		return response, nil, fmt.Errorf("tunnel: encrypting response payload: %w", err)
	}
	copy(response[crypto.IVSize:], cipher)

	var bundle [sessionKeySize]byte
	copy(bundle[:], plain[:])
	sess, err = crypto.InitSessionKeys(bundle)
	if err != nil {
		return response, nil, err
	}
	return response, sess, nil
}

// ParseServerResponse is L's side of BuildServerResponse: it decrypts the
// 48-byte payload with the handshake key and the frame's own leading IV,
// then installs session keys with the L/R mirror mapping (e_iv/d_iv
// swapped relative to R, since L encrypts with what R decrypts with).
func ParseServerResponse(response [ResponseSize]byte, handshakeKey [users.KeySize]byte) (*crypto.SessionCrypto, error) {
	iv := response[:crypto.IVSize]
	cipher := append([]byte(nil), response[crypto.IVSize:]...)
	plain := make([]byte, sessionKeySize)
	if err := crypto.DecryptAll(handshakeKey[:], iv, sessionKeySize, cipher, plain); err != nil {
		return nil, fmt.Errorf("tunnel: decrypting response payload: %w", err)
	}

	// R's bundle is e_iv(R) || d_iv(R) || key. L mirrors: L's e_iv is R's
	// d_iv and L's d_iv is R's e_iv.
	var mirrored [sessionKeySize]byte
	copy(mirrored[0:16], plain[16:32])  // L encrypts with R's d_iv
	copy(mirrored[16:32], plain[0:16])  // L decrypts with R's e_iv
	copy(mirrored[32:48], plain[32:48]) // shared key

	return crypto.InitSessionKeys(mirrored)
}
