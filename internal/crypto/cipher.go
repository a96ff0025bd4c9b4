// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package crypto implements the tunnel's AES-CTR engine: a one-shot
// "encrypt/decrypt all" call used during the handshake, and a persistent
// streaming cipher.Stream per direction used during the relay phase.
//
// There is no authentication tag, no MAC and no sequence binding — per §9
// of the spec this is a deliberate, recorded property of the protocol, not
// an oversight to silently harden.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// IVSize is the width of every IV/counter register used by this protocol.
const IVSize = aes.BlockSize // 16

// EncryptAll XORs the AES-CTR keystream generated from key and iv over n
// bytes of in, writing the result to out. It uses a throwaway counter: it
// never touches a SessionCrypto's persistent streaming state. Used
// exclusively during handshake (§4.g) where the caller supplies a random,
// one-time IV alongside the user's or the session's key.
func EncryptAll(key, iv []byte, n int, in, out []byte) error {
	return xorAll(key, iv, n, in, out)
}

// DecryptAll is identical to EncryptAll: AES-CTR is an XOR cipher, so
// encryption and decryption are the same operation given the same keystream.
func DecryptAll(key, iv []byte, n int, in, out []byte) error {
	return xorAll(key, iv, n, in, out)
}

func xorAll(key, iv []byte, n int, in, out []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("crypto: new AES cipher: %w", err)
	}
	if len(iv) != IVSize {
		return fmt.Errorf("crypto: IV must be %d bytes, got %d", IVSize, len(iv))
	}
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(out[:n], in[:n])
	return nil
}

// SessionCrypto holds the two independent per-direction streaming cipher
// states a session uses after the handshake completes: e (encrypt,
// client→remote at L / remote→client... mirrored per role, see
// InitSessionKeys) and d (decrypt, the reverse direction). Each is backed
// by a cipher.Stream, whose internal counter IS the e_pos/d_pos state §3
// describes — there is no separate position bookkeeping on top of it.
type SessionCrypto struct {
	encryptStream cipher.Stream
	decryptStream cipher.Stream
}

// InitSessionKeys derives the two directional streams from the 48-byte
// bundle exchanged at the end of the handshake: bytes[0:16] is e_iv,
// bytes[16:32] is d_iv, bytes[32:48] is the 16-byte AES-128 session key.
// Callers on both ends pass the SAME 48 bytes; the L/R mirroring (L's
// e_iv is R's d_iv and vice versa) is the caller's responsibility when
// building/parsing the handshake frames, not this function's — this
// function just instantiates two CTR streams from whatever IVs it is given.
func InitSessionKeys(bytes [48]byte) (*SessionCrypto, error) {
	key := bytes[32:48]
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: session key schedule: %w", err)
	}

	eIV := append([]byte(nil), bytes[0:16]...)
	dIV := append([]byte(nil), bytes[16:32]...)

	return &SessionCrypto{
		encryptStream: cipher.NewCTR(block, eIV),
		decryptStream: cipher.NewCTR(block, dIV),
	}, nil
}

// bufLike is the minimal surface SessionCrypto needs from a buffer.Buffer.
// Declared locally (rather than importing internal/buffer) to keep this
// package free of a dependency on the relay's staging buffer — any type
// satisfying this one-method contract can be encrypted/decrypted in place.
type bufLike interface {
	DataAt() []byte
}

// Encrypt XORs the streaming keystream over buf's unread range in place,
// advancing the persistent e_iv/e_pos state for subsequent calls.
func (s *SessionCrypto) Encrypt(buf bufLike) {
	data := buf.DataAt()
	s.encryptStream.XORKeyStream(data, data)
}

// Decrypt is the mirror of Encrypt using the persistent d_iv/d_pos state.
func (s *SessionCrypto) Decrypt(buf bufLike) {
	data := buf.DataAt()
	s.decryptStream.XORKeyStream(data, data)
}
