// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package tunnel

import (
	"bytes"
	"testing"

	"github.com/nishisan-dev/fakio/internal/socks5"
	"github.com/nishisan-dev/fakio/internal/users"
)

func testKey(fill byte) (k [users.KeySize]byte) {
	for i := range k {
		k[i] = fill
	}
	return k
}

func TestHandshake_FullRoundTrip(t *testing.T) {
	key := testKey(0x42)

	dir := users.NewDirectory()
	if err := dir.Add("alice", key); err != nil {
		t.Fatalf("Add: %v", err)
	}

	frame, _, err := BuildClientFrame(ClientHello{
		Username: "alice",
		Key:      key,
		Atyp:     socks5.AtypDomain,
		Addr:     "example.com",
		Port:     443,
	})
	if err != nil {
		t.Fatalf("BuildClientFrame: %v", err)
	}
	if len(frame) != HandshakeSize {
		t.Fatalf("frame size = %d, want %d", len(frame), HandshakeSize)
	}

	// R side.
	sreq, err := ParseClientFrame(frame, dir)
	if err != nil {
		t.Fatalf("ParseClientFrame: %v", err)
	}
	if sreq.Addr != "example.com" || sreq.Port != 443 || sreq.User.Name != "alice" {
		t.Fatalf("unexpected server request: %+v", sreq)
	}

	response, serverCrypto, err := BuildServerResponse(key)
	if err != nil {
		t.Fatalf("BuildServerResponse: %v", err)
	}
	if len(response) != ResponseSize {
		t.Fatalf("response size = %d, want %d", len(response), ResponseSize)
	}

	// L side.
	clientCrypto, err := ParseServerResponse(response, key)
	if err != nil {
		t.Fatalf("ParseServerResponse: %v", err)
	}

	// What the client encrypts, the server must decrypt to the same bytes,
	// and vice versa, exactly the mirror property in §3.
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	clientBuf := &sliceBuf{data: append([]byte(nil), plaintext...)}
	clientCrypto.Encrypt(clientBuf)
	serverBuf := &sliceBuf{data: append([]byte(nil), clientBuf.data...)}
	serverCrypto.Decrypt(serverBuf)
	if !bytes.Equal(serverBuf.data, plaintext) {
		t.Fatalf("client->server: got %q, want %q", serverBuf.data, plaintext)
	}

	reply := []byte("pong")
	serverReplyBuf := &sliceBuf{data: append([]byte(nil), reply...)}
	serverCrypto.Encrypt(serverReplyBuf)
	clientReplyBuf := &sliceBuf{data: append([]byte(nil), serverReplyBuf.data...)}
	clientCrypto.Decrypt(clientReplyBuf)
	if !bytes.Equal(clientReplyBuf.data, reply) {
		t.Fatalf("server->client: got %q, want %q", clientReplyBuf.data, reply)
	}
}

func TestParseClientFrame_RejectsUnknownUser(t *testing.T) {
	key := testKey(0x11)
	dir := users.NewDirectory() // empty

	frame, _, err := BuildClientFrame(ClientHello{
		Username: "ghost",
		Key:      key,
		Atyp:     socks5.AtypIPv4,
		Addr:     "10.0.0.1",
		Port:     80,
	})
	if err != nil {
		t.Fatalf("BuildClientFrame: %v", err)
	}

	if _, err := ParseClientFrame(frame, dir); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestParseClientFrame_RejectsBadNameLen(t *testing.T) {
	var frame [HandshakeSize]byte
	frame[nameLenOffset] = 0
	dir := users.NewDirectory()
	if _, err := ParseClientFrame(frame, dir); err == nil {
		t.Fatal("expected error for zero name_len")
	}

	frame[nameLenOffset] = users.MaxNameLen + 1
	if _, err := ParseClientFrame(frame, dir); err == nil {
		t.Fatal("expected error for overlong name_len")
	}
}

func TestBuildClientFrame_RejectsBadUsername(t *testing.T) {
	key := testKey(0x01)
	if _, _, err := BuildClientFrame(ClientHello{Username: "", Key: key}); err == nil {
		t.Fatal("expected error for empty username")
	}
}

func TestHandshake_ReplayDerivesFreshKeys(t *testing.T) {
	// §8 "Handshake idempotence under replay": the same captured L→R frame
	// authenticates again and R derives a brand new, independent session
	// key each time because the response IV and session bytes are random.
	key := testKey(0x7a)
	dir := users.NewDirectory()
	dir.Add("alice", key)

	frame, _, err := BuildClientFrame(ClientHello{Username: "alice", Key: key, Atyp: socks5.AtypIPv4, Addr: "1.2.3.4", Port: 1})
	if err != nil {
		t.Fatalf("BuildClientFrame: %v", err)
	}

	if _, err := ParseClientFrame(frame, dir); err != nil {
		t.Fatalf("first ParseClientFrame: %v", err)
	}
	if _, err := ParseClientFrame(frame, dir); err != nil {
		t.Fatalf("replayed ParseClientFrame: %v", err)
	}

	r1, _, err := BuildServerResponse(key)
	if err != nil {
		t.Fatalf("BuildServerResponse #1: %v", err)
	}
	r2, _, err := BuildServerResponse(key)
	if err != nil {
		t.Fatalf("BuildServerResponse #2: %v", err)
	}
	if bytes.Equal(r1[:], r2[:]) {
		t.Fatal("expected two independent responses to differ")
	}
}

// sliceBuf implements the crypto package's bufLike interface over a plain
// slice, since the tunnel handshake doesn't route data through buffer.Buffer.
type sliceBuf struct{ data []byte }

func (s *sliceBuf) DataAt() []byte { return s.data }
