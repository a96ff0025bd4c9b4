// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package socks5

import (
	"bytes"
	"net"
	"testing"
)

// pipeConn adapts a bytes.Buffer pair into the io.ReadWriter the package
// functions expect, without needing a real socket.
type pipeConn struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestNegotiate_AcceptsNoAuth(t *testing.T) {
	c := &pipeConn{in: bytes.NewBuffer([]byte{0x05, 0x02, 0x00, 0x01}), out: &bytes.Buffer{}}
	if err := Negotiate(c); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if got := c.out.Bytes(); !bytes.Equal(got, []byte{0x05, 0x00}) {
		t.Fatalf("reply = % x, want 05 00", got)
	}
}

func TestNegotiate_RejectsWrongVersion(t *testing.T) {
	c := &pipeConn{in: bytes.NewBuffer([]byte{0x04, 0x01, 0x00}), out: &bytes.Buffer{}}
	if err := Negotiate(c); err == nil {
		t.Fatal("expected error for non-SOCKS5 version")
	}
}

func TestNegotiate_RejectsWhenNoAuthNotOffered(t *testing.T) {
	c := &pipeConn{in: bytes.NewBuffer([]byte{0x05, 0x01, 0x02}), out: &bytes.Buffer{}}
	if err := Negotiate(c); err == nil {
		t.Fatal("expected error when client doesn't offer NO_AUTH")
	}
	if got := c.out.Bytes(); !bytes.Equal(got, []byte{0x05, 0xff}) {
		t.Fatalf("reply = % x, want 05 ff", got)
	}
}

func TestReadRequest_IPv4Connect(t *testing.T) {
	req := []byte{0x05, CmdConnect, 0x00, AtypIPv4, 10, 0, 0, 1, 0x1f, 0x90} // 10.0.0.1:8080
	c := &pipeConn{in: bytes.NewBuffer(req), out: &bytes.Buffer{}}

	got, err := ReadRequest(c)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.Addr != "10.0.0.1" || got.Port != 8080 {
		t.Fatalf("got %+v", got)
	}
}

func TestReadRequest_DomainConnect(t *testing.T) {
	domain := "example.com"
	req := append([]byte{0x05, CmdConnect, 0x00, AtypDomain, byte(len(domain))}, domain...)
	req = append(req, 0x00, 0x50) // port 80
	c := &pipeConn{in: bytes.NewBuffer(req), out: &bytes.Buffer{}}

	got, err := ReadRequest(c)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.Addr != domain || got.Port != 80 {
		t.Fatalf("got %+v", got)
	}
	if got.HostPort() != "example.com:80" {
		t.Fatalf("HostPort() = %q", got.HostPort())
	}
}

func TestReadRequest_RejectsNonConnect(t *testing.T) {
	req := []byte{0x05, 0x02 /* BIND */, 0x00, AtypIPv4, 1, 2, 3, 4, 0, 80}
	c := &pipeConn{in: bytes.NewBuffer(req), out: &bytes.Buffer{}}

	if _, err := ReadRequest(c); err == nil {
		t.Fatal("expected error for non-CONNECT command")
	}
	reply := c.out.Bytes()
	if len(reply) < 2 || reply[1] != RepCommandNotSup {
		t.Fatalf("reply = % x, want REP=0x07", reply)
	}
}

func TestEncodeDecodeAddrPort_RoundTrip(t *testing.T) {
	cases := []struct {
		addr string
		port uint16
	}{
		{"192.168.1.1", 443},
		{"example.org", 22},
		{net.IPv6loopback.String(), 9999},
	}
	for _, tc := range cases {
		atyp, body := EncodeAddrPort(tc.addr, tc.port)
		gotAddr, gotPort, err := DecodeAddrPort(bytes.NewReader(body), atyp)
		if err != nil {
			t.Fatalf("DecodeAddrPort(%q): %v", tc.addr, err)
		}
		if gotPort != tc.port {
			t.Fatalf("port = %d, want %d", gotPort, tc.port)
		}
		if net.ParseIP(tc.addr) != nil && net.ParseIP(gotAddr).String() != net.ParseIP(tc.addr).String() {
			t.Fatalf("addr = %q, want %q", gotAddr, tc.addr)
		}
		if net.ParseIP(tc.addr) == nil && gotAddr != tc.addr {
			t.Fatalf("addr = %q, want %q", gotAddr, tc.addr)
		}
	}
}

func TestWriteReply_Succeeded(t *testing.T) {
	var out bytes.Buffer
	if err := WriteReply(&out, RepSucceeded, "0.0.0.0", 0); err != nil {
		t.Fatalf("WriteReply: %v", err)
	}
	want := []byte{0x05, RepSucceeded, 0x00, AtypIPv4, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("reply = % x, want % x", out.Bytes(), want)
	}
}
