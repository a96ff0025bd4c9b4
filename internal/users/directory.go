// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package users implements the remote proxy's read-only-after-load
// credential table (§4.e). It is consulted once per tunnel handshake to
// resolve the plaintext username carried in the L→R frame into the
// 32-byte key used to decrypt the rest of that frame.
package users

import (
	"encoding/hex"
	"fmt"
)

// MaxNameLen is the longest username accepted in the tunnel handshake's
// clear-text name field (§3, §4.g: "name_len (1..32)").
const MaxNameLen = 32

// KeySize is the width of a user's key: SHA-256(password) at the client,
// the raw 32-byte hex value from the server's [users] config section.
const KeySize = 32

// Record is one entry of the user directory.
type Record struct {
	Name string
	Key  [KeySize]byte
}

// Directory is a read-only-after-load set of {name → key} entries. It is
// safe for concurrent reads from any number of goroutines once the last
// Add/AddHexKey call has returned; nothing mutates it afterward.
type Directory struct {
	byName map[string]*Record
}

// NewDirectory builds an empty directory; entries are added with Add
// before the server starts accepting connections, after which the
// directory must not be mutated.
func NewDirectory() *Directory {
	return &Directory{byName: make(map[string]*Record)}
}

// Add registers a user with a raw 32-byte key. It is an error to call Add
// after the server has begun accepting connections — Directory itself does
// not enforce this (there is no lock), matching §4.e's "read-only after
// startup" contract: the caller (config loading) owns the load/serve
// ordering.
func (d *Directory) Add(name string, key [KeySize]byte) error {
	if name == "" {
		return fmt.Errorf("users: empty name")
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("users: name %q exceeds %d bytes", name, MaxNameLen)
	}
	d.byName[name] = &Record{Name: name, Key: key}
	return nil
}

// AddHexKey is a convenience wrapper for the server config's
// `name = <32-byte-hex-key>` schema (§6).
func (d *Directory) AddHexKey(name, hexKey string) error {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return fmt.Errorf("users: decoding key for %q: %w", name, err)
	}
	if len(raw) != KeySize {
		return fmt.Errorf("users: key for %q must be %d bytes, got %d", name, KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return d.Add(name, key)
}

// Find looks up a user by name, returning nil if absent — the direct
// analogue of fuser_find_user(name, name_len) in the original source.
func (d *Directory) Find(name string) *Record {
	return d.byName[name]
}

// Len reports the number of loaded users.
func (d *Directory) Len() int {
	return len(d.byName)
}
