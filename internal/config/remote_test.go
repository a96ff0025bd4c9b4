// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package config

import "testing"

func TestLoadRemoteConfig_Valid(t *testing.T) {
	path := writeTempConfig(t, `
[server]
host = 0.0.0.0
port = 8888

[users]
alice = 000102030405060700010203040506070001020304050607000102030405060a
bob   = 010203040506070801020304050607080102030405060708010203040506070b
`)

	cfg, err := LoadRemoteConfig(path)
	if err != nil {
		t.Fatalf("LoadRemoteConfig: %v", err)
	}
	if cfg.ListenAddr() != "0.0.0.0:8888" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
	if cfg.Users.Len() != 2 {
		t.Fatalf("Users.Len() = %d, want 2", cfg.Users.Len())
	}
	if cfg.Users.Find("alice") == nil {
		t.Fatal("expected alice in directory")
	}
	if cfg.RateBPS != 0 {
		t.Errorf("RateBPS = %d, want 0", cfg.RateBPS)
	}
}

func TestLoadRemoteConfig_RejectsUnknownSection(t *testing.T) {
	path := writeTempConfig(t, `
[server]
host = 0.0.0.0
port = 8888

[users]
alice = 000102030405060700010203040506070001020304050607000102030405060a

[extra]
foo = bar
`)
	if _, err := LoadRemoteConfig(path); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestLoadRemoteConfig_RejectsEmptyUsers(t *testing.T) {
	path := writeTempConfig(t, `
[server]
host = 0.0.0.0
port = 8888

[users]
`)
	if _, err := LoadRemoteConfig(path); err == nil {
		t.Fatal("expected error for empty [users]")
	}
}

func TestLoadRemoteConfig_RejectsBadHexKey(t *testing.T) {
	path := writeTempConfig(t, `
[server]
host = 0.0.0.0
port = 8888

[users]
alice = not-hex
`)
	if _, err := LoadRemoteConfig(path); err == nil {
		t.Fatal("expected error for malformed hex key")
	}
}

func TestLoadRemoteConfig_WithRateLimit(t *testing.T) {
	path := writeTempConfig(t, `
[server]
host = 0.0.0.0
port = 8888

[users]
alice = 000102030405060700010203040506070001020304050607000102030405060a

[limits]
rate_bps = 1000
`)
	cfg, err := LoadRemoteConfig(path)
	if err != nil {
		t.Fatalf("LoadRemoteConfig: %v", err)
	}
	if cfg.RateBPS != 1000 {
		t.Errorf("RateBPS = %d, want 1000", cfg.RateBPS)
	}
}
