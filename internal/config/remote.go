// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/nishisan-dev/fakio/internal/users"
	"gopkg.in/ini.v1"
)

var remoteSchema = map[string]map[string]bool{
	"server":  {"host": true, "port": true},
	"users":   nil, // arbitrary key = username
	"limits":  {"rate_bps": true},
	"logging": {"level": true, "format": true, "file": true},
}

// RemoteConfig is the remote proxy's (R) parsed configuration (§6, server
// schema).
type RemoteConfig struct {
	ListenHost string
	ListenPort int

	Users *users.Directory

	RateBPS int64 // 0 = unlimited

	Logging LoggingConfig
}

// ListenAddr is the tunnel listen endpoint.
func (c *RemoteConfig) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// LoadRemoteConfig reads and validates a server configuration file.
func LoadRemoteConfig(path string) (*RemoteConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading remote config: %w", err)
	}
	if err := checkSchema(f, remoteSchema); err != nil {
		return nil, err
	}

	var c RemoteConfig

	server := f.Section("server")
	c.ListenHost = server.Key("host").String()
	if c.ListenHost == "" {
		return nil, fmt.Errorf("config: server.host is required")
	}
	if c.ListenPort, err = requirePort(server, "server"); err != nil {
		return nil, err
	}

	c.Users = users.NewDirectory()
	if !f.HasSection("users") {
		return nil, fmt.Errorf("config: [users] section is required")
	}
	for _, key := range f.Section("users").Keys() {
		if err := c.Users.AddHexKey(key.Name(), key.String()); err != nil {
			return nil, fmt.Errorf("config: users.%s: %w", key.Name(), err)
		}
	}
	if c.Users.Len() == 0 {
		return nil, fmt.Errorf("config: [users] must have at least one entry")
	}

	if c.RateBPS, err = loadRateBPS(f); err != nil {
		return nil, err
	}
	c.Logging = loadLogging(f)

	return &c, nil
}
