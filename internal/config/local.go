// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package config

import (
	"crypto/sha256"
	"fmt"
	"net"
	"strconv"

	"github.com/nishisan-dev/fakio/internal/users"
	"gopkg.in/ini.v1"
)

var localSchema = map[string]map[string]bool{
	"server":  {"host": true, "port": true},
	"client":  {"host": true, "port": true},
	"user":    {"name": true, "password": true},
	"limits":  {"rate_bps": true},
	"logging": {"level": true, "format": true, "file": true},
}

// LocalConfig is the local proxy's (L) parsed configuration (§6, client
// schema).
type LocalConfig struct {
	ServerHost string
	ServerPort int

	ListenHost string
	ListenPort int

	Username   string
	SessionKey [users.KeySize]byte // SHA-256(password)

	RateBPS int64 // 0 = unlimited

	Logging LoggingConfig
}

// ServerAddr is the remote proxy endpoint L dials.
func (c *LocalConfig) ServerAddr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// ListenAddr is the local SOCKS5 listen endpoint.
func (c *LocalConfig) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// LoadLocalConfig reads and validates a client configuration file.
func LoadLocalConfig(path string) (*LocalConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading local config: %w", err)
	}
	if err := checkSchema(f, localSchema); err != nil {
		return nil, err
	}

	var c LocalConfig

	server := f.Section("server")
	c.ServerHost = server.Key("host").String()
	if c.ServerHost == "" {
		return nil, fmt.Errorf("config: server.host is required")
	}
	if c.ServerPort, err = requirePort(server, "server"); err != nil {
		return nil, err
	}

	client := f.Section("client")
	c.ListenHost = client.Key("host").String()
	if c.ListenHost == "" {
		return nil, fmt.Errorf("config: client.host is required")
	}
	if c.ListenPort, err = requirePort(client, "client"); err != nil {
		return nil, err
	}

	user := f.Section("user")
	c.Username = user.Key("name").String()
	if c.Username == "" || len(c.Username) > users.MaxNameLen {
		return nil, fmt.Errorf("config: user.name must be 1..%d bytes, got %d", users.MaxNameLen, len(c.Username))
	}
	password := user.Key("password").String()
	if password == "" {
		return nil, fmt.Errorf("config: user.password is required")
	}
	c.SessionKey = sha256.Sum256([]byte(password))

	if c.RateBPS, err = loadRateBPS(f); err != nil {
		return nil, err
	}
	c.Logging = loadLogging(f)

	return &c, nil
}

