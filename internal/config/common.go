// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package config loads the two INI configuration schemas fakio's binaries
// accept (§6): the client's ([server], [client], [user], optional
// [limits]) and the server's ([server], [users], optional [limits]).
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// limitsSection is shared by both schemas; rate_bps <= 0 means unlimited,
// which is also the implicit default when the section or key is absent.
const limitsSection = "limits"

// loggingSection is shared by both schemas; every key is optional and
// defaults to logging.NewLogger's own defaults when absent.
const loggingSection = "logging"

// LoggingConfig is the optional [logging] section accepted by both
// binaries' config files.
type LoggingConfig struct {
	Level  string // "debug"|"info"|"warn"|"error", default "info"
	Format string // "json"|"text", default "json"
	File   string // optional extra sink, in addition to stdout
}

func loadLogging(f *ini.File) LoggingConfig {
	lc := LoggingConfig{Level: "info", Format: "json"}
	if !f.HasSection(loggingSection) {
		return lc
	}
	sec := f.Section(loggingSection)
	if v := sec.Key("level").String(); v != "" {
		lc.Level = v
	}
	if v := sec.Key("format").String(); v != "" {
		lc.Format = v
	}
	lc.File = sec.Key("file").String()
	return lc
}

// checkSchema rejects any section or key the caller hasn't whitelisted
// (§6: "Unknown sections or keys cause the load to fail"). A nil key set
// for a section permits arbitrary key names within it — used for
// [users], whose keys are user names chosen by the operator.
func checkSchema(f *ini.File, allowed map[string]map[string]bool) error {
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			if len(sec.Keys()) > 0 {
				return fmt.Errorf("config: unexpected top-level key %q", sec.Keys()[0].Name())
			}
			continue
		}

		keys, ok := allowed[name]
		if !ok {
			return fmt.Errorf("config: unknown section [%s]", name)
		}
		if keys == nil {
			continue
		}
		for _, k := range sec.Keys() {
			if !keys[k.Name()] {
				return fmt.Errorf("config: unknown key %q in section [%s]", k.Name(), name)
			}
		}
	}
	return nil
}

// loadRateBPS reads the optional [limits] rate_bps key, defaulting to 0
// (unlimited) when the section or key is absent.
func loadRateBPS(f *ini.File) (int64, error) {
	if !f.HasSection(limitsSection) {
		return 0, nil
	}
	key := f.Section(limitsSection).Key("rate_bps")
	if key.String() == "" {
		return 0, nil
	}
	v, err := key.Int64()
	if err != nil {
		return 0, fmt.Errorf("config: limits.rate_bps: %w", err)
	}
	if v < 0 {
		return 0, fmt.Errorf("config: limits.rate_bps must be >= 0, got %d", v)
	}
	return v, nil
}

func requirePort(section *ini.Section, field string) (int, error) {
	v, err := section.Key("port").Int()
	if err != nil {
		return 0, fmt.Errorf("config: %s.port: %w", field, err)
	}
	if v < 1 || v > 65535 {
		return 0, fmt.Errorf("config: %s.port must be in 1..65535, got %d", field, v)
	}
	return v, nil
}
