// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package diag

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/nishisan-dev/fakio/internal/session"
)

func TestReporter_CollectLogsPoolOccupancy(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pool := session.NewPool(4)
	pool.Get(session.MaskClient | session.MaskRemote)

	r := NewReporter(pool, logger)
	r.collect()

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte(`"pool_in_use":1`)) {
		t.Fatalf("log output missing pool_in_use=1: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte(`"pool_capacity":4`)) {
		t.Fatalf("log output missing pool_capacity=4: %s", out)
	}
}

func TestReporter_StartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	pool := session.NewPool(1)
	r := NewReporter(pool, logger)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
}
