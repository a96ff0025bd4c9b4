// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package eventloop

import (
	"context"
	"testing"
	"time"
)

func TestLoop_ShutdownWaitsForSpawnedGoroutines(t *testing.T) {
	l := New()

	started := make(chan struct{})
	l.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned %v, want nil", err)
	}
}

func TestLoop_ShutdownTimesOutOnStuckGoroutine(t *testing.T) {
	l := New()

	block := make(chan struct{})
	l.Go(func(ctx context.Context) {
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Shutdown(ctx); err == nil {
		t.Fatal("expected Shutdown to time out on a goroutine that ignores cancellation")
	}
}
