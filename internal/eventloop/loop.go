// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package eventloop is the Go-native stand-in for the original single
// threaded epoll/kqueue reactor (§4.c). Rather than a callback table keyed
// by file descriptor, each accepted connection gets its own pair of
// goroutines; Loop only tracks their lifetime so shutdown can wait for them
// to drain instead of leaking them. The handshake-timeout component (§4.i,
// "Timer Wheel") lives alongside it in timer.go.
package eventloop

import (
	"context"
	"sync"
)

// Loop tracks the goroutines spawned on its behalf so Shutdown can wait for
// all in-flight sessions to unwind before returning, the same role the
// original reactor's run-until-stopped main loop played.
type Loop struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Loop whose Context is canceled when Shutdown is called.
func New() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{ctx: ctx, cancel: cancel}
}

// Context is canceled once Shutdown begins; long-lived goroutines spawned
// via Go should select on it to unwind promptly.
func (l *Loop) Context() context.Context {
	return l.ctx
}

// Go runs fn in a tracked goroutine. fn should return once l.Context() is
// canceled, or sooner if its own work finishes first.
func (l *Loop) Go(fn func(ctx context.Context)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn(l.ctx)
	}()
}

// Shutdown cancels the loop's context and blocks until every goroutine
// spawned via Go has returned, or ctx is done first.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.cancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
