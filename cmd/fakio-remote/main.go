// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Command fakio-remote is the authenticating remote proxy (R) of §2: it
// accepts tunnel connections from fakio-local instances, verifies the
// embedded username against its configured user table, and relays each
// session to its requested destination.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nishisan-dev/fakio/internal/config"
	"github.com/nishisan-dev/fakio/internal/diag"
	"github.com/nishisan-dev/fakio/internal/eventloop"
	"github.com/nishisan-dev/fakio/internal/logging"
	"github.com/nishisan-dev/fakio/internal/remoteproxy"
	"github.com/nishisan-dev/fakio/internal/session"
)

// shutdownGrace bounds how long in-flight sessions get to unwind after a
// shutdown signal before the process exits anyway.
const shutdownGrace = 15 * time.Second

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config_path>\n", os.Args[0])
		os.Exit(1)
	}
	configPath := os.Args[1]

	cfg, err := config.LoadRemoteConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	pool := session.NewPool(session.DefaultCapacity)
	loop := eventloop.New()
	wheel := eventloop.NewWheel()
	defer wheel.Stop()

	reporter := diag.NewReporter(pool, logger)
	if err := reporter.Start(); err != nil {
		logger.Warn("host status reporting disabled", "error", err)
	} else {
		defer reporter.Stop()
	}

	srv := remoteproxy.New(cfg, pool, loop, wheel, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("remote proxy exited", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		<-serveErr
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := loop.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown did not fully drain in-flight sessions", "error", err)
	}
}
