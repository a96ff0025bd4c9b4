// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package diag is the ambient, non-functional host-health and
// pool-occupancy log line neither proxy's correctness depends on: a
// periodic snapshot of CPU/memory/load and how much of the session pool
// is in use, on the cron schedule the teacher's backup scheduler uses for
// its own periodic jobs.
package diag

import (
	"log/slog"

	"github.com/nishisan-dev/fakio/internal/logging"
	"github.com/nishisan-dev/fakio/internal/session"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Reporter periodically logs host health and pool occupancy.
type Reporter struct {
	cron   *cron.Cron
	logger *slog.Logger
	pool   *session.Pool
}

// NewReporter builds a Reporter; call Start to begin the schedule and
// Stop to end it.
func NewReporter(pool *session.Pool, logger *slog.Logger) *Reporter {
	r := &Reporter{
		logger: logging.Component(logger, "diag"),
		pool:   pool,
	}
	r.cron = cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(r.logger.Handler(), slog.LevelDebug))))
	return r
}

// Start registers the periodic collection job and starts the scheduler.
func (r *Reporter) Start() error {
	if _, err := r.cron.AddFunc("@every 30s", r.collect); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler; pending jobs are allowed to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) collect() {
	attrs := []any{
		"pool_in_use", r.pool.InUse(),
		"pool_capacity", r.pool.Capacity(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		attrs = append(attrs, "cpu_percent", pct[0])
	} else if err != nil {
		r.logger.Debug("failed to collect cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		attrs = append(attrs, "mem_percent", v.UsedPercent)
	} else {
		r.logger.Debug("failed to collect memory stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		attrs = append(attrs, "load1", l.Load1)
	} else {
		r.logger.Debug("failed to collect load stats", "error", err)
	}

	r.logger.Info("host status", attrs...)
}
