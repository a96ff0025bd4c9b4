// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package eventloop

import (
	"container/heap"
	"sync"
	"time"
)

// Timer is a handle returned by Wheel.AfterFunc. Stop cancels the pending
// firing; it is a no-op if the timer already fired or was already stopped.
type Timer struct {
	entry *timerEntry
	wheel *Wheel
}

// Stop cancels the timer. It returns true if the cancellation happened
// before the timer fired.
func (t *Timer) Stop() bool {
	return t.wheel.cancel(t.entry)
}

type timerEntry struct {
	deadline time.Time
	seq      uint64 // breaks deadline ties in FIFO order
	fn       func()
	index    int // heap.Interface bookkeeping
	fired    bool
	canceled bool
}

// timerHeap orders entries by deadline, earliest first, exactly like
// shaperHeap orders smux write requests by priority — the same
// container/heap idiom applied to time instead of class.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel is a single goroutine serializing all deadline bookkeeping behind
// channels, so AfterFunc/Stop never need their own lock around the heap —
// only the request/response handoff is synchronized.
type Wheel struct {
	add    chan *timerEntry
	remove chan *timerEntry
	quit   chan struct{}

	seqMu sync.Mutex
	seq   uint64
}

// NewWheel starts the wheel's background goroutine. Call Stop to shut it
// down once the owning Loop is torn down.
func NewWheel() *Wheel {
	w := &Wheel{
		add:    make(chan *timerEntry),
		remove: make(chan *timerEntry),
		quit:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Stop halts the wheel. Pending timers never fire.
func (w *Wheel) Stop() {
	close(w.quit)
}

// AfterFunc schedules fn to run, in a new goroutine started by the wheel,
// once d has elapsed — the handshake-timeout mechanism of §4.i: the remote
// proxy arms one of these per accepted connection and cancels it once the
// tunnel handshake has concluded. fn runs at most once; the timer does not
// repeat.
func (w *Wheel) AfterFunc(d time.Duration, fn func()) *Timer {
	w.seqMu.Lock()
	w.seq++
	seq := w.seq
	w.seqMu.Unlock()

	e := &timerEntry{deadline: time.Now().Add(d), seq: seq, fn: fn}
	select {
	case w.add <- e:
	case <-w.quit:
	}
	return &Timer{entry: e, wheel: w}
}

func (w *Wheel) cancel(e *timerEntry) bool {
	select {
	case w.remove <- e:
		return !e.fired
	case <-w.quit:
		return false
	}
}

func (w *Wheel) run() {
	var pending timerHeap
	var timer *time.Timer
	var timerC <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	armNext := func() {
		stopTimer()
		if len(pending) == 0 {
			return
		}
		d := time.Until(pending[0].deadline)
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
		timerC = timer.C
	}

	for {
		select {
		case <-w.quit:
			stopTimer()
			return

		case e := <-w.add:
			heap.Push(&pending, e)
			armNext()

		case e := <-w.remove:
			e.canceled = true
			if e.index >= 0 && e.index < len(pending) && pending[e.index] == e {
				heap.Remove(&pending, e.index)
				armNext()
			}

		case <-timerC:
			e := heap.Pop(&pending).(*timerEntry)
			if !e.canceled {
				e.fired = true
				go e.fn()
			}
			armNext()
		}
	}
}
