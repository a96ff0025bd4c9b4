// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package relay implements the post-handshake steady state (§4.h): two
// independent pump goroutines per session, one per direction, copying
// bytes through a transform (encrypt or decrypt) and an optional rate
// limiter. Each pump's own blocking Read/Write calls reproduce the
// original event loop's IDLE_READING/PENDING_WRITE backpressure: while a
// pump is blocked in Write, it simply isn't calling Read again, which is
// exactly rule 1 of §4.h ("the source's read subscription is dropped").
package relay

import (
	"context"
	"fmt"
	"io"

	"github.com/nishisan-dev/fakio/internal/buffer"
	"github.com/nishisan-dev/fakio/internal/session"
	"golang.org/x/time/rate"
)

// direction is one of the two half-duplex pumps making up a session.
type direction struct {
	name    string
	src     io.Reader
	dst     io.Writer
	buf     *buffer.Buffer
	xform   func(sliceView)
	limiter *rate.Limiter
	release session.Mask
}

// Run drives both directions of sess to completion: it blocks until both
// pumps have exited. The first pump to finish releases the whole session
// (both mask bits) from pool, which closes both sockets and so unblocks
// the other pump; its own release is then a no-op (§4.h rule 4, §9
// "Cancellation").
func Run(ctx context.Context, pool *session.Pool, sess *session.Context) {
	dirs := []direction{
		{
			name:    "client->remote",
			src:     sess.ClientConn,
			dst:     sess.RemoteConn,
			buf:     sess.ReqBuf,
			xform:   func(v sliceView) { sess.Crypto.Encrypt(v) },
			limiter: sess.ReqLimiter,
			release: session.MaskClient | session.MaskRemote,
		},
		{
			name:    "remote->client",
			src:     sess.RemoteConn,
			dst:     sess.ClientConn,
			buf:     sess.ResBuf,
			xform:   func(v sliceView) { sess.Crypto.Decrypt(v) },
			limiter: sess.ResLimiter,
			release: session.MaskClient | session.MaskRemote,
		},
	}

	done := make(chan struct{}, len(dirs))
	for _, d := range dirs {
		d := d
		go func() {
			defer func() { done <- struct{}{} }()
			defer pool.Release(sess, d.release)
			// A buffer overflow panic ends this session as a connection
			// reset rather than taking the whole process down.
			defer func() { _ = recover() }()
			pump(ctx, d)
		}()
	}
	for range dirs {
		<-done
	}
}

// pump runs one direction until its source is exhausted or either side
// errors. It never reallocates buf: a full drain always precedes a
// refill, matching §4.a's no-compaction contract.
func pump(ctx context.Context, d direction) {
	for {
		if ctx.Err() != nil {
			return
		}

		if d.buf.DataLen() == 0 {
			d.buf.Reset()
		}

		if d.buf.Capacity() > 0 {
			n, err := d.src.Read(d.buf.WriteAt())
			if n > 0 {
				d.buf.CommitWrite(n)
				d.xform(sliceView{d.buf})
			}
			if err != nil {
				drain(d)
				return
			}
		}

		if d.buf.DataLen() > 0 {
			if err := writeAll(ctx, d); err != nil {
				return
			}
		}
	}
}

// drain flushes whatever is left in the buffer after the source returned
// an error, so a final partial read isn't silently dropped.
func drain(d direction) {
	if d.buf.DataLen() > 0 {
		writeAll(context.Background(), d)
	}
}

// writeAll writes the buffer's full unread range to dst, honoring the
// optional rate limiter by chunking writes to its burst size — the same
// shape as the teacher's throttled writer, adapted to a direct net.Conn
// sink instead of a wrapped io.Writer.
func writeAll(ctx context.Context, d direction) error {
	for d.buf.DataLen() > 0 {
		chunk := d.buf.DataAt()
		if d.limiter != nil {
			burst := d.limiter.Burst()
			if burst > 0 && len(chunk) > burst {
				chunk = chunk[:burst]
			}
			if err := d.limiter.WaitN(ctx, len(chunk)); err != nil {
				return fmt.Errorf("relay[%s]: rate limiter: %w", d.name, err)
			}
		}

		n, err := d.dst.Write(chunk)
		if n > 0 {
			d.buf.CommitRead(n)
		}
		if err != nil {
			return fmt.Errorf("relay[%s]: write: %w", d.name, err)
		}
	}
	return nil
}

// sliceView adapts a *buffer.Buffer to crypto.SessionCrypto's bufLike
// interface; it's a one-line alias kept here rather than in buffer itself
// so buffer stays free of a crypto-shaped dependency.
type sliceView struct{ b *buffer.Buffer }

func (s sliceView) DataAt() []byte { return s.b.DataAt() }
