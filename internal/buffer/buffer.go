// Copyright (c) 2025 The Fakio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package buffer implements the bounded, single-writer/single-reader byte
// window that every proxied flow uses to stage bytes between a socket read
// and the matching encrypt/decrypt/write step.
package buffer

import "fmt"

// Size is the capacity of every Buffer. It is large enough to hold the
// biggest handshake frame (HandshakeSize, 1024 bytes) and is otherwise the
// unit of relay-phase I/O.
const Size = 1024

// HandshakeSize is the fixed size of the L→R tunnel handshake frame (§4.g).
const HandshakeSize = 1024

// ResponseSize is the fixed size of the R→L tunnel handshake response (§4.g).
const ResponseSize = 64

// Buffer is a bounded FIFO byte window over a single fixed-size backing
// array. It never reallocates: writePos and readPos only ever advance until
// Reset zeroes them both. Callers must fully drain (readPos == writePos)
// before calling Reset; the buffer does not auto-compact mid-stream.
type Buffer struct {
	data     [Size]byte
	readPos  int
	writePos int
}

// New returns a freshly zeroed Buffer.
func New() *Buffer {
	return &Buffer{}
}

// DataLen returns the number of unread bytes.
func (b *Buffer) DataLen() int {
	return b.writePos - b.readPos
}

// Capacity returns the number of bytes that can still be written before the
// backing array is exhausted.
func (b *Buffer) Capacity() int {
	return Size - b.writePos
}

// DataAt returns the slice of unread bytes. Valid only when DataLen() > 0.
func (b *Buffer) DataAt() []byte {
	return b.data[b.readPos:b.writePos]
}

// WriteAt returns the slice available for writing new bytes into. Valid
// only when Capacity() > 0.
func (b *Buffer) WriteAt() []byte {
	return b.data[b.writePos:]
}

// CommitWrite advances writePos by n after the caller has populated the
// slice returned by WriteAt. It panics if the commit would exceed capacity —
// per §3 invariant (iv), that is a programming error, not a runtime
// condition callers are expected to recover from.
func (b *Buffer) CommitWrite(n int) {
	if n < 0 || b.writePos+n > Size {
		panic(fmt.Sprintf("buffer: commit_write(%d) overflows capacity (writePos=%d, cap=%d)", n, b.writePos, Size))
	}
	b.writePos += n
}

// CommitRead advances readPos by n after the caller has consumed the slice
// returned by DataAt. It panics if the commit would read past writePos.
func (b *Buffer) CommitRead(n int) {
	if n < 0 || b.readPos+n > b.writePos {
		panic(fmt.Sprintf("buffer: commit_read(%d) overflows data_len (readPos=%d, writePos=%d)", n, b.readPos, b.writePos))
	}
	b.readPos += n
}

// Reset zeroes both cursors. Callers must only call this once all unread
// data has been drained (DataLen() == 0); resetting with unread data would
// silently discard bytes in flight.
func (b *Buffer) Reset() {
	b.readPos = 0
	b.writePos = 0
}

// Full reports whether the buffer has no remaining write capacity.
func (b *Buffer) Full() bool {
	return b.writePos >= Size
}
