// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Size-bounded writers for subprocess output capture.
//
// TailBuffer retains only the trailing portion of everything written to it.
// ffmpeg puts the interesting diagnostics at the end of stderr, so for error
// reporting the tail is the part worth keeping.
package lw

// TailBuffer is an io.Writer that keeps at most the last Max bytes written.
// The zero value is not usable, use NewTail.
type TailBuffer struct {
	max   int
	buf   []byte
	total int64
}

// NewTail returns a TailBuffer retaining the trailing max bytes. A
// non-positive max retains nothing.
func NewTail(max int) *TailBuffer {
	if max < 0 {
		max = 0
	}
	return &TailBuffer{max: max}
}

// Write implements io.Writer for *TailBuffer. It never fails and always
// reports the full slice as written.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.total += int64(len(p))

	if t.max == 0 {
		return len(p), nil
	}
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return len(p), nil
	}
	if excess := len(t.buf) + len(p) - t.max; excess > 0 {
		t.buf = append(t.buf[:0], t.buf[excess:]...)
	}
	t.buf = append(t.buf, p...)
	return len(p), nil
}

// Bytes returns the retained tail. The returned slice is valid until the
// next Write.
func (t *TailBuffer) Bytes() []byte {
	return t.buf
}

// String returns the retained tail as a string.
func (t *TailBuffer) String() string {
	return string(t.buf)
}

// Len returns the number of retained bytes.
func (t *TailBuffer) Len() int {
	return len(t.buf)
}

// Total returns the number of bytes ever written, including discarded ones.
func (t *TailBuffer) Total() int64 {
	return t.total
}

// Truncated reports whether any leading bytes have been discarded.
func (t *TailBuffer) Truncated() bool {
	return t.total > int64(len(t.buf))
}
