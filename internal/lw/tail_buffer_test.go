// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lw_test

import (
	"bytes"
	"io"
	"testing"
	"testing/quick"

	"github.com/evolution-gaming/vqmeter/internal/lw"
)

func TestTailBufferImplementsWriter(t *testing.T) {
	var _ io.Writer = &lw.TailBuffer{}
}

func TestTailBufferProp(t *testing.T) {
	// How many iterations quick.Check should run.
	iterations := 1 * 1000
	qCfg := &quick.Config{MaxCount: iterations}

	t.Run(
		"Large enough buffer retains everything",
		func(t *testing.T) {
			fn := func(b []byte) bool {
				w := lw.NewTail(len(b))
				n, err := w.Write(b)
				if err != nil {
					return false
				}
				return n == len(b) && bytes.Equal(b, w.Bytes()) && !w.Truncated()
			}
			if err := quick.Check(fn, qCfg); err != nil {
				t.Error(err)
			}
		})

	t.Run(
		"Retained bytes never exceed the cap",
		func(t *testing.T) {
			fn := func(chunks [][]byte, max uint8) bool {
				w := lw.NewTail(int(max))
				for _, c := range chunks {
					n, err := w.Write(c)
					if err != nil || n != len(c) {
						return false
					}
				}
				return w.Len() <= int(max)
			}
			if err := quick.Check(fn, qCfg); err != nil {
				t.Error(err)
			}
		})

	t.Run(
		"Retained bytes are a suffix of the full stream",
		func(t *testing.T) {
			fn := func(chunks [][]byte, max uint8) bool {
				w := lw.NewTail(int(max))
				var full bytes.Buffer
				for _, c := range chunks {
					if _, err := w.Write(c); err != nil {
						return false
					}
					full.Write(c)
				}
				return bytes.HasSuffix(full.Bytes(), w.Bytes())
			}
			if err := quick.Check(fn, qCfg); err != nil {
				t.Error(err)
			}
		})

	t.Run(
		"Total counts all written bytes",
		func(t *testing.T) {
			fn := func(chunks [][]byte, max uint8) bool {
				w := lw.NewTail(int(max))
				var want int64
				for _, c := range chunks {
					if _, err := w.Write(c); err != nil {
						return false
					}
					want += int64(len(c))
				}
				return w.Total() == want
			}
			if err := quick.Check(fn, qCfg); err != nil {
				t.Error(err)
			}
		})
}

func TestTailBufferZeroCap(t *testing.T) {
	w := lw.NewTail(0)
	n, err := w.Write([]byte("abc"))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 bytes reported written, got %d", n)
	}
	if w.Len() != 0 {
		t.Errorf("want nothing retained, got %q", w.Bytes())
	}
}
