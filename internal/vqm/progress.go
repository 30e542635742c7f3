// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Advisory progress reporting for running metric computations.

package vqm

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// ProgressFunc receives advisory progress updates. It is called from the
// goroutines consuming ffmpeg output, implementations must be safe for
// concurrent use when computations run in parallel.
type ProgressFunc func(ProgressUpdate)

// ProgressUpdate is one advisory snapshot of a metric computation. Updates
// with Done set are emitted by the engine exactly once per computation,
// whether it succeeded or failed. All other updates come from ffmpeg's
// progress stream and may never arrive at all.
type ProgressUpdate struct {
	Metric Metric
	Pair   ClipPair
	// Frame is the number of frames processed so far.
	Frame int64
	// FPS is the processing rate in frames per second.
	FPS float64
	// OutTime is the stream timestamp reached.
	OutTime time.Duration
	// Speed is the realtime multiple, e.g. 3.5 means 3.5x realtime.
	Speed float64
	// Done marks the computation as finished.
	Done bool
}

// progressParser accumulates ffmpeg -progress key=value lines and fires the
// callback once per progress block.
type progressParser struct {
	metric Metric
	pair   ClipPair
	cb     ProgressFunc
	cur    ProgressUpdate
}

// consume reads the progress stream until EOF. Unrecognized keys and
// malformed values are ignored, progress is advisory.
func (p *progressParser) consume(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.feed(strings.TrimSpace(sc.Text()))
	}
}

func (p *progressParser) feed(line string) {
	k, v, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	switch k {
	case "frame":
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.cur.Frame = n
		}
	case "fps":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.cur.FPS = f
		}
	case "out_time_us":
		if us, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.cur.OutTime = time.Duration(us) * time.Microsecond
		}
	case "speed":
		if f, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64); err == nil {
			p.cur.Speed = f
		}
	case "progress":
		// End of one progress block, flush an update.
		u := p.cur
		u.Metric = p.metric
		u.Pair = p.pair
		p.cb(u)
	}
}
