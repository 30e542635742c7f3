// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Subprocess execution of built ffmpeg invocations.

package vqm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/evolution-gaming/vqmeter/internal/logging"
	"github.com/evolution-gaming/vqmeter/internal/lw"
)

// defaultTailSize bounds retained diagnostic stderr per invocation.
const defaultTailSize = 64 * 1024

// Runner abstracts execution of built ffmpeg invocations so that tests can
// substitute a fake.
type Runner interface {
	Run(ctx context.Context, spec CommandSpec) (RunResult, error)
}

// RunResult captures the outcome of one ffmpeg invocation.
type RunResult struct {
	// Cmd is the rendered command line.
	Cmd string
	// ExitCode of the process, 0 for dry runs.
	ExitCode int
	// Stdout holds captured stdout. For dry runs it holds the command line.
	Stdout []byte
	// Stderr holds captured stderr. For metrics that report through the
	// filter metadata log this is the complete stream, otherwise only the
	// trailing diagnostic portion is retained.
	Stderr []byte
}

// ExecRunner implements Runner by spawning one ffmpeg process per
// invocation. No retry on failure.
type ExecRunner struct {
	// DryRun reports the command without spawning anything.
	DryRun bool
	// Progress, when set, attaches ffmpeg's progress stream and forwards
	// parsed updates.
	Progress ProgressFunc
	// TailSize bounds retained diagnostic stderr, 0 means default.
	TailSize int
}

var _ Runner = (*ExecRunner)(nil)

// Run executes one ffmpeg invocation. A non-zero exit is reported as a
// *ComputationError carrying the diagnostic stderr tail.
func (r *ExecRunner) Run(ctx context.Context, spec CommandSpec) (RunResult, error) {
	res := RunResult{Cmd: spec.CommandLine()}

	if r.DryRun {
		res.Stdout = []byte(res.Cmd)
		return res, nil
	}

	args := spec.Args
	if r.Progress != nil {
		args = append([]string{"-progress", "pipe:1"}, args...)
	}

	cmd := exec.CommandContext(ctx, spec.FfmpegPath, args...) //#nosec G204

	tailSize := r.TailSize
	if tailSize == 0 {
		tailSize = defaultTailSize
	}
	tail := lw.NewTail(tailSize)

	// When the metric reports through the filter metadata log, stderr is
	// the machine readable output and must be kept in full.
	var fullStderr bytes.Buffer
	if spec.OutputFile == "" {
		cmd.Stderr = io.MultiWriter(&fullStderr, tail)
	} else {
		cmd.Stderr = tail
	}

	var stdout bytes.Buffer
	var progressDone chan struct{}
	var pw *io.PipeWriter
	if r.Progress != nil {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		cmd.Stdout = pw
		progressDone = make(chan struct{})
		pp := &progressParser{metric: spec.Metric, pair: spec.Pair, cb: r.Progress}
		go func() {
			defer close(progressDone)
			pp.consume(pr)
		}()
	} else {
		cmd.Stdout = &stdout
	}

	logging.Debugf("running: %s", res.Cmd)
	runErr := cmd.Run()

	if pw != nil {
		pw.Close()
		<-progressDone
	}

	res.Stdout = stdout.Bytes()
	if spec.OutputFile == "" {
		res.Stderr = fullStderr.Bytes()
	} else {
		res.Stderr = tail.Bytes()
	}

	if runErr != nil {
		exitCode := -1
		var ee *exec.ExitError
		if errors.As(runErr, &ee) {
			exitCode = ee.ExitCode()
		}
		res.ExitCode = exitCode
		return res, &ComputationError{
			Metric:   spec.Metric,
			Pair:     spec.Pair,
			ExitCode: exitCode,
			Stderr:   tail.Bytes(),
			err:      runErr,
		}
	}

	return res, nil
}
