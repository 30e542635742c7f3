// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package vqm implements the video quality metrics engine. It translates
// requested metrics into ffmpeg filter graph invocations, executes them as
// subprocesses on a bounded worker pool, parses the heterogeneous outputs
// into a uniform per-frame record model and derives global statistics.
package vqm

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/evolution-gaming/vqmeter/internal/logging"
	"github.com/google/uuid"
)

// RateProber resolves the native framerate of a video file. The engine
// consults it when no forced framerate is configured.
type RateProber interface {
	FrameRate(ctx context.Context, file string) (float64, error)
}

// Engine computes video quality metrics for clip pairs. The zero value is
// usable and runs ffmpeg directly, fields allow substituting execution and
// probing in tests.
type Engine struct {
	// Runner executes built commands, nil means subprocess execution.
	Runner Runner
	// Prober resolves input framerates, nil disables rate forcing when no
	// explicit framerate is configured.
	Prober RateProber
	// Progress receives advisory updates. The engine emits exactly one
	// update with Done set per (clip pair, metric) computation.
	Progress ProgressFunc
}

// Compute is a convenience wrapper running a zero value Engine.
func Compute(ctx context.Context, pairs []ClipPair, metrics []Metric, opts *Options) ([]ClipPairResult, error) {
	e := &Engine{}
	return e.Compute(ctx, pairs, metrics, opts)
}

// jobOutcome is the result of one (clip pair, metric) computation.
type jobOutcome struct {
	series *MetricSeries
	cmd    string
	err    error
}

// inputRates carries per-input framerates for one clip pair, 0 means leave
// the input's native rate alone.
type inputRates struct {
	ref  float64
	dist float64
}

// Compute runs all requested metrics for all clip pairs and returns one
// result per pair in input order. Option problems abort before any process
// is spawned. Per-metric failures do not cancel sibling computations, they
// are collected into the owning pair's result, and a summary error is
// returned after all computations have finished.
func (e *Engine) Compute(ctx context.Context, pairs []ClipPair, metrics []Metric, opts *Options) ([]ClipPairResult, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Verify(); err != nil {
		return nil, err
	}
	if err := verifyRequest(pairs, metrics); err != nil {
		return nil, err
	}
	if err := preflight(pairs, metrics, opts); err != nil {
		return nil, err
	}

	rates, err := e.resolveRates(ctx, pairs, opts)
	if err != nil {
		return nil, err
	}

	runDir, cleanup, err := prepareRunDir(metrics, opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	runner := e.Runner
	if runner == nil {
		runner = &ExecRunner{DryRun: opts.DryRun, Progress: e.Progress}
	}

	workers := opts.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
		if workers > maxAutoWorkers {
			workers = maxAutoWorkers
		}
	}

	outcomes := make([][]jobOutcome, len(pairs))
	for pi := range pairs {
		outcomes[pi] = make([]jobOutcome, len(metrics))
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for pi := range pairs {
		for mi := range metrics {
			wg.Add(1)
			go func(pi, mi int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				out := filepath.Join(runDir, outFileName(pi, metrics[mi], pairs[pi]))
				outcomes[pi][mi] = e.computeOne(ctx, runner, pairs[pi], metrics[mi], rates[pi], out, opts)
				if e.Progress != nil {
					e.Progress(ProgressUpdate{Metric: metrics[mi], Pair: pairs[pi], Done: true})
				}
			}(pi, mi)
		}
	}
	wg.Wait()

	results := make([]ClipPairResult, len(pairs))
	failures := 0
	total := len(pairs) * len(metrics)
	for pi := range pairs {
		r := ClipPairResult{Pair: pairs[pi]}
		for mi := range metrics {
			oc := &outcomes[pi][mi]
			if oc.cmd != "" {
				r.Commands = append(r.Commands, oc.cmd)
			}
			if oc.err != nil {
				failures++
				r.Errors = append(r.Errors, oc.err)
				continue
			}
			if oc.series != nil {
				r.Series = append(r.Series, *oc.series)
			}
		}
		if err := checkFrameCounts(&r, opts.VMAF.Subsample > 1); err != nil {
			failures++
			r.Errors = append(r.Errors, err)
		}
		results[pi] = r
	}

	if failures > 0 {
		return results, fmt.Errorf("%d of %d metric computations failed", failures, total)
	}
	return results, nil
}

// computeOne builds, runs and parses a single metric computation.
func (e *Engine) computeOne(ctx context.Context, runner Runner, pair ClipPair, m Metric, rates inputRates, outFile string, opts *Options) jobOutcome {
	req := MetricRequest{
		Metric:   m,
		Pair:     pair,
		RefRate:  rates.ref,
		DistRate: rates.dist,
	}
	if m.NeedsOutputFile() {
		req.OutFile = outFile
	}

	spec, err := BuildCommand(req, opts)
	if err != nil {
		return jobOutcome{err: err}
	}
	out := jobOutcome{cmd: spec.CommandLine()}

	if err := ctx.Err(); err != nil {
		out.err = &ComputationError{Metric: m, Pair: pair, ExitCode: -1, err: err}
		return out
	}

	res, err := runner.Run(ctx, spec)
	if err != nil {
		out.err = err
		return out
	}
	if opts.DryRun {
		return out
	}

	raw := res.Stderr
	if spec.OutputFile != "" {
		raw, err = os.ReadFile(spec.OutputFile)
		if err != nil {
			out.err = &ParseError{Metric: m, err: fmt.Errorf("reading result file: %w", err)}
			return out
		}
	}

	series, err := parserFor(m).Parse(raw)
	if err != nil {
		out.err = err
		return out
	}
	if series.Skipped > 0 {
		logging.Debugf("%s parser skipped %d lines for %s", m, series.Skipped, pair)
	}
	out.series = &series
	return out
}

// verifyRequest validates the requested pairs and metrics.
func verifyRequest(pairs []ClipPair, metrics []Metric) error {
	if len(pairs) == 0 {
		return fmt.Errorf("%w: no clip pairs", ErrInvalidOptions)
	}
	if len(metrics) == 0 {
		return fmt.Errorf("%w: no metrics requested", ErrInvalidOptions)
	}
	seen := make(map[Metric]bool, len(metrics))
	for _, m := range metrics {
		if !m.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownMetric, m)
		}
		if seen[m] {
			return fmt.Errorf("%w: metric %s requested twice", ErrInvalidOptions, m)
		}
		seen[m] = true
	}
	return nil
}

// preflight fails fast on problems detectable before spawning anything:
// missing inputs, raw YUV inputs, unusable ffmpeg, missing VMAF model.
func preflight(pairs []ClipPair, metrics []Metric, opts *Options) error {
	if _, err := exec.LookPath(opts.FfmpegPath); err != nil {
		return fmt.Errorf("%w: ffmpeg not usable: %v", ErrInvalidOptions, err)
	}

	for _, p := range pairs {
		for _, f := range []string{p.DistFile, p.RefFile} {
			if _, err := os.Stat(f); err != nil {
				return fmt.Errorf("%w: input file not found: %s", ErrInvalidOptions, f)
			}
			if strings.HasSuffix(strings.ToLower(f), ".yuv") {
				return fmt.Errorf("%w: raw YUV input not supported, convert to Y4M or FFV1 first: %s", ErrInvalidOptions, f)
			}
		}
		if p.DistFile == p.RefFile {
			logging.Warnf("reference and distorted are the same file: %s", p.RefFile)
		}
	}

	for _, m := range metrics {
		if m == VMAF {
			if opts.VMAF.ModelPath == "" {
				return fmt.Errorf("%w: VMAF model path not set", ErrInvalidOptions)
			}
			if _, err := os.Stat(opts.VMAF.ModelPath); err != nil {
				return fmt.Errorf("%w: VMAF model file not found: %s", ErrInvalidOptions, opts.VMAF.ModelPath)
			}
		}
	}
	return nil
}

// resolveRates determines per-input framerates: the forced rate when
// configured, probed native rates when a prober is available, otherwise no
// rate forcing.
func (e *Engine) resolveRates(ctx context.Context, pairs []ClipPair, opts *Options) ([]inputRates, error) {
	rates := make([]inputRates, len(pairs))

	if opts.Framerate > 0 {
		for i := range rates {
			rates[i] = inputRates{ref: opts.Framerate, dist: opts.Framerate}
		}
		return rates, nil
	}
	if e.Prober == nil {
		return rates, nil
	}

	cache := make(map[string]float64)
	probe := func(f string) (float64, error) {
		if r, ok := cache[f]; ok {
			return r, nil
		}
		r, err := e.Prober.FrameRate(ctx, f)
		if err != nil {
			return 0, fmt.Errorf("probing framerate of %s: %w", f, err)
		}
		cache[f] = r
		return r, nil
	}

	for i, p := range pairs {
		ref, err := probe(p.RefFile)
		if err != nil {
			return nil, err
		}
		dist, err := probe(p.DistFile)
		if err != nil {
			return nil, err
		}
		if ref != dist {
			logging.Warnf("framerates differ for %s: ref %g vs dist %g, metrics may be inaccurate, consider forcing a framerate", p, ref, dist)
		}
		rates[i] = inputRates{ref: ref, dist: dist}
	}
	return rates, nil
}

// prepareRunDir creates the per-run directory for metric output files. The
// returned cleanup removes it unless temporary files are kept. Dry runs get
// a deterministic path and no directory is created.
func prepareRunDir(metrics []Metric, opts *Options) (string, func(), error) {
	needFiles := false
	for _, m := range metrics {
		if m.NeedsOutputFile() {
			needFiles = true
			break
		}
	}
	noop := func() {}
	if !needFiles {
		return "", noop, nil
	}

	base := opts.TmpDir
	if base == "" {
		base = os.TempDir()
	}
	if opts.DryRun {
		return filepath.Join(base, "vqmeter-dryrun"), noop, nil
	}

	runDir := filepath.Join(base, "vqmeter-"+uuid.NewString())
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return "", noop, fmt.Errorf("creating temp dir: %w", err)
	}
	if opts.KeepTmp {
		logging.Infof("keeping temporary files in %s", runDir)
		return runDir, noop, nil
	}
	cleanup := func() {
		if err := os.RemoveAll(runDir); err != nil {
			logging.Warnf("removing temp dir %s: %v", runDir, err)
		}
	}
	return runDir, cleanup, nil
}

// outFileName yields the per (clip pair, metric) output file name. Pair
// index keeps names unique when basenames repeat across pairs.
func outFileName(pairIdx int, m Metric, pair ClipPair) string {
	return fmt.Sprintf("pair%d_%s_%s_%s.%s",
		pairIdx, m, filepath.Base(pair.RefFile), filepath.Base(pair.DistFile), m.outputFileExt())
}

// checkFrameCounts enforces that all successful series of one pair agree on
// the frame count. Disagreement is reported, never silently truncated or
// padded. A subsampled VMAF series legitimately holds fewer records and is
// exempt.
func checkFrameCounts(r *ClipPairResult, vmafSubsampled bool) error {
	counts := make([]string, 0, len(r.Series))
	mismatch := false
	first := -1
	for i := range r.Series {
		s := &r.Series[i]
		if s.Metric == VMAF && vmafSubsampled {
			continue
		}
		n := len(s.Frames)
		if first == -1 {
			first = n
		} else if n != first {
			mismatch = true
		}
		counts = append(counts, fmt.Sprintf("%s=%d", s.Metric, n))
	}
	if !mismatch {
		return nil
	}
	return fmt.Errorf("%w for %s: %s", ErrFrameCountMismatch, r.Pair, strings.Join(counts, " "))
}
