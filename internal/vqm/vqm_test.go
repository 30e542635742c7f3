// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records specs and delegates to a per-test run function. Safe
// for concurrent use, the engine runs jobs in parallel.
type fakeRunner struct {
	mu    sync.Mutex
	specs []CommandSpec
	run   func(spec CommandSpec) (RunResult, error)
}

func (r *fakeRunner) Run(_ context.Context, spec CommandSpec) (RunResult, error) {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	r.mu.Unlock()
	return r.run(spec)
}

type fakeProber struct {
	rates map[string]float64
	err   error
}

func (p *fakeProber) FrameRate(_ context.Context, file string) (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.rates[file], nil
}

// fixClipPair fixture creates a clip pair backed by existing files.
func fixClipPair(t *testing.T) ClipPair {
	t.Helper()
	dir := t.TempDir()
	p := ClipPair{
		DistFile: filepath.Join(dir, "dist.mp4"),
		RefFile:  filepath.Join(dir, "ref.mp4"),
	}
	for _, f := range []string{p.DistFile, p.RefFile} {
		if err := os.WriteFile(f, []byte("not really a video"), 0o644); err != nil {
			t.Fatalf("Unexpected error creating fixture file: %v", err)
		}
	}
	return p
}

// fixEngineOpts fixture provides options passing engine preflight.
func fixEngineOpts(t *testing.T) *Options {
	t.Helper()
	opts := DefaultOptions()
	opts.FfmpegPath = fixFakeFfmpeg(t, "exit 0")
	opts.TmpDir = t.TempDir()
	return opts
}

// fixServeMetrics fixture returns a runner serving stderr reporting metrics
// from stderrDoc and file writing metrics from fileDoc.
func fixServeMetrics(t *testing.T, stderrDoc, fileDoc []byte) *fakeRunner {
	t.Helper()
	return &fakeRunner{run: func(spec CommandSpec) (RunResult, error) {
		if spec.OutputFile == "" {
			return RunResult{Cmd: spec.CommandLine(), Stderr: stderrDoc}, nil
		}
		if err := os.WriteFile(spec.OutputFile, fileDoc, 0o644); err != nil {
			t.Errorf("Unexpected error writing result file: %v", err)
		}
		return RunResult{Cmd: spec.CommandLine()}, nil
	}}
}

func TestEngine_Compute(t *testing.T) {
	pair := fixClipPair(t)
	opts := fixEngineOpts(t)
	runner := fixServeMetrics(t, vifStderrDoc, psnrLogDoc)
	e := &Engine{Runner: runner}

	results, err := e.Compute(context.Background(), []ClipPair{pair}, []Metric{PSNR, VIF}, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, pair, r.Pair)
	assert.Empty(t, r.Errors)
	assert.Len(t, r.Commands, 2)

	t.Run("series in metric request order", func(t *testing.T) {
		require.Len(t, r.Series, 2)
		assert.Equal(t, PSNR, r.Series[0].Metric)
		assert.Equal(t, VIF, r.Series[1].Metric)
		assert.Len(t, r.Series[0].Frames, 2)
		assert.Len(t, r.Series[1].Frames, 2)
	})

	t.Run("global statistics derive from series", func(t *testing.T) {
		stats := r.GlobalStatsMap()
		require.Contains(t, stats, PSNR)
		got := stats[PSNR]["psnr_avg"]
		require.NotNil(t, got)
		assert.Equal(t, 20.88, got.Average)
	})

	t.Run("temporary run directory is removed", func(t *testing.T) {
		var outDir string
		for _, spec := range runner.specs {
			if spec.OutputFile != "" {
				outDir = filepath.Dir(spec.OutputFile)
			}
		}
		require.NotEmpty(t, outDir)
		_, err := os.Stat(outDir)
		assert.True(t, os.IsNotExist(err), "run directory should be cleaned up")
	})
}

func TestEngine_Compute_MultiplePairs(t *testing.T) {
	pairs := []ClipPair{fixClipPair(t), fixClipPair(t)}
	opts := fixEngineOpts(t)
	e := &Engine{Runner: fixServeMetrics(t, vifStderrDoc, psnrLogDoc)}

	results, err := e.Compute(context.Background(), pairs, []Metric{VIF}, opts)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i := range pairs {
		assert.Equal(t, pairs[i], results[i].Pair, "results must keep input pair order")
		assert.Len(t, results[i].Series, 1)
	}
}

func TestEngine_Compute_FailureIsolation(t *testing.T) {
	pair := fixClipPair(t)
	opts := fixEngineOpts(t)

	// psnr fails, vif succeeds.
	runner := &fakeRunner{run: func(spec CommandSpec) (RunResult, error) {
		if spec.Metric == PSNR {
			return RunResult{ExitCode: 1}, &ComputationError{
				Metric: PSNR, Pair: spec.Pair, ExitCode: 1,
				err: errors.New("boom"),
			}
		}
		return RunResult{Stderr: vifStderrDoc}, nil
	}}
	e := &Engine{Runner: runner}

	results, err := e.Compute(context.Background(), []ClipPair{pair}, []Metric{PSNR, VIF}, opts)
	require.Error(t, err)
	assert.ErrorContains(t, err, "1 of 2 metric computations failed")

	require.Len(t, results, 1)
	r := results[0]

	t.Run("sibling metric still produced a series", func(t *testing.T) {
		require.Len(t, r.Series, 1)
		assert.Equal(t, VIF, r.Series[0].Metric)
	})
	t.Run("failure is collected into the pair result", func(t *testing.T) {
		require.Len(t, r.Errors, 1)
		var cerr *ComputationError
		require.ErrorAs(t, r.Errors[0], &cerr)
		assert.Equal(t, PSNR, cerr.Metric)
	})
}

func TestEngine_Compute_FrameCountMismatch(t *testing.T) {
	pair := fixClipPair(t)
	opts := fixEngineOpts(t)

	oneFrameVif := []byte("[Parsed_metadata_4 @ 0x1] frame:0 pts:0 pts_time:0\n" +
		"[Parsed_metadata_4 @ 0x1] lavfi.vif.scale.0=0.5\n")
	e := &Engine{Runner: fixServeMetrics(t, oneFrameVif, psnrLogDoc)}

	results, err := e.Compute(context.Background(), []ClipPair{pair}, []Metric{PSNR, VIF}, opts)
	require.Error(t, err)

	require.Len(t, results, 1)
	require.Len(t, results[0].Errors, 1)
	assert.ErrorIs(t, results[0].Errors[0], ErrFrameCountMismatch)

	t.Run("both series are still reported", func(t *testing.T) {
		assert.Len(t, results[0].Series, 2)
	})
}

func TestEngine_Compute_SubsampledVMAFExempt(t *testing.T) {
	pair := fixClipPair(t)
	opts := fixEngineOpts(t)
	opts.VMAF.ModelPath = fixVMAFModel(t)
	opts.VMAF.Subsample = 2

	// One VMAF frame against two psnr frames, legitimate under subsampling.
	oneFrameVmaf := []byte(`{"frames": [{"frameNum": 0, "metrics": {"vmaf": 92.5}}]}`)
	runner := &fakeRunner{run: func(spec CommandSpec) (RunResult, error) {
		doc := psnrLogDoc
		if spec.Metric == VMAF {
			doc = oneFrameVmaf
		}
		if err := os.WriteFile(spec.OutputFile, doc, 0o644); err != nil {
			t.Errorf("Unexpected error writing result file: %v", err)
		}
		return RunResult{Cmd: spec.CommandLine()}, nil
	}}
	e := &Engine{Runner: runner}

	results, err := e.Compute(context.Background(), []ClipPair{pair}, []Metric{PSNR, VMAF}, opts)
	require.NoError(t, err)
	assert.Empty(t, results[0].Errors)
}

func TestEngine_Compute_DryRun(t *testing.T) {
	pair := fixClipPair(t)
	opts := fixEngineOpts(t)
	opts.DryRun = true

	results, err := Compute(context.Background(), []ClipPair{pair}, []Metric{PSNR, SSIM}, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Empty(t, r.Series, "dry run must not produce series")
	assert.Empty(t, r.Errors)
	require.Len(t, r.Commands, 2)

	assert.Contains(t, r.Commands[0], "-filter_complex")
	assert.Contains(t, r.Commands[0], "psnr='")
	assert.Contains(t, r.Commands[1], "ssim='")

	t.Run("output files point into deterministic directory", func(t *testing.T) {
		assert.Contains(t, r.Commands[0], "vqmeter-dryrun")
		assert.NoDirExists(t, filepath.Join(opts.TmpDir, "vqmeter-dryrun"))
	})
}

func TestEngine_Compute_ForcedFramerate(t *testing.T) {
	pair := fixClipPair(t)
	opts := fixEngineOpts(t)
	opts.DryRun = true
	opts.Framerate = 25

	results, err := Compute(context.Background(), []ClipPair{pair}, []Metric{VIF}, opts)
	require.NoError(t, err)

	cmd := results[0].Commands[0]
	assert.Equal(t, 2, strings.Count(cmd, "-r 25 -i"), "both inputs get the forced rate")
}

func TestEngine_Compute_ProbedFramerates(t *testing.T) {
	pair := fixClipPair(t)
	opts := fixEngineOpts(t)
	opts.DryRun = true

	e := &Engine{Prober: &fakeProber{rates: map[string]float64{
		pair.RefFile:  30,
		pair.DistFile: 30,
	}}}

	results, err := e.Compute(context.Background(), []ClipPair{pair}, []Metric{VIF}, opts)
	require.NoError(t, err)

	cmd := results[0].Commands[0]
	assert.Equal(t, 2, strings.Count(cmd, "-r 30 -i"))
}

func TestEngine_Compute_ProberError(t *testing.T) {
	pair := fixClipPair(t)
	opts := fixEngineOpts(t)
	opts.DryRun = true

	e := &Engine{Prober: &fakeProber{err: errors.New("ffprobe exploded")}}

	_, err := e.Compute(context.Background(), []ClipPair{pair}, []Metric{VIF}, opts)
	require.Error(t, err)
	assert.ErrorContains(t, err, "probing framerate")
}

func TestEngine_Compute_ProgressDone(t *testing.T) {
	pairs := []ClipPair{fixClipPair(t), fixClipPair(t)}
	opts := fixEngineOpts(t)

	var mu sync.Mutex
	done := 0
	e := &Engine{
		Runner: fixServeMetrics(t, vifStderrDoc, psnrLogDoc),
		Progress: func(u ProgressUpdate) {
			if u.Done {
				mu.Lock()
				done++
				mu.Unlock()
			}
		},
	}

	_, err := e.Compute(context.Background(), pairs, []Metric{PSNR, VIF}, opts)
	require.NoError(t, err)

	assert.Equal(t, len(pairs)*2, done, "one done update per (pair, metric) computation")
}

func TestEngine_Compute_Negative(t *testing.T) {
	pair := fixClipPair(t)

	tests := map[string]struct {
		pairs   []ClipPair
		metrics []Metric
		modify  func(*Options)
		wantErr error
	}{
		"no pairs": {
			pairs:   nil,
			metrics: []Metric{PSNR},
			wantErr: ErrInvalidOptions,
		},
		"no metrics": {
			pairs:   []ClipPair{pair},
			metrics: nil,
			wantErr: ErrInvalidOptions,
		},
		"unknown metric": {
			pairs:   []ClipPair{pair},
			metrics: []Metric{"bogus"},
			wantErr: ErrUnknownMetric,
		},
		"duplicate metric": {
			pairs:   []ClipPair{pair},
			metrics: []Metric{PSNR, PSNR},
			wantErr: ErrInvalidOptions,
		},
		"unusable ffmpeg": {
			pairs:   []ClipPair{pair},
			metrics: []Metric{PSNR},
			modify:  func(o *Options) { o.FfmpegPath = "/nonexistent/ffmpeg" },
			wantErr: ErrInvalidOptions,
		},
		"missing input file": {
			pairs:   []ClipPair{{DistFile: "no-such-dist.mp4", RefFile: "no-such-ref.mp4"}},
			metrics: []Metric{PSNR},
			wantErr: ErrInvalidOptions,
		},
		"vmaf without model": {
			pairs:   []ClipPair{pair},
			metrics: []Metric{VMAF},
			wantErr: ErrInvalidOptions,
		},
		"invalid scaler": {
			pairs:   []ClipPair{pair},
			metrics: []Metric{PSNR},
			modify:  func(o *Options) { o.Scaler = "nearest" },
			wantErr: ErrInvalidOptions,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			opts := fixEngineOpts(t)
			if tc.modify != nil {
				tc.modify(opts)
			}
			_, err := Compute(context.Background(), tc.pairs, tc.metrics, opts)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestEngine_Compute_RejectsRawYUV(t *testing.T) {
	dir := t.TempDir()
	yuv := filepath.Join(dir, "ref.yuv")
	require.NoError(t, os.WriteFile(yuv, []byte("raw"), 0o644))
	dist := fixClipPair(t).DistFile

	opts := fixEngineOpts(t)
	_, err := Compute(context.Background(), []ClipPair{{DistFile: dist, RefFile: yuv}}, []Metric{PSNR}, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.ErrorContains(t, err, "YUV")
}

// fixVMAFModel fixture creates a stand-in model file.
func fixVMAFModel(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vmaf_v0.6.1.json")
	if err := os.WriteFile(p, []byte(`{"name": "vmaf"}`), 0o644); err != nil {
		t.Fatalf("Unexpected error creating model fixture: %v", err)
	}
	return p
}
