// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vqmeter tool's compute subcommand implementation.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/evolution-gaming/vqmeter/internal/logging"
	"github.com/evolution-gaming/vqmeter/internal/report"
	"github.com/evolution-gaming/vqmeter/internal/tools"
	"github.com/evolution-gaming/vqmeter/internal/vqm"
	"github.com/fatih/color"
	"github.com/google/shlex"
	"github.com/schollz/progressbar/v3"
)

// Output formats supported by compute subcommand.
const (
	outFormatJSON    = "json"
	outFormatCSV     = "csv"
	outFormatSummary = "summary"
)

// Make sure ComputeApp implements Commander interface.
var _ Commander = (*ComputeApp)(nil)

// ComputeApp is compute subcommand context that implements Commander interface.
type ComputeApp struct {
	// Report output destination when no output file is given
	out io.Writer
	// FlagSet instance
	fs *flag.FlagSet
	// Global flags
	gf globalFlags
	// Configuration object
	cfg *Config
	// Reference video file
	flRefFile string
	// Distorted video files
	flDistFiles inputFiles
	// Metrics to compute
	flMetrics string
	// Scaling algorithm
	flScaler string
	// Forced framerate
	flFramerate float64
	// Distorted stream delay in seconds
	flDistDelay float64
	// First frame of comparison
	flStartFrame int
	// Frame count limit
	flFrameCount int
	// ffmpeg thread count
	flThreads int
	// Parallel computation limit
	flWorkers int
	// VMAF model path or name
	flVMAFModel string
	// Extra VMAF model parameters
	flVMAFModelParams string
	// libvmaf thread count
	flVMAFThreads int
	// VMAF frame subsampling rate
	flVMAFSubsample int
	// Additional libvmaf features
	flVMAFFeatures string
	// Report format
	flOutFormat string
	// Report output file
	flOutFile string
	// Print commands instead of executing
	flDryRun bool
	// Show progress bar
	flProgress bool
	// Keep temporary files
	flKeepTmp bool
	// Directory for temporary files
	flTmpDir string
	// Parsed metric selection
	metrics []vqm.Metric
}

// CreateComputeCommand will create ComputeApp instance with initialized FlagSet.
func CreateComputeCommand() *ComputeApp {
	longHelp := `Subcommand "compute" will compute video quality metrics for given distorted
video files as compared to a reference video file and write aggregated
results as a report.

Each requested metric runs as a separate ffmpeg process, results are merged
per distorted file. Report is written to stdout unless -o is given.

Examples:

  vqmeter compute -ref source.mp4 -d compressed.mp4
  vqmeter compute -ref source.mp4 -d one.mp4 -d two.mp4 -m psnr,ssim,vmaf
  vqmeter compute -ref source.mp4 -d compressed.mp4 -of csv -o report.csv`

	app := &ComputeApp{
		fs:  flag.NewFlagSet("compute", flag.ContinueOnError),
		gf:  globalFlags{},
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flRefFile, "ref", "", "Reference video file (mandatory)")
	app.fs.Var(&app.flDistFiles, "d", "Distorted video file, use multiple times for multiple files (mandatory)")
	app.fs.StringVar(&app.flMetrics, "m", "psnr,ssim", "Metrics to compute as comma or space separated list")
	app.fs.StringVar(&app.flScaler, "s", vqm.DefaultScaler, "Scaling algorithm used to match distorted resolution to reference")
	app.fs.Float64Var(&app.flFramerate, "r", 0, "Force given framerate on both inputs (default: probe per input)")
	app.fs.Float64Var(&app.flDistDelay, "dist-delay", 0, "Delay distorted stream by given seconds, negative delays reference")
	app.fs.IntVar(&app.flStartFrame, "start-frame", 0, "Start comparison at given 0-based frame offset")
	app.fs.IntVar(&app.flFrameCount, "frames", 0, "Limit comparison to given number of frames (default: all)")
	app.fs.IntVar(&app.flThreads, "t", 0, "ffmpeg -threads value (default: ffmpeg's choice)")
	app.fs.IntVar(&app.flWorkers, "workers", 0, "Max parallel metric computations (default: sized from CPU count)")
	app.fs.StringVar(&app.flVMAFModel, "vmaf-model", "", "VMAF model file path or bare model name")
	app.fs.StringVar(&app.flVMAFModelParams, "vmaf-model-params", "", `Extra VMAF model parameters, e.g. "enable_transform=true"`)
	app.fs.IntVar(&app.flVMAFThreads, "vmaf-threads", 0, "libvmaf thread count (default: libvmaf's choice)")
	app.fs.IntVar(&app.flVMAFSubsample, "vmaf-subsample", vqm.DefaultVMAFSubsample, "Compute VMAF only on every Nth frame")
	app.fs.StringVar(&app.flVMAFFeatures, "vmaf-features", "", `Additional libvmaf features, e.g. "psnr float_ssim"`)
	app.fs.StringVar(&app.flOutFormat, "of", outFormatJSON, `Report format: "json", "csv" or "summary"`)
	app.fs.StringVar(&app.flOutFile, "o", "", "Report output file (stdout by default)")
	app.fs.BoolVar(&app.flDryRun, "dry-run", false, "Print ffmpeg commands without executing anything")
	app.fs.BoolVar(&app.flProgress, "progress", false, "Show computation progress bar")
	app.fs.BoolVar(&app.flKeepTmp, "keep-tmp", false, "Keep temporary metric output files")
	app.fs.StringVar(&app.flTmpDir, "tmp-dir", "", "Directory for temporary metric output files")

	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

func (a *ComputeApp) Name() string {
	return a.fs.Name()
}

func (a *ComputeApp) Help() {
	a.fs.Usage()
}

// init will do App state initialization.
func (a *ComputeApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	a.gf.applyLogging()

	// If after flag parsing reference file is not defined - error out.
	if a.flRefFile == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -ref is missing",
		}
	}

	// At least one distorted file is required.
	if len(a.flDistFiles) == 0 {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -d is missing",
		}
	}

	metrics, err := vqm.ParseMetricList(a.flMetrics)
	if err != nil {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      err.Error(),
		}
	}
	a.metrics = metrics

	switch a.flOutFormat {
	case outFormatJSON, outFormatCSV, outFormatSummary:
	default:
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("invalid output format %q", a.flOutFormat),
		}
	}

	// Load application configuration.
	cfg, err := LoadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	a.cfg = &cfg

	// Check if configuration is valid.
	if err := a.cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	return nil
}

// makeOptions assembles engine options from flags and configuration.
func (a *ComputeApp) makeOptions() (*vqm.Options, error) {
	opts := vqm.DefaultOptions()
	opts.FfmpegPath = a.cfg.FfmpegPath.Value()
	opts.Scaler = a.flScaler
	opts.Framerate = a.flFramerate
	opts.DistDelay = a.flDistDelay
	opts.StartFrame = a.flStartFrame
	opts.Frames = a.flFrameCount
	opts.Threads = a.flThreads
	opts.DryRun = a.flDryRun
	opts.KeepTmp = a.flKeepTmp

	// Flags take precedence over configuration.
	opts.Workers = a.flWorkers
	if opts.Workers == 0 {
		opts.Workers = a.cfg.Workers.Value()
	}
	opts.TmpDir = a.flTmpDir
	if opts.TmpDir == "" {
		opts.TmpDir = a.cfg.TmpDir.Value()
	}

	extraArgs, err := shlex.Split(a.cfg.FfmpegExtraArgs.Value())
	if err != nil {
		return nil, fmt.Errorf("ffmpeg extra args: %w", err)
	}
	opts.ExtraArgs = extraArgs

	if metricRequested(a.metrics, vqm.VMAF) {
		model := a.flVMAFModel
		if model == "" {
			model = a.cfg.VMAFModel.Value()
		}
		modelPath, err := tools.FindVMAFModel(model, a.cfg.VMAFModelDir.Value())
		if err != nil {
			return nil, err
		}
		opts.VMAF.ModelPath = modelPath

		if a.flVMAFModelParams != "" {
			params, err := shlex.Split(a.flVMAFModelParams)
			if err != nil {
				return nil, fmt.Errorf("VMAF model params: %w", err)
			}
			opts.VMAF.ModelParams = params
		}
		if a.flVMAFFeatures != "" {
			features, err := shlex.Split(a.flVMAFFeatures)
			if err != nil {
				return nil, fmt.Errorf("VMAF features: %w", err)
			}
			opts.VMAF.Features = features
		}
		opts.VMAF.NThreads = a.flVMAFThreads
		opts.VMAF.Subsample = a.flVMAFSubsample
	}

	return opts, nil
}

// preflight checks external tool capabilities and warns about input
// discrepancies before any computation is started.
func (a *ComputeApp) preflight(ctx context.Context, pairs []vqm.ClipPair) error {
	want := make([]string, 0, len(a.metrics))
	for _, m := range a.metrics {
		want = append(want, m.FilterName())
	}
	missing, err := tools.MissingFilters(ctx, want)
	if err != nil {
		return fmt.Errorf("querying ffmpeg filters: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("ffmpeg is missing filters: %s", strings.Join(missing, ", "))
	}

	// Unequal frame counts are not fatal, comparison window options exist
	// exactly for such inputs, but worth a warning.
	files := []string{pairs[0].RefFile}
	for _, p := range pairs {
		files = append(files, p.DistFile)
	}
	counts := make([]int, 0, len(files))
	for _, f := range files {
		meta, err := tools.ProbeMetadata(ctx, f)
		if err != nil {
			logging.Warnf("Unable to probe %s: %s", f, err)
			return nil
		}
		counts = append(counts, meta.FrameCount)
	}
	if !all(counts, counts[0]) {
		parts := make([]string, 0, len(files))
		for i, f := range files {
			parts = append(parts, fmt.Sprintf("%s=%d", f, counts[i]))
		}
		logging.Warnf("Input frame counts differ: %s", strings.Join(parts, " "))
	}

	return nil
}

// Run is main entry point into ComputeApp execution.
func (a *ComputeApp) Run(args []string) error {
	if err := a.init(args); err != nil {
		return err
	}

	ctx := context.Background()

	opts, err := a.makeOptions()
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	pairs := make([]vqm.ClipPair, 0, len(a.flDistFiles))
	for _, f := range a.flDistFiles {
		pairs = append(pairs, vqm.ClipPair{DistFile: f, RefFile: a.flRefFile})
	}

	// Dry run should spawn no process at all, including framerate probes,
	// so the prober is only attached for real runs. Explicit -r still shows
	// up in printed commands.
	eng := &vqm.Engine{}
	if !a.flDryRun {
		eng.Prober = tools.FrameRateProber{}
		if err := a.preflight(ctx, pairs); err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
	}

	if a.flProgress && !a.flDryRun {
		bar := progressbar.NewOptions(len(pairs)*len(a.metrics),
			progressbar.OptionSetDescription("computing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
		eng.Progress = func(u vqm.ProgressUpdate) {
			if u.Done {
				_ = bar.Add(1)
			}
		}
	}

	results, computeErr := eng.Compute(ctx, pairs, a.metrics, opts)
	if results == nil && computeErr != nil {
		return &AppError{exitCode: 1, msg: computeErr.Error()}
	}

	if a.flDryRun {
		for i := range results {
			for _, cmd := range results[i].Commands {
				fmt.Fprintln(a.out, cmd)
			}
		}
		return nil
	}

	a.logOutcomes(results)

	// Report is written even when some computations failed, partial results
	// are still valuable after long runs.
	if err := a.writeReport(results); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	if computeErr != nil {
		return &AppError{exitCode: 1, msg: computeErr.Error()}
	}
	return nil
}

// logOutcomes reports per pair computation status.
func (a *ComputeApp) logOutcomes(results []vqm.ClipPairResult) {
	for i := range results {
		r := &results[i]
		if len(r.Errors) == 0 {
			logging.Infof("%s %s", color.GreenString("OK"), r.Pair.DistFile)
			continue
		}
		for _, e := range r.Errors {
			logging.Warnf("%s %s: %s", color.RedString("FAILED"), r.Pair.DistFile, e)
		}
	}
}

// writeReport serializes results in requested format to requested destination.
func (a *ComputeApp) writeReport(results []vqm.ClipPairResult) error {
	out := a.out
	if a.flOutFile != "" {
		logging.Infof("Report will be written to:\n\t%s\n", a.flOutFile)
		fd, err := os.Create(a.flOutFile)
		if err != nil {
			return fmt.Errorf("report output file: %w", err)
		}
		defer fd.Close()
		out = fd
	}

	switch a.flOutFormat {
	case outFormatCSV:
		return report.WriteCSV(out, results)
	case outFormatSummary:
		return report.WriteSummaryCSV(out, results)
	default:
		return report.WriteJSON(out, results)
	}
}

// metricRequested checks if given metric is part of the selection.
func metricRequested(metrics []vqm.Metric, m vqm.Metric) bool {
	for _, v := range metrics {
		if v == m {
			return true
		}
	}
	return false
}
