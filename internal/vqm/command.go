// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Translation of metric requests into concrete ffmpeg invocations.

package vqm

import (
	"fmt"
	"strconv"
	"strings"
)

// MetricRequest describes one metric computation for one clip pair. It is
// the Command Builder input, assembled by the engine.
type MetricRequest struct {
	Metric Metric
	Pair   ClipPair
	// RefRate and DistRate force input framerates, 0 omits rate forcing for
	// that input.
	RefRate  float64
	DistRate float64
	// OutFile is the sink for machine readable output. Required for metrics
	// that write result files, must be empty for metrics reporting on
	// stderr.
	OutFile string
}

// CommandSpec is a fully built ffmpeg invocation for one metric.
type CommandSpec struct {
	Metric     Metric
	Pair       ClipPair
	FfmpegPath string
	Args       []string
	// OutputFile is non-empty when the metric's machine readable output is
	// written to a file. Empty means captured stderr holds the output.
	OutputFile string
}

// CommandLine renders the invocation as a single string for logging and dry
// run reporting.
func (c *CommandSpec) CommandLine() string {
	return strings.Join(append([]string{c.FfmpegPath}, c.Args...), " ")
}

// NeedsOutputFile reports whether metric m writes machine readable output to
// a file. Metrics without an output file report through the filter metadata
// log on stderr.
func (m Metric) NeedsOutputFile() bool {
	switch m {
	case PSNR, SSIM, VMAF:
		return true
	}
	return false
}

// outputFileExt is the temp file extension for file writing metrics.
func (m Metric) outputFileExt() string {
	if m == VMAF {
		return "json"
	}
	return "txt"
}

// BuildCommand translates a metric request into a CommandSpec. Scaling is
// applied to the distorted stream toward reference dimensions, then both
// streams get normalized timebase and timestamps before entering the metric
// filter.
func BuildCommand(req MetricRequest, opts *Options) (CommandSpec, error) {
	var spec CommandSpec

	if !req.Metric.Valid() {
		return spec, fmt.Errorf("%w: %q", ErrUnknownMetric, req.Metric)
	}
	if req.Metric.NeedsOutputFile() && req.OutFile == "" {
		return spec, fmt.Errorf("%w: metric %s requires an output file", ErrInvalidOptions, req.Metric)
	}
	if !req.Metric.NeedsOutputFile() && req.OutFile != "" {
		return spec, fmt.Errorf("%w: metric %s does not write an output file", ErrInvalidOptions, req.Metric)
	}
	if req.Metric == VMAF && opts.VMAF.ModelPath == "" {
		return spec, fmt.Errorf("%w: VMAF model path not set", ErrInvalidOptions)
	}

	graph := filterGraph(req, opts)

	args := []string{"-nostdin", "-nostats", "-y", "-threads", strconv.Itoa(opts.Threads)}

	// Delay semantics: positive delay shifts the distorted stream later,
	// negative delay shifts the reference stream later. The itsoffset value
	// itself is always non-negative.
	if opts.DistDelay < 0 {
		args = append(args, "-itsoffset", formatFloat(-opts.DistDelay))
	}
	if req.RefRate > 0 {
		args = append(args, "-r", formatFloat(req.RefRate))
	}
	args = append(args, "-i", req.Pair.RefFile)

	if opts.DistDelay > 0 {
		args = append(args, "-itsoffset", formatFloat(opts.DistDelay))
	}
	if req.DistRate > 0 {
		args = append(args, "-r", formatFloat(req.DistRate))
	}
	args = append(args, "-i", req.Pair.DistFile)

	args = append(args, "-filter_complex", graph)
	args = append(args, opts.ExtraArgs...)
	args = append(args, "-an", "-f", "null", "-")

	spec = CommandSpec{
		Metric:     req.Metric,
		Pair:       req.Pair,
		FfmpegPath: opts.FfmpegPath,
		Args:       args,
		OutputFile: req.OutFile,
	}
	return spec, nil
}

// filterGraph builds the filter_complex expression for one metric. Input 0
// is the reference, input 1 the distorted stream.
func filterGraph(req MetricRequest, opts *Options) string {
	window := frameWindowExpr(opts)
	chains := []string{
		fmt.Sprintf("[1][0]scale=rw:rh:flags=%s[dist]", opts.Scaler),
		"[dist]settb=AVTB,setpts=PTS-STARTPTS" + window + "[distpts]",
		"[0]settb=AVTB,setpts=PTS-STARTPTS" + window + "[refpts]",
		"[distpts][refpts]" + metricFilterOpts(req, opts),
	}
	return strings.Join(chains, ";")
}

// frameWindowExpr yields a trim expression limiting comparison to the
// requested frame window, or empty string when the whole stream is compared.
func frameWindowExpr(opts *Options) string {
	if opts.StartFrame == 0 && opts.Frames == 0 {
		return ""
	}
	expr := fmt.Sprintf(",trim=start_frame=%d", opts.StartFrame)
	if opts.Frames > 0 {
		expr += fmt.Sprintf(":end_frame=%d", opts.StartFrame+opts.Frames)
	}
	// Re-zero timestamps after trimming so the metric filter sees a
	// continuous stream.
	return expr + ",setpts=PTS-STARTPTS"
}

// metricFilterOpts yields metric specific filter options.
func metricFilterOpts(req MetricRequest, opts *Options) string {
	switch req.Metric {
	case PSNR, SSIM:
		return fmt.Sprintf("%s='%s'", req.Metric.FilterName(), req.OutFile)
	case VMAF:
		return fmt.Sprintf("libvmaf='%s'", vmafFilterOpts(req.OutFile, &opts.VMAF))
	default:
		// VIF and MSAD print per-frame values through the metadata filter.
		return fmt.Sprintf("%s,metadata=mode=print", req.Metric.FilterName())
	}
}

// vmafFilterOpts renders libvmaf filter options. Model parameters and
// features are passed through verbatim with lavfi escaping applied.
func vmafFilterOpts(outFile string, v *VMAFSettings) string {
	model := "path=" + v.ModelPath
	for _, p := range v.ModelParams {
		model += `\:` + p
	}

	parts := []string{
		"model=" + model,
		"log_path=" + outFile,
		"log_fmt=json",
		"n_threads=" + strconv.Itoa(v.NThreads),
		"n_subsample=" + strconv.Itoa(v.Subsample),
	}

	if len(v.Features) > 0 {
		feats := make([]string, 0, len(v.Features))
		for _, f := range v.Features {
			if !strings.HasPrefix(f, "name") {
				f = "name=" + f
			}
			feats = append(feats, strings.ReplaceAll(f, ":", `\:`))
		}
		parts = append(parts, "feature="+strings.Join(feats, "|"))
	}

	return strings.Join(parts, ":")
}

// formatFloat renders a float the shortest exact way, e.g. 25 not 25.000000.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
