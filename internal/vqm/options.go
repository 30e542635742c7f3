// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Engine options and their validation.

package vqm

import (
	"fmt"
	"strings"
)

// AllowedScalers enumerates swscale interpolation kernels accepted for
// rescaling the distorted stream.
var AllowedScalers = []string{
	"fast_bilinear",
	"bilinear",
	"bicubic",
	"experimental",
	"neighbor",
	"area",
	"bicublin",
	"gauss",
	"sinc",
	"lanczos",
	"spline",
}

const (
	// DefaultScaler is used when no scaling algorithm is requested.
	DefaultScaler = "bicubic"
	// DefaultVMAFSubsample computes VMAF on every frame.
	DefaultVMAFSubsample = 1
	// maxAutoWorkers caps the automatically sized worker pool.
	maxAutoWorkers = 8
)

// VMAFSettings carries libvmaf specific options. Model parameters and
// features are passed to libvmaf verbatim, their validation is libvmaf's
// responsibility.
type VMAFSettings struct {
	// ModelPath is an absolute path to the VMAF model file.
	ModelPath string
	// ModelParams are additional model parameters in key=value form.
	ModelParams []string
	// NThreads used by libvmaf, 0 means auto.
	NThreads int
	// Subsample computes VMAF on every Nth frame only.
	Subsample int
	// Features enables additional VMAF features, e.g. "psnr" or
	// "name=psnr" or "name=cambi:full_ref=true".
	Features []string
}

// Options control a single Compute invocation. Zero value is not usable,
// start from DefaultOptions.
type Options struct {
	// FfmpegPath is the ffmpeg executable to drive.
	FfmpegPath string
	// Scaler is the interpolation kernel used when rescaling the distorted
	// stream to reference dimensions.
	Scaler string
	// Framerate forces both input streams to given rate. 0 means use each
	// stream's probed native rate.
	Framerate float64
	// DistDelay shifts the distorted stream later by given seconds. Negative
	// values shift the reference stream later instead.
	DistDelay float64
	// StartFrame is a 0-based offset into both aligned streams at which
	// comparison starts.
	StartFrame int
	// Frames limits comparison to given number of frames, 0 means until the
	// end of the shorter stream.
	Frames int
	// Threads is ffmpeg's -threads value, 0 means auto.
	Threads int
	// Workers bounds concurrent ffmpeg processes, 0 sizes the pool from
	// available CPUs.
	Workers int
	// DryRun reports commands without spawning any process.
	DryRun bool
	// KeepTmp retains per-run temporary files for debugging.
	KeepTmp bool
	// TmpDir is the base directory for temporary metric output files, empty
	// means the OS default.
	TmpDir string
	// ExtraArgs are appended verbatim to the output side of every ffmpeg
	// invocation. An escape hatch, use with care.
	ExtraArgs []string
	// VMAF options are consulted only when the VMAF metric is requested.
	VMAF VMAFSettings
}

// DefaultOptions returns Options populated with defaults.
func DefaultOptions() *Options {
	return &Options{
		Scaler: DefaultScaler,
		VMAF: VMAFSettings{
			Subsample: DefaultVMAFSubsample,
		},
	}
}

// ScalerAllowed reports whether s is a supported scaling algorithm.
func ScalerAllowed(s string) bool {
	for _, a := range AllowedScalers {
		if s == a {
			return true
		}
	}
	return false
}

// Verify checks option values for coherence. It performs no filesystem or
// process probing.
func (o *Options) Verify() error {
	msgs := []string{}

	if o.FfmpegPath == "" {
		msgs = append(msgs, "ffmpeg path not set")
	}
	if !ScalerAllowed(o.Scaler) {
		msgs = append(msgs, fmt.Sprintf("scaler %q not one of %v", o.Scaler, AllowedScalers))
	}
	if o.Framerate < 0 {
		msgs = append(msgs, "negative framerate")
	}
	if o.StartFrame < 0 {
		msgs = append(msgs, "negative start frame")
	}
	if o.Frames < 0 {
		msgs = append(msgs, "negative frame count")
	}
	if o.Threads < 0 {
		msgs = append(msgs, "negative thread count")
	}
	if o.Workers < 0 {
		msgs = append(msgs, "negative worker count")
	}
	if o.VMAF.NThreads < 0 {
		msgs = append(msgs, "negative VMAF thread count")
	}
	if o.VMAF.Subsample < 1 {
		msgs = append(msgs, "VMAF subsample below 1")
	}

	if len(msgs) != 0 {
		return fmt.Errorf("%s: %w", strings.Join(msgs, ", "), ErrInvalidOptions)
	}
	return nil
}
