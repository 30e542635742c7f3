// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Ffmpeg family related tools: discovery and stream probing.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/evolution-gaming/vqmeter/internal/logging"
	"github.com/evolution-gaming/vqmeter/internal/video"
)

var (
	ffprobeCmd = "ffprobe"
	ffmpegCmd  = "ffmpeg"
	// Env variables overriding discovery, useful when several ffmpeg builds
	// are installed side by side.
	ffmpegPathOverride  = "FFMPEG_PATH"
	ffprobePathOverride = "FFPROBE_PATH"
)

// FindTool will find tool executable in $PATH with possibility to override it
// via environment variable.
func FindTool(exeName, overrideEnvVar string) (string, error) {
	// First check for executable in case it's overridden via env variable.
	if p := os.Getenv(overrideEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	// Look for executable in $PATH.
	if p, err := exec.LookPath(exeName); err == nil {
		return p, nil
	}

	// So we did not find any traces of executable - error out!
	return "", fmt.Errorf("binary (%s) not found", exeName)
}

// FfmpegPath will return path to ffmpeg binary and error if path is not
// found. FFMPEG_PATH environment variable overrides discovery.
func FfmpegPath() (string, error) {
	p, err := FindTool(ffmpegCmd, ffmpegPathOverride)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return p, nil
}

// FfprobePath will return path to ffprobe binary and error if path is not
// found. FFPROBE_PATH environment variable overrides discovery.
func FfprobePath() (string, error) {
	p, err := FindTool(ffprobeCmd, ffprobePathOverride)
	if err != nil {
		return "", fmt.Errorf("ffprobe not found: %w", err)
	}
	return p, nil
}

// ProbeMetadata will query video stream metadata via ffprobe. The whole
// stream is decoded for a frame accurate count, expect it to take a while
// for long files.
func ProbeMetadata(ctx context.Context, videoFile string) (video.Metadata, error) {
	var vmeta video.Metadata

	if _, err := os.Stat(videoFile); err != nil {
		return vmeta, fmt.Errorf("ProbeMetadata() os.Stat: %w", err)
	}

	ffprobeArgs := []string{
		"-v", "quiet",
		"-threads", "0",
		"-select_streams", "v",
		"-count_frames",
		"-of", "json",
		"-show_format",
		"-show_streams",
		videoFile,
	}
	ffprobePath, err := FfprobePath()
	if err != nil {
		return vmeta, err
	}
	cmd := exec.CommandContext(ctx, ffprobePath, ffprobeArgs...) //#nosec G204
	logging.Debugf("Running: %s\n", cmd)
	out, err := cmd.Output()
	if err != nil {
		return vmeta, fmt.Errorf("ProbeMetadata() exec error: %w", err)
	}

	// A temporary structure to unmarshal JSON from ffprobe output.
	type metadata struct {
		CodecName  string  `json:"codec_name,omitempty"`
		FrameRate  string  `json:"r_frame_rate,omitempty"`
		Duration   float64 `json:"duration,omitempty,string"`
		Width      int     `json:"width,omitempty"`
		Height     int     `json:"height,omitempty"`
		BitRate    int     `json:"bit_rate,omitempty,string"`
		FrameCount int     `json:"nb_read_frames,omitempty,string"`
	}
	// Unmarshal metadata from both "streams" and "format" JSON objects.
	meta := &struct {
		Streams []metadata
		Format  metadata
	}{}
	if err := json.Unmarshal(out, &meta); err != nil {
		return vmeta, fmt.Errorf("ProbeMetadata() json.Unmarshal: %w", err)
	}
	if len(meta.Streams) == 0 {
		return vmeta, fmt.Errorf("no video stream in %s", videoFile)
	}

	vmeta = video.Metadata(meta.Streams[0])
	// For mkv container Streams does not contain duration, so we have to look into Format.
	vmeta.Duration = math.Max(vmeta.Duration, meta.Format.Duration)
	logging.Debugf("%s %+v", videoFile, vmeta)

	return vmeta, nil
}

// ProbeFrameRate resolves the declared framerate of the first video stream.
// Cheap, no stream decoding involved.
func ProbeFrameRate(ctx context.Context, videoFile string) (float64, error) {
	ffprobePath, err := FfprobePath()
	if err != nil {
		return 0, err
	}

	ffprobeArgs := []string{
		"-v", "quiet",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "json",
		videoFile,
	}
	cmd := exec.CommandContext(ctx, ffprobePath, ffprobeArgs...) //#nosec G204
	logging.Debugf("Running: %s\n", cmd)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ProbeFrameRate() exec error: %w", err)
	}

	meta := &struct {
		Streams []struct {
			FrameRate string `json:"r_frame_rate"`
		}
	}{}
	if err := json.Unmarshal(out, meta); err != nil {
		return 0, fmt.Errorf("ProbeFrameRate() json.Unmarshal: %w", err)
	}
	if len(meta.Streams) == 0 {
		return 0, fmt.Errorf("no video stream in %s", videoFile)
	}

	rate, err := video.ParseFrameRate(meta.Streams[0].FrameRate)
	if err != nil {
		return 0, fmt.Errorf("framerate of %s: %w", videoFile, err)
	}
	return rate, nil
}

// FrameRateProber adapts ProbeFrameRate to the metrics engine prober
// interface.
type FrameRateProber struct{}

// FrameRate implements the prober interface for FrameRateProber.
func (FrameRateProber) FrameRate(ctx context.Context, file string) (float64, error) {
	return ProbeFrameRate(ctx, file)
}
