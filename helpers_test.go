// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable helpers and fixtures for tests.
package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// ffmpegFiltersDoc is canned ffmpeg -filters output containing all metric
// filters.
const ffmpegFiltersDoc = `Filters:
  T.. = Timeline support
  .S. = Slice threading
  ..C = Command support
 ... abench            A->A       Benchmark part of a filtergraph.
 TSC psnr              VV->V      Calculate the PSNR between two video streams.
 TSC ssim              VV->V      Calculate the SSIM between two video streams.
 ..C libvmaf           VV->V      Calculate the VMAF between two video streams.
 TSC vif               VV->V      Calculate the VIF between two video streams.
 TSC msad              VV->V      Calculate the MSAD between two video streams.
 T.C metadata          V->V       Manipulate video frame metadata.
 ... scale             V->V       Scale the input video size and/or convert the image format.
`

// ffmpegFiltersNoLibvmafDoc is canned ffmpeg -filters output for a build
// compiled without libvmaf.
const ffmpegFiltersNoLibvmafDoc = `Filters:
  T.. = Timeline support
 TSC psnr              VV->V      Calculate the PSNR between two video streams.
 TSC ssim              VV->V      Calculate the SSIM between two video streams.
 TSC vif               VV->V      Calculate the VIF between two video streams.
 TSC msad              VV->V      Calculate the MSAD between two video streams.
 T.C metadata          V->V       Manipulate video frame metadata.
`

// psnrLogDoc is canned psnr filter stats output.
const psnrLogDoc = `n:1 mse_avg:529.52 mse_y:887.00 mse_u:233.33 mse_v:468.25 psnr_avg:20.89 psnr_y:18.65 psnr_u:24.45 psnr_v:21.43
n:2 mse_avg:532.24 mse_y:891.89 mse_u:234.49 mse_v:470.33 psnr_avg:20.87 psnr_y:18.63 psnr_u:24.43 psnr_v:21.41
`

// ssimLogDoc is canned ssim filter stats output.
const ssimLogDoc = `n:1 Y:0.912340 U:0.894560 V:0.901230 All:0.948245 (12.860441)
n:2 Y:0.910980 U:0.893210 V:0.899870 All:0.947113 (12.769856)
`

// vmafJSONDoc is canned libvmaf JSON log output.
const vmafJSONDoc = `{
  "version": "2.3.1",
  "frames": [
    {"frameNum": 0, "metrics": {"integer_motion": 0.000000, "vmaf": 92.500000}},
    {"frameNum": 1, "metrics": {"integer_motion": 3.500000, "vmaf": 91.700000}}
  ],
  "pooled_metrics": {
    "vmaf": {"min": 91.700000, "max": 92.500000, "mean": 92.100000, "harmonic_mean": 92.098262}
  }
}`

// vifLogDoc is canned vif filter metadata output as printed on stderr.
const vifLogDoc = `[Parsed_metadata_4 @ 0x7f995cd08640] frame:0    pts:0       pts_time:0
[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.0=0.263582
[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.1=0.560129
[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.2=0.626596
[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.3=0.682183
[Parsed_metadata_4 @ 0x7f995cd08640] frame:1    pts:1       pts_time:0.04
[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.0=0.270516
[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.1=0.571786
[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.2=0.637514
[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.3=0.692592
`

// msadLogDoc is canned msad filter metadata output as printed on stderr.
const msadLogDoc = `[Parsed_metadata_6 @ 0x10ad04ea0] frame:0    pts:0       pts_time:0
[Parsed_metadata_6 @ 0x10ad04ea0] lavfi.msad.msad.Y=0.029998
[Parsed_metadata_6 @ 0x10ad04ea0] lavfi.msad.msad.U=0.019501
[Parsed_metadata_6 @ 0x10ad04ea0] lavfi.msad.msad.V=0.026455
[Parsed_metadata_6 @ 0x10ad04ea0] lavfi.msad.msad_avg=0.025318
[Parsed_metadata_6 @ 0x10ad04ea0] frame:1    pts:1       pts_time:0.04
[Parsed_metadata_6 @ 0x10ad04ea0] lavfi.msad.msad.Y=0.031210
[Parsed_metadata_6 @ 0x10ad04ea0] lavfi.msad.msad.U=0.020110
[Parsed_metadata_6 @ 0x10ad04ea0] lavfi.msad.msad.V=0.027008
[Parsed_metadata_6 @ 0x10ad04ea0] lavfi.msad.msad_avg=0.026109
`

// ffprobeRateDoc is canned ffprobe framerate query output.
const ffprobeRateDoc = `{"streams": [{"r_frame_rate": "25/1"}]}`

// ffprobeMetadataDoc is canned ffprobe stream metadata output matching the
// two frame metric logs above.
const ffprobeMetadataDoc = `{
  "streams": [
    {
      "codec_name": "h264",
      "width": 1280,
      "height": 720,
      "r_frame_rate": "25/1",
      "nb_read_frames": "2"
    }
  ],
  "format": {"duration": "0.08", "bit_rate": "1000000"}
}`

// ffprobePacketsDoc is canned ffprobe packet statistics output.
const ffprobePacketsDoc = `{"packets":[
{"flags":"K_","duration_time":"0.040000","pts_time":"0.000000","size":"5000"},
{"flags":"__","duration_time":"0.040000","pts_time":"0.040000","size":"1000"},
{"flags":"__","duration_time":"0.040000","pts_time":"1.000000","size":"1200"},
{"flags":"K_","duration_time":"0.040000","pts_time":"2.000000","size":"4800"}
]}`

// writeTestFile helper creates a file with given payload.
func writeTestFile(t *testing.T, fPath, payload string) {
	t.Helper()
	if err := os.WriteFile(fPath, []byte(payload), fs.FileMode(0o644)); err != nil {
		t.Fatalf("Unexpected error writing %s: %v", fPath, err)
	}
}

// makeFakeFfmpeg creates a fake ffmpeg script serving canned filter lists
// and metric results and points FFMPEG_PATH to it. Metric output
// destinations are recovered from the filter graph argument.
func makeFakeFfmpeg(t *testing.T, filtersDoc string) string {
	t.Helper()
	dir := t.TempDir()

	writeTestFile(t, filepath.Join(dir, "filters.txt"), filtersDoc)
	writeTestFile(t, filepath.Join(dir, "psnr.log"), psnrLogDoc)
	writeTestFile(t, filepath.Join(dir, "ssim.log"), ssimLogDoc)
	writeTestFile(t, filepath.Join(dir, "vmaf.json"), vmafJSONDoc)
	writeTestFile(t, filepath.Join(dir, "vif.log"), vifLogDoc)
	writeTestFile(t, filepath.Join(dir, "msad.log"), msadLogDoc)

	script := `#!/bin/sh
# Fake ffmpeg serving canned results.
here=$(dirname "$0")
args="$*"
case "$args" in
*-filters*)
	cat "$here/filters.txt"
	;;
*"psnr='"*)
	cp "$here/psnr.log" "$(expr "$args" : ".*psnr='\([^']*\)'")"
	;;
*"ssim='"*)
	cp "$here/ssim.log" "$(expr "$args" : ".*ssim='\([^']*\)'")"
	;;
*"libvmaf='"*)
	cp "$here/vmaf.json" "$(expr "$args" : ".*log_path=\([^:]*\):")"
	;;
*"vif,metadata"*)
	cat "$here/vif.log" >&2
	;;
*"msad,metadata"*)
	cat "$here/msad.log" >&2
	;;
esac
exit 0
`
	tool := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatalf("Unexpected error creating fake ffmpeg: %v", err)
	}
	t.Setenv("FFMPEG_PATH", tool)
	return tool
}

// fixFakeFfmpeg fixture provides a fully capable fake ffmpeg.
func fixFakeFfmpeg(t *testing.T) string {
	t.Helper()
	return makeFakeFfmpeg(t, ffmpegFiltersDoc)
}

// fixFakeFfmpegNoLibvmaf fixture provides a fake ffmpeg built without
// libvmaf support.
func fixFakeFfmpegNoLibvmaf(t *testing.T) string {
	t.Helper()
	return makeFakeFfmpeg(t, ffmpegFiltersNoLibvmafDoc)
}

// fixFakeFfprobe fixture creates a fake ffprobe script serving canned
// metadata and packet statistics and points FFPROBE_PATH to it.
func fixFakeFfprobe(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeTestFile(t, filepath.Join(dir, "rate.json"), ffprobeRateDoc)
	writeTestFile(t, filepath.Join(dir, "metadata.json"), ffprobeMetadataDoc)
	writeTestFile(t, filepath.Join(dir, "packets.json"), ffprobePacketsDoc)

	script := `#!/bin/sh
# Fake ffprobe serving canned results.
here=$(dirname "$0")
case "$*" in
*r_frame_rate*)
	cat "$here/rate.json"
	;;
*packet=flags*)
	cat "$here/packets.json"
	;;
*)
	cat "$here/metadata.json"
	;;
esac
exit 0
`
	tool := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatalf("Unexpected error creating fake ffprobe: %v", err)
	}
	t.Setenv("FFPROBE_PATH", tool)
	return tool
}

// fixVideoFile fixture provides a dummy video file. Contents are irrelevant
// since all probing and metric computation goes through fake tools.
func fixVideoFile(t *testing.T, name string) string {
	t.Helper()
	fPath := filepath.Join(t.TempDir(), name)
	writeTestFile(t, fPath, "not really a video")
	return fPath
}

// fixVMAFModelFile fixture provides a dummy VMAF model file.
func fixVMAFModelFile(t *testing.T) string {
	t.Helper()
	fPath := filepath.Join(t.TempDir(), "vmaf_v0.6.1.json")
	writeTestFile(t, fPath, `{"name": "vmaf_v0.6.1"}`)
	return fPath
}
