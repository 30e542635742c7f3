// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Parser selection and helpers shared by the per-encoding parsers.

package vqm

import (
	"math"
	"sort"
)

// FrameParser converts raw engine output into an ordered series of frame
// records. One implementation exists per output encoding.
type FrameParser interface {
	Parse(raw []byte) (MetricSeries, error)
}

// parserFor selects the parser matching metric m's output encoding.
func parserFor(m Metric) FrameParser {
	switch m {
	case PSNR:
		return &kvLogParser{metric: PSNR}
	case SSIM:
		return &kvLogParser{
			metric:    SSIM,
			trimLine:  trimSSIMSuffix,
			renameKey: ssimKey,
		}
	case VMAF:
		return &vmafJSONParser{}
	default:
		return &metadataLogParser{metric: m}
	}
}

// round3 rounds to 3 decimal places. Non-finite values pass through.
func round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*1000) / 1000
}

// sortFrames orders records by frame number ascending. Parsers call it
// before returning so that series hold the documented order even when the
// raw input arrived reordered.
func sortFrames(frames []FrameRecord) {
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Frame < frames[j].Frame
	})
}
