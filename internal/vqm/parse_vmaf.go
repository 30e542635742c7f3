// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Parser for the libvmaf JSON result document.

package vqm

import (
	"encoding/json"
	"fmt"
	"sort"
)

// vmafJSONParser parses the JSON document libvmaf writes to its log_path.
// The set of per-frame fields depends on which VMAF features were enabled,
// so no fixed field set is assumed: every numeric field present is copied.
// libvmaf counts frames from 0, frame numbers are normalized to the 1-based
// convention shared by all metrics.
type vmafJSONParser struct{}

var _ FrameParser = (*vmafJSONParser)(nil)

// Parse implements FrameParser for *vmafJSONParser.
func (p *vmafJSONParser) Parse(raw []byte) (MetricSeries, error) {
	series := MetricSeries{Metric: VMAF}

	var doc struct {
		Frames []struct {
			FrameNum int                `json:"frameNum"`
			Metrics  map[string]float64 `json:"metrics"`
		} `json:"frames"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return series, &ParseError{Metric: VMAF, err: fmt.Errorf("libvmaf JSON: %w", err)}
	}

	for _, fr := range doc.Frames {
		// JSON object key order is not preserved by unmarshaling, sort per
		// frame for a deterministic field order.
		names := make([]string, 0, len(fr.Metrics))
		for k := range fr.Metrics {
			names = append(names, k)
		}
		sort.Strings(names)

		values := make(map[string]float64, len(fr.Metrics))
		for _, k := range names {
			values[k] = fr.Metrics[k]
			series.noteField(k)
		}
		series.Frames = append(series.Frames, FrameRecord{Frame: fr.FrameNum + 1, Values: values})
	}

	if len(series.Frames) == 0 {
		return series, &ParseError{Metric: VMAF, err: ErrNoFrameData}
	}
	sortFrames(series.Frames)
	return series, nil
}
