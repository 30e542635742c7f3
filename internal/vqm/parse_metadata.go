// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Parser for the filter metadata log encoding used by the vif and msad
// filters.

package vqm

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// metadataLogParser extracts per-frame values from captured stderr where the
// metadata filter prints them interleaved with other diagnostics, e.g.
//
//	[Parsed_metadata_4 @ 0x7f995cd08640] frame:1    pts:1       pts_time:0.04
//	[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.0=0.263582
//	[Parsed_metadata_4 @ 0x7f995cd08640] lavfi.vif.scale.1=0.560129
//
// Only lines tagged [Parsed_metadata are considered. A frame: line opens a
// record, subsequent lavfi.<metric> lines fill it. Keys are normalized by
// stripping the lavfi.<metric>. prefix and lowercasing with dots turned into
// underscores, so lavfi.vif.scale.0 becomes scale_0 and lavfi.msad.msad.Y
// becomes msad_y. The filter counts frames from 0, numbers are normalized to
// the shared 1-based convention.
type metadataLogParser struct {
	metric Metric
}

var _ FrameParser = (*metadataLogParser)(nil)

// Parse implements FrameParser for *metadataLogParser.
func (p *metadataLogParser) Parse(raw []byte) (MetricSeries, error) {
	series := MetricSeries{Metric: p.metric}
	keyPrefix := "lavfi." + string(p.metric)

	var cur *FrameRecord

	flush := func() {
		if cur != nil {
			series.Frames = append(series.Frames, *cur)
			cur = nil
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "[Parsed_metadata") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			series.Skipped++
			continue
		}
		payload := fields[3]

		if strings.HasPrefix(payload, "frame") {
			_, v, ok := strings.Cut(payload, ":")
			n, err := strconv.Atoi(v)
			if !ok || err != nil || n < 0 {
				series.Skipped++
				continue
			}
			flush()
			cur = &FrameRecord{Frame: n + 1, Values: make(map[string]float64)}
			continue
		}

		// Value lines outside a frame context or belonging to another
		// filter are not ours to parse.
		if cur == nil || !strings.HasPrefix(payload, keyPrefix) {
			continue
		}

		k, v, ok := strings.Cut(payload, "=")
		if !ok {
			series.Skipped++
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			series.Skipped++
			continue
		}
		k = strings.TrimPrefix(k, keyPrefix+".")
		k = strings.ToLower(strings.ReplaceAll(k, ".", "_"))
		cur.Values[k] = round3(f)
		series.noteField(k)
	}
	flush()

	if err := sc.Err(); err != nil {
		return series, &ParseError{Metric: p.metric, Skipped: series.Skipped, err: err}
	}
	if len(series.Frames) == 0 {
		return series, &ParseError{Metric: p.metric, Skipped: series.Skipped, err: ErrNoFrameData}
	}
	sortFrames(series.Frames)
	return series, nil
}
