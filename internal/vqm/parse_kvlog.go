// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Parser for the key:value log line encoding used by the psnr and ssim
// filters.

package vqm

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// kvLogParser parses one frame per line of space separated key:value
// tokens, e.g.
//
//	n:1 mse_avg:529.52 mse_y:887.00 psnr_avg:20.89 psnr_y:18.65
//
// The frame number comes from the dedicated "n" token, never from line
// position, so reordered or engine-added lines are tolerated. Lines without
// a valid "n" token are skipped and counted.
type kvLogParser struct {
	metric Metric
	// trimLine preprocesses a line before tokenization, nil means none.
	trimLine func(string) string
	// renameKey maps raw token keys to submetric names, nil means identity.
	renameKey func(string) string
}

var _ FrameParser = (*kvLogParser)(nil)

// Parse implements FrameParser for *kvLogParser.
func (p *kvLogParser) Parse(raw []byte) (MetricSeries, error) {
	series := MetricSeries{Metric: p.metric}

	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if p.trimLine != nil {
			line = p.trimLine(line)
		}
		if !p.parseLine(line, &series) {
			series.Skipped++
		}
	}
	if err := sc.Err(); err != nil {
		return series, &ParseError{Metric: p.metric, Skipped: series.Skipped, err: err}
	}

	if len(series.Frames) == 0 {
		return series, &ParseError{Metric: p.metric, Skipped: series.Skipped, err: ErrNoFrameData}
	}
	sortFrames(series.Frames)
	return series, nil
}

// parseLine converts one log line into a frame record appended to series.
// Returns false when the line lacks a valid frame number token or any value
// fails to parse.
func (p *kvLogParser) parseLine(line string, series *MetricSeries) bool {
	frame := -1
	values := make(map[string]float64)
	names := []string{}

	for _, tok := range strings.Fields(line) {
		k, v, ok := strings.Cut(tok, ":")
		if !ok {
			return false
		}
		if k == "n" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return false
			}
			frame = n
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		if p.renameKey != nil {
			k = p.renameKey(k)
		}
		values[k] = round3(f)
		names = append(names, k)
	}
	if frame < 0 {
		return false
	}

	for _, k := range names {
		series.noteField(k)
	}
	series.Frames = append(series.Frames, FrameRecord{Frame: frame, Values: values})
	return true
}

// trimSSIMSuffix drops the trailing decibel annotation from ssim filter
// lines, e.g. "... All:0.948245 (12.860441)" keeps everything before " (".
func trimSSIMSuffix(line string) string {
	if i := strings.Index(line, " ("); i >= 0 {
		return line[:i]
	}
	return line
}

// ssimKey maps raw ssim token keys to the psnr-style submetric naming, so
// that Y becomes ssim_y and All becomes ssim_avg.
func ssimKey(k string) string {
	k = "ssim_" + strings.ToLower(k)
	return strings.Replace(k, "all", "avg", 1)
}
