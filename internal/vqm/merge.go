// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Full outer join of per-metric frame series into one timeline.

package vqm

import "sort"

// MergedFrames is one combined frame-indexed table for a single clip pair.
type MergedFrames struct {
	// Fields lists all column names in order of first appearance, metric
	// request order first, per-metric field order second.
	Fields []string
	// Frames ordered by frame number ascending, one record per frame number
	// present in any input series.
	Frames []FrameRecord
}

// Merge joins per-metric series into a single timeline keyed by frame
// number. The join is a full outer join: a frame number present in some but
// not all series yields a combined record where the missing metrics' fields
// are simply absent, never zero-filled. Field name collisions across metrics
// are resolved by prefixing the later metric's name, the first claimant
// keeps the plain name and nothing is overwritten. Series from different
// clip pairs must not be merged together.
func Merge(series []MetricSeries) MergedFrames {
	var out MergedFrames

	// fieldOwner tracks which metric first claimed a plain field name.
	fieldOwner := make(map[string]Metric)
	// rename maps (metric, raw field) to the final column name.
	type metricField struct {
		metric Metric
		field  string
	}
	finalName := make(map[metricField]string)
	added := make(map[string]bool)

	for _, s := range series {
		for _, f := range s.Fields {
			owner, claimed := fieldOwner[f]
			name := f
			if claimed && owner != s.Metric {
				name = string(s.Metric) + "_" + f
			} else if !claimed {
				fieldOwner[f] = s.Metric
			}
			finalName[metricField{s.Metric, f}] = name
			if !added[name] {
				added[name] = true
				out.Fields = append(out.Fields, name)
			}
		}
	}

	byFrame := make(map[int]int)
	for _, s := range series {
		for i := range s.Frames {
			fr := &s.Frames[i]
			idx, ok := byFrame[fr.Frame]
			if !ok {
				idx = len(out.Frames)
				byFrame[fr.Frame] = idx
				out.Frames = append(out.Frames, FrameRecord{
					Frame:  fr.Frame,
					Values: make(map[string]float64),
				})
			}
			for _, f := range s.Fields {
				if v, ok := fr.Values[f]; ok {
					out.Frames[idx].Values[finalName[metricField{s.Metric, f}]] = v
				}
			}
		}
	}

	sort.Slice(out.Frames, func(i, j int) bool {
		return out.Frames[i].Frame < out.Frames[j].Frame
	})
	return out
}
