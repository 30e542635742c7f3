// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Per-frame record data model shared by parsers, merger and aggregator.

package vqm

import "fmt"

// FrameRecord holds submetric values for a single decoded frame. Frame
// numbers are 1-based and are the join key across metrics.
type FrameRecord struct {
	// Frame is the 1-based frame number.
	Frame int
	// Values maps submetric name to its numeric value for this frame.
	Values map[string]float64
}

// MetricSeries is an ordered sequence of frame records produced by one metric
// computation for one clip pair.
type MetricSeries struct {
	// Metric that produced this series.
	Metric Metric
	// Frames ordered by frame number ascending.
	Frames []FrameRecord
	// Fields lists submetric names in order of first appearance. Every name
	// in Frames[i].Values occurs in Fields.
	Fields []string
	// Skipped counts input lines the parser could not interpret.
	Skipped int

	seen map[string]bool
}

// noteField registers a submetric name preserving first appearance order.
func (s *MetricSeries) noteField(name string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[name] {
		return
	}
	s.seen[name] = true
	s.Fields = append(s.Fields, name)
}

// FieldValues collects values of one submetric across all frames in order.
// Frames where the submetric is absent are excluded.
func (s *MetricSeries) FieldValues(name string) []float64 {
	vals := make([]float64, 0, len(s.Frames))
	for i := range s.Frames {
		if v, ok := s.Frames[i].Values[name]; ok {
			vals = append(vals, v)
		}
	}
	return vals
}

// ClipPair is one distorted versus reference video combination to compare.
type ClipPair struct {
	DistFile string
	RefFile  string
}

// String implements fmt.Stringer for ClipPair.
func (p ClipPair) String() string {
	return fmt.Sprintf("%s vs %s", p.DistFile, p.RefFile)
}

// ClipPairResult is the unit of result returned per clip pair. Series holds
// one element per successfully computed metric in request order. Errors
// collects per-metric failures, computation and parsing alike.
type ClipPairResult struct {
	Pair     ClipPair
	Series   []MetricSeries
	Commands []string
	Errors   []error
}

// SeriesFor returns the series for given metric or nil when the metric did
// not produce one.
func (r *ClipPairResult) SeriesFor(m Metric) *MetricSeries {
	for i := range r.Series {
		if r.Series[i].Metric == m {
			return &r.Series[i]
		}
	}
	return nil
}

// GlobalStatsMap computes global statistics for every submetric of every
// series in the result. First level key is the metric name, second level key
// is the submetric name. Degenerate series map to nil stats.
func (r *ClipPairResult) GlobalStatsMap() map[Metric]map[string]*GlobalStats {
	out := make(map[Metric]map[string]*GlobalStats, len(r.Series))
	for i := range r.Series {
		s := &r.Series[i]
		stats := make(map[string]*GlobalStats, len(s.Fields))
		for _, f := range s.Fields {
			stats[f] = Aggregate(s.FieldValues(f))
		}
		out[s.Metric] = stats
	}
	return out
}
