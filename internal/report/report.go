// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package report serializes metric computation results.
//
// Two shapes are supported: a nested JSON document which groups per-frame
// records and global statistics by metric, and flat CSV with one row per
// frame. JSON has no literals for IEEE-754 infinities and NaN, such values
// are written as the strings "inf", "-inf" and "nan" and converted back to
// floats by Load.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/evolution-gaming/vqmeter/internal/vqm"
)

// WriteJSON writes results as an indented JSON document. A single clip pair
// produces one report object, multiple pairs produce an array of report
// objects. Metric keys and submetric fields keep their first-seen order.
func WriteJSON(w io.Writer, results []vqm.ClipPairResult) error {
	docs := make([]*obj, 0, len(results))
	for i := range results {
		docs = append(docs, pairDocument(&results[i]))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	var err error
	if len(docs) == 1 {
		err = enc.Encode(docs[0])
	} else {
		err = enc.Encode(docs)
	}
	if err != nil {
		return fmt.Errorf("encoding JSON report: %w", err)
	}
	return nil
}

// pairDocument builds the report object for a single clip pair: one key per
// metric with its frame records, then global statistics, then the input
// file identifiers.
func pairDocument(r *vqm.ClipPairResult) *obj {
	doc := &obj{}
	for i := range r.Series {
		s := &r.Series[i]
		doc.add(string(s.Metric), frameObjects(s))
	}
	doc.add("global", globalObject(r))
	doc.add("input_file_dist", r.Pair.DistFile)
	doc.add("input_file_ref", r.Pair.RefFile)
	return doc
}

// frameObjects renders one series as a list of frame objects with the frame
// number under "n" followed by submetric fields in series order. Fields
// absent from a frame are omitted from its object.
func frameObjects(s *vqm.MetricSeries) []*obj {
	frames := make([]*obj, 0, len(s.Frames))
	for i := range s.Frames {
		fr := &s.Frames[i]
		o := &obj{}
		o.add("n", fr.Frame)
		for _, f := range s.Fields {
			if v, ok := fr.Values[f]; ok {
				o.add(f, jsonFloat(v))
			}
		}
		frames = append(frames, o)
	}
	return frames
}

// globalObject renders global statistics grouped by metric. Degenerate
// submetrics with no finite values render as null.
func globalObject(r *vqm.ClipPairResult) *obj {
	stats := r.GlobalStatsMap()
	g := &obj{}
	for i := range r.Series {
		s := &r.Series[i]
		m := &obj{}
		for _, f := range s.Fields {
			m.add(f, stats[s.Metric][f])
		}
		g.add(string(s.Metric), m)
	}
	return g
}

// obj is a minimal insertion-ordered JSON object. encoding/json sorts map
// keys on marshal, report documents instead keep metric and submetric keys
// in first-seen order.
type obj struct {
	keys []string
	vals []any
}

func (o *obj) add(key string, val any) {
	o.keys = append(o.keys, key)
	o.vals = append(o.vals, val)
}

// MarshalJSON implements json.Marshaler for obj.
func (o *obj) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonFloat marshals IEEE-754 non-finite values as strings since JSON has
// no literals for them.
type jsonFloat float64

// MarshalJSON implements json.Marshaler for jsonFloat.
func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-inf"`), nil
	case math.IsNaN(v):
		return []byte(`"nan"`), nil
	}
	return json.Marshal(v)
}
