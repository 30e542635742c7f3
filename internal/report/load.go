// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/evolution-gaming/vqmeter/internal/vqm"
)

// Document is one clip pair report read back from JSON. Submetric field
// names come back sorted since JSON object key order is not recoverable
// through encoding/json.
type Document struct {
	DistFile string
	RefFile  string
	// Frames maps metric name to its frame records ordered by frame number.
	Frames map[string][]vqm.FrameRecord
	// Fields maps metric name to its submetric names, sorted.
	Fields map[string][]string
	// Global maps metric name to submetric statistics, nil for submetrics
	// with undefined statistics.
	Global map[string]map[string]*vqm.GlobalStats
}

// FieldNames returns all submetric names in the document across all
// metrics, sorted.
func (d *Document) FieldNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, fields := range d.Fields {
		for _, f := range fields {
			if !seen[f] {
				seen[f] = true
				names = append(names, f)
			}
		}
	}
	sort.Strings(names)
	return names
}

// FieldSeries returns frame numbers and values of one submetric ordered by
// frame number. When more than one metric carries the submetric the first
// one in sorted metric name order wins. Unknown submetrics yield nil slices.
func (d *Document) FieldSeries(field string) (frames []int, values []float64) {
	metrics := make([]string, 0, len(d.Fields))
	for m := range d.Fields {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	for _, m := range metrics {
		for _, fr := range d.Frames[m] {
			if v, ok := fr.Values[field]; ok {
				frames = append(frames, fr.Frame)
				values = append(values, v)
			}
		}
		if len(frames) != 0 {
			return frames, values
		}
	}
	return nil, nil
}

// Load reads report documents produced by WriteJSON. Both the single object
// and the array form are accepted, the returned slice has one element per
// clip pair.
func Load(r io.Reader) ([]Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	raws := []json.RawMessage{data}
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("parsing report: %w", err)
		}
	}

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := parseDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing report: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func parseDocument(raw json.RawMessage) (Document, error) {
	doc := Document{
		Frames: make(map[string][]vqm.FrameRecord),
		Fields: make(map[string][]string),
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return doc, err
	}

	for key, val := range top {
		switch key {
		case "input_file_dist":
			if err := json.Unmarshal(val, &doc.DistFile); err != nil {
				return doc, fmt.Errorf("%s: %w", key, err)
			}
		case "input_file_ref":
			if err := json.Unmarshal(val, &doc.RefFile); err != nil {
				return doc, fmt.Errorf("%s: %w", key, err)
			}
		case "global":
			if err := json.Unmarshal(val, &doc.Global); err != nil {
				return doc, fmt.Errorf("global statistics: %w", err)
			}
		default:
			frames, fields, err := parseFrames(val)
			if err != nil {
				return doc, fmt.Errorf("metric %s: %w", key, err)
			}
			doc.Frames[key] = frames
			doc.Fields[key] = fields
		}
	}
	return doc, nil
}

func parseFrames(raw json.RawMessage) ([]vqm.FrameRecord, []string, error) {
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, nil, err
	}

	frames := make([]vqm.FrameRecord, 0, len(rows))
	seen := make(map[string]bool)
	var fields []string
	for _, row := range rows {
		fr := vqm.FrameRecord{Values: make(map[string]float64, len(row))}
		for key, val := range row {
			if key == "n" {
				n, ok := val.(float64)
				if !ok || n < 1 {
					return nil, nil, fmt.Errorf("invalid frame number: %v", val)
				}
				fr.Frame = int(n)
				continue
			}
			v, err := toFloat(val)
			if err != nil {
				return nil, nil, fmt.Errorf("field %s: %w", key, err)
			}
			fr.Values[key] = v
			if !seen[key] {
				seen[key] = true
				fields = append(fields, key)
			}
		}
		if fr.Frame == 0 {
			return nil, nil, fmt.Errorf("frame record without frame number")
		}
		frames = append(frames, fr)
	}

	sort.Strings(fields)
	sort.Slice(frames, func(i, j int) bool { return frames[i].Frame < frames[j].Frame })
	return frames, fields, nil
}

// toFloat converts a decoded JSON value to a float accepting the string
// forms of non-finite values written by WriteJSON.
func toFloat(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case string:
		switch v {
		case "inf":
			return math.Inf(1), nil
		case "-inf":
			return math.Inf(-1), nil
		case "nan":
			return math.NaN(), nil
		}
	}
	return 0, fmt.Errorf("not a numeric value: %v", val)
}
