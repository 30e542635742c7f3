// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/jszwec/csvutil"

	"github.com/evolution-gaming/vqmeter/internal/vqm"
)

// WriteCSV writes results as flat CSV with one row per frame. The frame
// number column "n" goes first, submetric columns follow in first-seen order
// across all clip pairs, the input file identifier columns go last. Values
// absent from a frame render as empty cells. Global statistics have no place
// in the per-frame table, use WriteSummaryCSV for those.
func WriteCSV(w io.Writer, results []vqm.ClipPairResult) error {
	merged := make([]vqm.MergedFrames, 0, len(results))
	var columns []string
	added := make(map[string]bool)
	for i := range results {
		m := vqm.Merge(results[i].Series)
		merged = append(merged, m)
		for _, f := range m.Fields {
			if !added[f] {
				added[f] = true
				columns = append(columns, f)
			}
		}
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(columns)+3)
	header = append(header, "n")
	header = append(header, columns...)
	header = append(header, "input_file_dist", "input_file_ref")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	row := make([]string, len(header))
	for i := range merged {
		pair := results[i].Pair
		for j := range merged[i].Frames {
			fr := &merged[i].Frames[j]
			row[0] = strconv.Itoa(fr.Frame)
			for k, col := range columns {
				if v, ok := fr.Values[col]; ok {
					row[k+1] = formatValue(v)
				} else {
					row[k+1] = ""
				}
			}
			row[len(row)-2] = pair.DistFile
			row[len(row)-1] = pair.RefFile
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing CSV row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// summaryRecord is one summary CSV row carrying global statistics for a
// single submetric. Statistic fields are pointers so that degenerate
// submetrics with undefined statistics encode as empty cells.
type summaryRecord struct {
	InputFileDist string   `csv:"input_file_dist"`
	InputFileRef  string   `csv:"input_file_ref"`
	Metric        string   `csv:"metric"`
	Submetric     string   `csv:"submetric"`
	Average       *float64 `csv:"average"`
	Median        *float64 `csv:"median"`
	StDev         *float64 `csv:"stdev"`
	Min           *float64 `csv:"min"`
	Max           *float64 `csv:"max"`
}

// WriteSummaryCSV writes one CSV row per (clip pair, metric, submetric)
// combination with its global statistics.
func WriteSummaryCSV(w io.Writer, results []vqm.ClipPairResult) error {
	var records []summaryRecord
	for i := range results {
		r := &results[i]
		stats := r.GlobalStatsMap()
		for j := range r.Series {
			s := &r.Series[j]
			for _, f := range s.Fields {
				rec := summaryRecord{
					InputFileDist: r.Pair.DistFile,
					InputFileRef:  r.Pair.RefFile,
					Metric:        string(s.Metric),
					Submetric:     f,
				}
				if gs := stats[s.Metric][f]; gs != nil {
					rec.Average = &gs.Average
					rec.Median = &gs.Median
					rec.StDev = &gs.StDev
					rec.Min = &gs.Min
					rec.Max = &gs.Max
				}
				records = append(records, rec)
			}
		}
	}

	cw := csv.NewWriter(w)
	if err := csvutil.NewEncoder(cw).Encode(records); err != nil {
		return fmt.Errorf("writing summary CSV: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// formatValue renders a metric value for a CSV cell. Non-finite values keep
// the same string forms WriteJSON uses.
func formatValue(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
