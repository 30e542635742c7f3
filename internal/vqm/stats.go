// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Global descriptive statistics over submetric series.

package vqm

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GlobalStats holds descriptive statistics of one submetric series. StDev is
// the population standard deviation, divisor N.
type GlobalStats struct {
	Average float64 `json:"average" csv:"average"`
	Median  float64 `json:"median" csv:"median"`
	StDev   float64 `json:"stdev" csv:"stdev"`
	Min     float64 `json:"min" csv:"min"`
	Max     float64 `json:"max" csv:"max"`
}

// Aggregate computes global statistics over the finite subset of values.
// NaN and infinities are excluded from every statistic. When no finite
// values remain the statistics are undefined and nil is returned, never a
// panic or division by zero. All statistics are rounded to 3 decimals.
func Aggregate(values []float64) *GlobalStats {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite = append(finite, v)
	}
	if len(finite) == 0 {
		return nil
	}

	return &GlobalStats{
		Average: round3(stat.Mean(finite, nil)),
		Median:  round3(median(finite)),
		StDev:   round3(stat.PopStdDev(finite, nil)),
		Min:     round3(floats.Min(finite)),
		Max:     round3(floats.Max(finite)),
	}
}

// median returns the midpoint of the sorted values, averaging the two middle
// values for an even count. gonum's quantile estimators interpolate
// differently, this matches the textbook midpoint convention.
func median(values []float64) float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)

	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
