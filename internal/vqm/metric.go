// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Metric identities and related lookups.

package vqm

import (
	"fmt"
	"strings"
)

// Metric identifies one supported video quality metric.
type Metric string

const (
	PSNR Metric = "psnr"
	SSIM Metric = "ssim"
	VMAF Metric = "vmaf"
	VIF  Metric = "vif"
	MSAD Metric = "msad"
)

// AllMetrics lists supported metrics in canonical order.
func AllMetrics() []Metric {
	return []Metric{PSNR, SSIM, VMAF, VIF, MSAD}
}

// DefaultMetrics are the metrics computed when none are requested explicitly.
func DefaultMetrics() []Metric {
	return []Metric{PSNR, SSIM}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	switch m {
	case PSNR, SSIM, VMAF, VIF, MSAD:
		return true
	}
	return false
}

// FilterName returns the ffmpeg filter that computes metric m.
func (m Metric) FilterName() string {
	if m == VMAF {
		return "libvmaf"
	}
	return string(m)
}

// String implements fmt.Stringer for Metric.
func (m Metric) String() string {
	return string(m)
}

// ParseMetric converts a metric name into a Metric.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// ParseMetricList converts a comma or space separated list of metric names
// into a slice of Metrics. Duplicates are dropped, first occurrence order is
// retained.
func ParseMetricList(s string) ([]Metric, error) {
	names := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty metric list", ErrInvalidOptions)
	}

	seen := make(map[Metric]bool, len(names))
	metrics := make([]Metric, 0, len(names))
	for _, name := range names {
		m, err := ParseMetric(name)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		metrics = append(metrics, m)
	}
	return metrics, nil
}
