// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Video stream metadata related constructs.

package video

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata type contains useful video stream metadata.
type Metadata struct {
	CodecName  string  `json:"codec_name,omitempty"`
	FrameRate  string  `json:"r_frame_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty,string"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	BitRate    int     `json:"bit_rate,omitempty,string"`
	FrameCount int     `json:"nb_read_frames,omitempty,string"`
}

// FrameRateValue converts the rational FrameRate field into a number.
func (m Metadata) FrameRateValue() (float64, error) {
	return ParseFrameRate(m.FrameRate)
}

// ParseFrameRate converts ffprobe's rational framerate notation into a
// number, e.g. "30000/1001" into 29.97. Plain decimal notation is accepted
// as well.
func ParseFrameRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty framerate")
	}

	num, den, isRational := strings.Cut(s, "/")
	if !isRational {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing framerate %q: %w", s, err)
		}
		return v, nil
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing framerate %q: %w", s, err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing framerate %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("parsing framerate %q: zero denominator", s)
	}
	return n / d, nil
}
