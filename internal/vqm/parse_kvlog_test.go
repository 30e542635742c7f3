// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var psnrLogDoc = []byte(`n:1 mse_avg:529.52 mse_y:887.00 mse_u:233.33 mse_v:468.25 psnr_avg:20.89 psnr_y:18.65 psnr_u:24.45 psnr_v:21.43
n:2 mse_avg:532.24 mse_y:891.89 mse_u:234.49 mse_v:470.33 psnr_avg:20.87 psnr_y:18.63 psnr_u:24.43 psnr_v:21.41
`)

func TestKvLogParser_PSNR(t *testing.T) {
	series, err := parserFor(PSNR).Parse(psnrLogDoc)
	require.NoError(t, err)

	assert.Equal(t, PSNR, series.Metric)
	assert.Zero(t, series.Skipped)

	t.Run("fields in first appearance order", func(t *testing.T) {
		want := []string{"mse_avg", "mse_y", "mse_u", "mse_v", "psnr_avg", "psnr_y", "psnr_u", "psnr_v"}
		assert.Equal(t, want, series.Fields)
	})

	t.Run("frame records carry all values", func(t *testing.T) {
		require.Len(t, series.Frames, 2)
		want := FrameRecord{
			Frame: 1,
			Values: map[string]float64{
				"mse_avg": 529.52, "mse_y": 887.00, "mse_u": 233.33, "mse_v": 468.25,
				"psnr_avg": 20.89, "psnr_y": 18.65, "psnr_u": 24.45, "psnr_v": 21.43,
			},
		}
		if diff := cmp.Diff(want, series.Frames[0]); diff != "" {
			t.Errorf("Frame record mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, 2, series.Frames[1].Frame)
	})
}

func TestKvLogParser_PSNRInfinity(t *testing.T) {
	// Identical frames make the psnr filter report inf.
	doc := []byte("n:1 mse_avg:0.00 mse_y:0.00 mse_u:0.00 mse_v:0.00 psnr_avg:inf psnr_y:inf psnr_u:inf psnr_v:inf\n")

	series, err := parserFor(PSNR).Parse(doc)
	require.NoError(t, err)
	require.Len(t, series.Frames, 1)

	got := series.Frames[0].Values["psnr_avg"]
	assert.True(t, math.IsInf(got, 1), "inf value should survive parsing, got %v", got)
}

func TestKvLogParser_SSIM(t *testing.T) {
	doc := []byte(`n:1 Y:0.937213 U:0.961733 V:0.945788 All:0.948245 (12.860441)
n:2 Y:0.936011 U:0.960874 V:0.944823 All:0.947261 (12.779432)
`)

	series, err := parserFor(SSIM).Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, SSIM, series.Metric)
	assert.Equal(t, []string{"ssim_y", "ssim_u", "ssim_v", "ssim_avg"}, series.Fields)

	require.Len(t, series.Frames, 2)
	want := FrameRecord{
		Frame: 1,
		Values: map[string]float64{
			"ssim_y": 0.937, "ssim_u": 0.962, "ssim_v": 0.946, "ssim_avg": 0.948,
		},
	}
	if diff := cmp.Diff(want, series.Frames[0]); diff != "" {
		t.Errorf("Frame record mismatch (-want +got):\n%s", diff)
	}
}

func TestKvLogParser_SkipsMalformedLines(t *testing.T) {
	tests := map[string]struct {
		doc         string
		wantFrames  int
		wantSkipped int
	}{
		"garbage line between frames": {
			doc:         "n:1 psnr_avg:20.89\nthis is not a frame line\nn:2 psnr_avg:20.87\n",
			wantFrames:  2,
			wantSkipped: 1,
		},
		"missing frame number token": {
			doc:         "psnr_avg:20.89 psnr_y:18.65\nn:1 psnr_avg:20.89\n",
			wantFrames:  1,
			wantSkipped: 1,
		},
		"unparsable value": {
			doc:         "n:1 psnr_avg:twenty\nn:2 psnr_avg:20.87\n",
			wantFrames:  1,
			wantSkipped: 1,
		},
		"zero frame number": {
			doc:         "n:0 psnr_avg:20.89\nn:1 psnr_avg:20.87\n",
			wantFrames:  1,
			wantSkipped: 1,
		},
		"blank lines are not counted": {
			doc:         "\n\nn:1 psnr_avg:20.89\n\n",
			wantFrames:  1,
			wantSkipped: 0,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			series, err := parserFor(PSNR).Parse([]byte(tc.doc))
			require.NoError(t, err)
			assert.Len(t, series.Frames, tc.wantFrames)
			assert.Equal(t, tc.wantSkipped, series.Skipped)
		})
	}
}

func TestKvLogParser_ReorderedLines(t *testing.T) {
	doc := []byte("n:3 psnr_avg:21.00\nn:1 psnr_avg:20.89\nn:2 psnr_avg:20.87\n")

	series, err := parserFor(PSNR).Parse(doc)
	require.NoError(t, err)

	require.Len(t, series.Frames, 3)
	for i, want := range []int{1, 2, 3} {
		assert.Equal(t, want, series.Frames[i].Frame)
	}
}

func TestKvLogParser_Negative(t *testing.T) {
	tests := map[string][]byte{
		"empty input":      nil,
		"only garbage":     []byte("no frames here\nnope\n"),
		"only blank lines": []byte("\n\n\n"),
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parserFor(PSNR).Parse(doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoFrameData)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, PSNR, perr.Metric)
		})
	}
}
