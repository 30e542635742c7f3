// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vmafJSONDoc = []byte(`{
	"version": "2.3.1",
	"frames": [
		{
			"frameNum": 0,
			"metrics": {
				"integer_motion2": 0.000000,
				"integer_motion": 0.000000,
				"vmaf": 92.555561
			}
		},
		{
			"frameNum": 1,
			"metrics": {
				"integer_motion2": 3.500000,
				"integer_motion": 3.500000,
				"vmaf": 93.123456
			}
		}
	],
	"pooled_metrics": {
		"vmaf": {"min": 92.555561, "max": 93.123456, "mean": 92.839508, "harmonic_mean": 92.839072}
	}
}`)

func TestVmafJSONParser(t *testing.T) {
	series, err := parserFor(VMAF).Parse(vmafJSONDoc)
	require.NoError(t, err)

	assert.Equal(t, VMAF, series.Metric)
	assert.Zero(t, series.Skipped)

	t.Run("frame numbers normalized to 1-based", func(t *testing.T) {
		require.Len(t, series.Frames, 2)
		assert.Equal(t, 1, series.Frames[0].Frame)
		assert.Equal(t, 2, series.Frames[1].Frame)
	})

	t.Run("fields registered in sorted order", func(t *testing.T) {
		assert.Equal(t, []string{"integer_motion", "integer_motion2", "vmaf"}, series.Fields)
	})

	t.Run("values copied without rounding", func(t *testing.T) {
		want := FrameRecord{
			Frame: 1,
			Values: map[string]float64{
				"integer_motion2": 0,
				"integer_motion":  0,
				"vmaf":            92.555561,
			},
		}
		if diff := cmp.Diff(want, series.Frames[0]); diff != "" {
			t.Errorf("Frame record mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestVmafJSONParser_OpenFieldSet(t *testing.T) {
	// With extra VMAF features enabled the per-frame metric set grows, the
	// parser must copy whatever is present.
	doc := []byte(`{"frames": [
		{"frameNum": 0, "metrics": {"vmaf": 90.1, "psnr_y": 38.2, "float_ssim": 0.98, "cambi": 0.1}}
	]}`)

	series, err := parserFor(VMAF).Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"cambi", "float_ssim", "psnr_y", "vmaf"}, series.Fields)
	assert.Equal(t, 38.2, series.Frames[0].Values["psnr_y"])
}

func TestVmafJSONParser_Negative(t *testing.T) {
	tests := map[string]struct {
		doc []byte
	}{
		"invalid JSON":       {doc: []byte(`{"frames": [`)},
		"empty document":     {doc: nil},
		"no frames key":      {doc: []byte(`{"version": "2.3.1"}`)},
		"empty frames array": {doc: []byte(`{"frames": []}`)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parserFor(VMAF).Parse(tc.doc)
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, VMAF, perr.Metric)
		})
	}
}
