// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Bitrate and frame size analysis from container packet statistics.

package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path"
	"runtime"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"

	"github.com/evolution-gaming/vqmeter/internal/logging"
)

// FrameStat is struct with per-frame meta-data.
type FrameStat struct {
	KeyFrame     bool
	DurationTime float64
	PtsTime      float64
	Size         uint64
}

func (f *FrameStat) UnmarshalJSON(data []byte) error {
	// By convention Unmarshalers implement UnmarshalJSON([]byte("null")) as a
	// no-op.
	if string(data) == "null" {
		return nil
	}
	var ps packetStat
	if err := json.Unmarshal(data, &ps); err != nil {
		return fmt.Errorf("FrameStat.UnmarshalJSON: %w", err)
	}

	f.KeyFrame = ps.Flags == "K_"
	f.DurationTime = ps.DurationTime
	f.PtsTime = ps.PtsTime
	f.Size = ps.Size

	return nil
}

// packetStat is struct with per-packet meta-data as provided by ffprobe.
type packetStat struct {
	// As reported by ffprobe flags: for key-frame it's value is "K_", we will
	// assume that all other e.g. non-key frames are P-frames although it is
	// technically incorrect since it will include B-frames as well.
	Flags        string  `json:"flags"`
	DurationTime float64 `json:"duration_time,string"`
	PtsTime      float64 `json:"pts_time,string"`
	Size         uint64  `json:"size,string"`
}

// GetFrameStats gets per-frame stats using ffprobe.
func GetFrameStats(ctx context.Context, videoFile, ffprobePath string) ([]FrameStat, error) {
	// Although we are querying packets statistics e.g. `AVPacket` from PoV libav, still
	// for video stream it should map directly to a video frame.
	ffprobeArgs := []string{
		"-hide_banner",
		"-loglevel", "quiet",
		"-threads", fmt.Sprint(runtime.NumCPU()),
		"-select_streams", "v",
		"-show_entries",
		"packet=flags,pts_time,size,duration_time",
		"-of", "json=compact=1",
		videoFile,
	}

	cmd := exec.CommandContext(ctx, ffprobePath, ffprobeArgs...)
	logging.Debugf("Running: %s\n", cmd)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	// Need a dummy struct for first level.
	frames := &struct {
		Packets []FrameStat
	}{}

	if err := json.Unmarshal(out, &frames); err != nil {
		return nil, err
	}

	return frames.Packets, nil
}

// getDuration calculates video duration based on data from FrameStat slice.
func getDuration(fs []FrameStat) float64 {
	pts := make([]float64, 0, len(fs))
	var acc float64
	for _, v := range fs {
		acc += v.DurationTime
		pts = append(pts, v.PtsTime)
	}
	// There is no guarantee that PTS-es are in increasing order.
	sort.Float64s(pts)
	return math.Max((pts[len(pts)-1] - pts[0] + fs[0].DurationTime), acc)
}

// secondsTicker returns a ticker placing X axis ticks with 10 second period.
func secondsTicker() plot.Ticker {
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		var t []plot.Tick
		for x := min; x <= max; x += 10 {
			t = append(t, plot.Tick{
				Value: x,
				Label: fmt.Sprintf("%.1f", x),
			})
		}
		return t
	})
}

// CreateBitratePlot creates a bitrate plot from given FrameStat slice.
func CreateBitratePlot(frameStats []FrameStat) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Time (seconds)"
	p.Y.Label.Text = "Kbps"

	if len(frameStats) == 0 {
		return p, errors.New("CreateBitratePlot() no frame statistics")
	}

	videoDuration := getDuration(frameStats)
	if videoDuration <= 0 {
		return p, errors.New("CreateBitratePlot() unexpected video duration")
	}

	// Bucket count should be same as video duration in seconds.
	bSize := uint64(math.Floor(videoDuration)) + 1
	// Create buckets for all types of interesting frames.
	allFrameBuckets := make([]float64, bSize)
	iFrameBuckets := make([]float64, bSize)
	pFrameBuckets := make([]float64, bSize)

	// Aggregate frame sizes into 1 second buckets.
	minPts := frameStats[0].PtsTime
	for _, f := range frameStats {
		// Use normalized time e.g. deal with negative PTS.
		curSecond := uint64(math.Floor(f.PtsTime - minPts))
		// Convert frame size to Kbits.
		s := float64(f.Size*8) / 1000
		allFrameBuckets[curSecond] += s
		if f.KeyFrame {
			iFrameBuckets[curSecond] += s
		} else {
			pFrameBuckets[curSecond] += s
		}
	}

	// Prepare XYers of all frame types for plotting.
	allValues := make(plotter.XYs, len(allFrameBuckets))
	iValues := make(plotter.XYs, len(iFrameBuckets))
	pValues := make(plotter.XYs, len(pFrameBuckets))

	for i, v := range allFrameBuckets {
		allValues[i].X = float64(i)
		allValues[i].Y = v
	}

	for i, v := range iFrameBuckets {
		iValues[i].X = float64(i)
		iValues[i].Y = v
	}

	for i, v := range pFrameBuckets {
		pValues[i].X = float64(i)
		pValues[i].Y = v
	}

	// Now create all lines to be placed on plot.
	allLine, err := plotter.NewLine(allValues)
	if err != nil {
		return p, fmt.Errorf("CreateBitratePlot() creating new Line: %w", err)
	}
	allLine.Color = ColorPalette[1]
	allLine.StepStyle = plotter.PostStep
	allLine.FillColor = ColorPalette[0]

	iLine, err := plotter.NewLine(iValues)
	if err != nil {
		return p, fmt.Errorf("CreateBitratePlot() creating new I-frame Line: %w", err)
	}
	iLine.Color = ColorPalette[3]
	iLine.StepStyle = plotter.PostStep

	pLine, err := plotter.NewLine(pValues)
	if err != nil {
		return p, fmt.Errorf("CreateBitratePlot() creating new P-frame Line: %w", err)
	}
	pLine.Color = ColorPalette[5]
	pLine.StepStyle = plotter.PostStep

	// Mean and max/peak bitrate value as horizontal line.
	mean := stat.Mean(allFrameBuckets, nil)
	max := floats.Max(allFrameBuckets)
	meanLine, meanLabel := horizontalLineWithLabel(mean, 0, float64(bSize), fmt.Sprintf("mean=%.2f", mean))
	maxLine, maxLabel := horizontalLineWithLabel(max, 0, float64(bSize), fmt.Sprintf("max=%.2f", max))

	// Tweak x and y axis limits.
	p.Y.Min = 0
	p.Y.Max = max * 1.1
	p.X.Tick.Marker = secondsTicker()

	p.Add(allLine, iLine, pLine, meanLine, meanLabel, maxLine, maxLabel, plotter.NewGrid())

	p.Legend.Add("Total", allLine)
	p.Legend.Add("I-frame", iLine)
	p.Legend.Add("P-frame", pLine)
	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// CreateFrameSizePlot creates a per-frame size plot from given FrameStat slice.
func CreateFrameSizePlot(frameStats []FrameStat) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Time (seconds)"
	p.Y.Label.Text = "KB"

	if len(frameStats) == 0 {
		return p, errors.New("CreateFrameSizePlot() no frame statistics")
	}

	videoDuration := getDuration(frameStats)
	if videoDuration <= 0 {
		return p, errors.New("CreateFrameSizePlot() unexpected video duration")
	}

	// Prepare XYers of all frame types for plotting.
	var keyFrameSizes plotter.XYs
	var pFrameSizes plotter.XYs

	minPts := frameStats[0].PtsTime
	for _, v := range frameStats {
		xy := plotter.XY{
			// Use normalized time e.g. deal with negative PTS.
			X: float64(v.PtsTime - minPts),
			Y: float64(v.Size) / 1000,
		}

		if v.KeyFrame {
			keyFrameSizes = append(keyFrameSizes, xy)
		} else {
			pFrameSizes = append(pFrameSizes, xy)
		}
	}

	keyFrameLine, err := plotter.NewLine(keyFrameSizes)
	if err != nil {
		return p, fmt.Errorf("CreateFrameSizePlot() creating new I-frame Line: %w", err)
	}
	keyFrameLine.Color = ColorPalette[3]

	pFrameLine, err := plotter.NewLine(pFrameSizes)
	if err != nil {
		return p, fmt.Errorf("CreateFrameSizePlot() creating new P-frame Line: %w", err)
	}
	pFrameLine.Color = ColorPalette[5]

	p.Y.Min = 0
	p.X.Tick.Marker = secondsTicker()

	p.Add(keyFrameLine, pFrameLine, plotter.NewGrid())

	return p, nil
}

// MultiPlotBitrate will create and save to file bitrate multi plot.
//
// Resulting plot will include the bitrate plot aggregated into 1 second buckets
// and frame size plot all in one canvas.
func MultiPlotBitrate(ctx context.Context, videoFile, plotFile, ffprobePath string) error {
	if _, err := os.Stat(videoFile); os.IsNotExist(err) {
		return fmt.Errorf("MultiPlotBitrate() video file should exist: %w", err)
	}
	base := path.Base(videoFile)

	fs, err := GetFrameStats(ctx, videoFile, ffprobePath)
	if err != nil {
		return fmt.Errorf("MultiPlotBitrate() failed getting FrameStats: %w", err)
	}

	plots := make([]*plot.Plot, 2)

	plots[0], err = CreateBitratePlot(fs)
	if err != nil {
		return fmt.Errorf("MultiPlotBitrate() error creating bitrate plot: %w", err)
	}

	plots[1], err = CreateFrameSizePlot(fs)
	if err != nil {
		return fmt.Errorf("MultiPlotBitrate() error creating frame size plot: %w", err)
	}

	// Tweak titles and labels to have better layout and make plots less busy.
	plots[0].Title.Text = base + "\n\nBitrate"
	plots[0].X.Label.Text = ""
	plots[1].Title.Text = "Frame sizes"

	return saveStackedPlots(plots, plotFile)
}
