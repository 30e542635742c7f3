// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vqmeter tool's plot subcommand implementation.

package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/evolution-gaming/vqmeter/internal/analysis"
	"github.com/evolution-gaming/vqmeter/internal/logging"
	"github.com/evolution-gaming/vqmeter/internal/report"
)

// Make sure PlotApp implements Commander interface.
var _ Commander = (*PlotApp)(nil)

// PlotApp is plot subcommand context that implements Commander interface.
type PlotApp struct {
	// FlagSet instance
	fs *flag.FlagSet
	// Report file produced by compute subcommand
	flInFile string
	// Submetric to plot
	flMetric string
	// Plot output file
	flOutFile string
}

// CreatePlotCommand will create PlotApp instance with initialized FlagSet.
func CreatePlotCommand() *PlotApp {
	longHelp := `Subcommand "plot" will create a multi-plot for given submetric from a JSON
report produced by "compute" subcommand. Multi-plot consists of per-frame
values, value histogram and empirical CDF subplots.

For reports covering multiple distorted files one plot per file is created
and output file names are derived from distorted file names.

Examples:

  vqmeter plot -i report.json -m psnr_avg
  vqmeter plot -i report.json -m vmaf -o vmaf.png`

	app := &PlotApp{
		fs: flag.NewFlagSet("plot", flag.ContinueOnError),
	}
	app.fs.StringVar(&app.flInFile, "i", "", "Report file from compute subcommand (mandatory)")
	app.fs.StringVar(&app.flMetric, "m", "", "Submetric to plot, e.g. psnr_avg or vmaf (mandatory)")
	app.fs.StringVar(&app.flOutFile, "o", "", "File to save plot to (single result reports only)")

	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

func (a *PlotApp) Name() string {
	return a.fs.Name()
}

func (a *PlotApp) Help() {
	a.fs.Usage()
}

// init will do App state initialization.
func (a *PlotApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	// If after flag parsing report file is not defined - error out.
	if a.flInFile == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	// If after flag parsing submetric is not defined - error out.
	if a.flMetric == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -m is missing",
		}
	}

	// Report file should exist.
	if _, err := os.Stat(a.flInFile); err != nil {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("report file does not exist? %s", err),
		}
	}

	return nil
}

// Run is main entry point into PlotApp execution.
func (a *PlotApp) Run(args []string) error {
	if err := a.init(args); err != nil {
		return err
	}

	fd, err := os.Open(a.flInFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	docs, err := report.Load(fd)
	fd.Close()
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	if len(docs) > 1 && a.flOutFile != "" {
		return &AppError{
			exitCode: 1,
			msg:      "option -o cannot be used with multi-result reports",
		}
	}

	for i := range docs {
		doc := &docs[i]
		frames, values := doc.FieldSeries(a.flMetric)
		if len(values) == 0 {
			return &AppError{
				exitCode: 1,
				msg: fmt.Sprintf("no %q series in report for %s, available: %s",
					a.flMetric, doc.DistFile, strings.Join(doc.FieldNames(), ", ")),
			}
		}

		base := path.Base(doc.DistFile)
		base = strings.TrimSuffix(base, path.Ext(base))
		outFile := a.flOutFile
		if outFile == "" {
			outFile = fmt.Sprintf("%s_%s.png", base, a.flMetric)
		}

		if err := analysis.MultiPlotMetric(frames, values, a.flMetric, base, outFile); err != nil {
			return &AppError{
				exitCode: 1,
				msg:      fmt.Sprintf("failed creating %s multiplot: %s", a.flMetric, err),
			}
		}
		logging.Infof("%s multi-plot done: %s", a.flMetric, outFile)
	}

	return nil
}
