// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vqmeter tool's models subcommand implementation.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/evolution-gaming/vqmeter/internal/logging"
	"github.com/evolution-gaming/vqmeter/internal/tools"
)

// Make sure ModelsApp implements Commander interface.
var _ Commander = (*ModelsApp)(nil)

// ModelsApp is models subcommand context that implements Commander interface.
type ModelsApp struct {
	// Model list output destination
	out io.Writer
	// FlagSet instance
	fs *flag.FlagSet
	// Global flags
	gf globalFlags
	// Additional model directories
	flDirs inputFiles
}

// CreateModelsCommand will create ModelsApp instance with initialized FlagSet.
func CreateModelsCommand() *ModelsApp {
	longHelp := `Subcommand "models" will list VMAF model files discoverable on this host.
Models are searched for in known system locations, in configured model
directory and in directories given via -dir flag. Listed model files can be
referenced from compute subcommand's -vmaf-model flag.

Examples:

  vqmeter models
  vqmeter models -dir /opt/vmaf/model`

	app := &ModelsApp{
		fs:  flag.NewFlagSet("models", flag.ContinueOnError),
		gf:  globalFlags{},
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.Var(&app.flDirs, "dir", "Additional model directory, use multiple times for multiple directories")

	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

func (a *ModelsApp) Name() string {
	return a.fs.Name()
}

func (a *ModelsApp) Help() {
	a.fs.Usage()
}

// Run is main entry point into ModelsApp execution.
func (a *ModelsApp) Run(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	a.gf.applyLogging()

	// Load application configuration. Unlike in other subcommands
	// configuration validity is not enforced, model listing only needs the
	// configured model directory.
	cfg, err := LoadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	extraDirs := make([]string, 0, len(a.flDirs)+1)
	extraDirs = append(extraDirs, a.flDirs...)
	if d := cfg.VMAFModelDir.Value(); d != "" {
		extraDirs = append(extraDirs, d)
	}

	models := tools.ListVMAFModels(tools.VMAFModelDirs(extraDirs...)...)
	if len(models) == 0 {
		logging.Infof("No VMAF model files found")
		return nil
	}
	for _, m := range models {
		fmt.Fprintln(a.out, m)
	}

	return nil
}
