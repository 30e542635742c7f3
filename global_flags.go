// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/evolution-gaming/vqmeter/internal/logging"
)

// globalFlags are shared by all subcommands that load configuration or log.
type globalFlags struct {
	ConfFile string
	Debug    bool
	Quiet    bool
}

func (g *globalFlags) Register(fs *flag.FlagSet) {
	fs.BoolVar(&g.Debug, "debug", false, "Enable debug logging (optional)")
	fs.BoolVar(&g.Quiet, "quiet", false, "Suppress info logging, warnings remain (optional)")
	fs.StringVar(&g.ConfFile, "conf", "", "Application configuration file path (optional)")
}

// applyLogging adjusts log levels according to parsed flags. Debug wins over
// quiet.
func (g *globalFlags) applyLogging() {
	if g.Quiet {
		logging.DisableInfoLogger()
	}
	if g.Debug {
		logging.EnableDebugLogger()
	}
}
