// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Main entrypoint for vqmeter application

package main

import (
	"fmt"
	"os"

	"github.com/evolution-gaming/vqmeter/internal/logging"
)

// root represents top level of vqmeter command, including dispatching to subcommands.
func root(args []string) error {
	usage := `Vqmeter - video quality measurement tool

Usage:

    vqmeter <command> [arguments] [-h|-help]

The commands are:

    compute     compute quality metrics for distorted videos against a reference
    plot        create per-frame metric plots from a compute report
    bitrate     create bitrate plot of given video file
    models      list VMAF model files discoverable on this host
    dump-conf   output actual application configuration
    version     print vqmeter version and exit

Use "vqmeter <command> -h|-help" for more information about command.`

	if len(args) < 1 {
		fmt.Println(usage)
		return &AppError{msg: "please, specify command", exitCode: 2}
	}

	switch args[0] {
	case "compute":
		return CreateComputeCommand().Run(args[1:])
	case "plot":
		return CreatePlotCommand().Run(args[1:])
	case "bitrate":
		return CreateBitrateCommand().Run(args[1:])
	case "models":
		return CreateModelsCommand().Run(args[1:])
	case "dump-conf", "dump":
		return CreateDumpConfCommand().Run(args[1:])
	case "version":
		printVersion()
		return nil
	case "-h", "-help", "--help", "?":
		fmt.Println(usage)
		return &AppError{
			exitCode: 2,
		}
	default:
		// No commands were matched at this point, so bail out with default usage message.
		fmt.Println(usage)
		return &AppError{
			msg:      "unknown command/flag",
			exitCode: 2,
		}
	}
}

func main() {
	// Enable info and warn loggers by default and early enough.
	logging.EnableInfoLogger()
	logging.EnableWarnLogger()

	if err := root(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		switch e := err.(type) {
		case *AppError:
			os.Exit(e.ExitCode())
		default:
			os.Exit(1)
		}
	}
	os.Exit(0)
}
