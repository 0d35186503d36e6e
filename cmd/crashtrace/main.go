// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// crashtrace is the development and verification binary for the
// crashtrace library. It arms the engines against the Go runtime's
// goroutines and then, on request, does terrible things to itself:
//
//	crashtrace selftest segfault    die by SIGSEGV with a dump
//	crashtrace selftest abort       die by SIGABRT with a dump
//	crashtrace hang --timeout 5s    block until the watchdog dumps
//	crashtrace dump                 write an explicit dump and exit
//
// The selftest subcommand exists so operators can verify, on a real
// target system, that fatal dumps reach their configured destination
// before relying on them in an incident.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/crashtrace/lib/config"
	"github.com/bureau-foundation/crashtrace/lib/process"
	"github.com/bureau-foundation/crashtrace/lib/stack"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var outputPath string
	var reportPath string
	var allThreads bool
	var timeout time.Duration
	var repeat bool

	flagSet := pflag.NewFlagSet("crashtrace", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "load activation config from this YAML file")
	flagSet.StringVar(&outputPath, "output", "", "append dumps to this file instead of stderr")
	flagSet.StringVar(&reportPath, "report", "", "also write a binary crash report to this file (dump subcommand)")
	flagSet.BoolVar(&allThreads, "all-threads", false, "dump every goroutine, not just the current one")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "watchdog timeout (hang subcommand)")
	flagSet.BoolVar(&repeat, "repeat", false, "keep dumping every timeout interval (hang subcommand)")
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	source := stack.NewRuntime(0)

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cleanup, err := config.Apply(cfg, source, logger)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printUsage(flagSet)
		return fmt.Errorf("a subcommand is required")
	}

	options := commandOptions{
		outputPath: outputPath,
		reportPath: reportPath,
		allThreads: allThreads,
		timeout:    timeout,
		repeat:     repeat,
	}

	switch args[0] {
	case "selftest":
		if len(args) != 2 {
			return fmt.Errorf("usage: crashtrace selftest {segfault|abort|fpe|bus|ill|fatal-error}")
		}
		return runSelftest(args[1], source, options, logger)
	case "hang":
		return runHang(source, options, logger)
	case "dump":
		return runDump(source, options)
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `usage: crashtrace [flags] <subcommand>

subcommands:
  selftest <fault>   enable the fatal handler, then raise the fault
                     (segfault, abort, fpe, bus, ill, fatal-error)
  hang               arm the watchdog, then block forever
  dump               write an explicit dump of the current process

flags:
%s`, flagSet.FlagUsages())
}
