// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/crashtrace/lib/dump"
	"github.com/bureau-foundation/crashtrace/lib/fatal"
	"github.com/bureau-foundation/crashtrace/lib/report"
	"github.com/bureau-foundation/crashtrace/lib/stack"
	"github.com/bureau-foundation/crashtrace/lib/watchdog"
)

type commandOptions struct {
	outputPath string
	reportPath string
	allThreads bool
	timeout    time.Duration
	repeat     bool
}

// outputFile holds the --output file for the life of the process. The
// descriptor is handed to the engines as a bare int; without this
// reference the finalizer could close it under an asynchronous dump.
var outputFile *os.File

// openOutput resolves the dump descriptor: the --output file in append
// mode, or stderr. The file stays open for the life of the process;
// the dump path must never have to open anything.
func openOutput(path string) (int, error) {
	if path == "" {
		return unix.Stderr, nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return 0, fmt.Errorf("opening output %s: %w", path, err)
	}
	outputFile = file
	return int(file.Fd()), nil
}

// selftestFaults maps fault names to the signal raised. The faults are
// raised with kill(2) rather than by executing a faulting instruction:
// a genuine nil dereference in our own Go frames would be converted to
// a panic by the Go runtime before the handler could see it.
var selftestFaults = map[string]syscall.Signal{
	"segfault": unix.SIGSEGV,
	"abort":    unix.SIGABRT,
	"fpe":      unix.SIGFPE,
	"bus":      unix.SIGBUS,
	"ill":      unix.SIGILL,
}

// runSelftest enables the fatal handler and raises the requested
// fault. On success it never returns: the handler dumps and the
// process dies by the re-raised signal.
func runSelftest(fault string, source stack.Source, options commandOptions, logger *slog.Logger) error {
	fd, err := openOutput(options.outputPath)
	if err != nil {
		return err
	}
	if err := fatal.Enable(source, fatal.Options{
		Output:     fd,
		AllThreads: options.allThreads,
	}); err != nil {
		return err
	}

	if fault == "fatal-error" {
		logger.Info("reporting explicit fatal error")
		fatal.Error("deliberate selftest failure")
		// Error aborts; not reached.
	}

	signum, ok := selftestFaults[fault]
	if !ok {
		return fmt.Errorf("unknown fault %q", fault)
	}
	logger.Info("raising fault", "fault", fault, "signal", signum)
	if err := unix.Kill(unix.Getpid(), signum); err != nil {
		return fmt.Errorf("raising %v: %w", signum, err)
	}

	// The dump and re-raise happen on the dispatcher; block until the
	// process dies.
	select {}
}

// runHang arms the watchdog and blocks forever, standing in for a
// deadlocked process.
func runHang(source stack.Source, options commandOptions, logger *slog.Logger) error {
	fd, err := openOutput(options.outputPath)
	if err != nil {
		return err
	}
	if err := watchdog.Arm(options.timeout, source, watchdog.Options{
		Repeat:     options.repeat,
		Output:     fd,
		AllThreads: options.allThreads,
	}); err != nil {
		return err
	}
	logger.Info("watchdog armed, blocking", "timeout", options.timeout, "repeat", options.repeat)
	select {}
}

// runDump writes an explicit dump of the current process and,
// optionally, a binary crash report.
func runDump(source stack.Source, options commandOptions) error {
	fd, err := openOutput(options.outputPath)
	if err != nil {
		return err
	}
	if options.allThreads {
		dump.Threads(fd, source.Threads())
	} else {
		trace, ok := source.CurrentTrace()
		if !ok {
			return fmt.Errorf("no trace available for the current goroutine")
		}
		dump.Traceback(fd, trace)
	}

	if options.reportPath != "" {
		captured := report.Capture(source, "explicit dump")
		if err := report.Write(options.reportPath, captured); err != nil {
			return err
		}
	}
	return nil
}
