// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fatal

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/crashtrace/lib/stack"
)

// The crash paths terminate the process, so they run in a re-executed
// copy of the test binary. TestMain diverts the child into the helper
// before any tests run.
const (
	helperModeEnv     = "CRASHTRACE_FATAL_HELPER"
	helperOutputEnv   = "CRASHTRACE_FATAL_OUTPUT"
	helperSignalEnv   = "CRASHTRACE_FATAL_SIGNAL"
	helperHeaderEnv   = "CRASHTRACE_FATAL_HEADER"
	helperThreadEnv   = "CRASHTRACE_FATAL_ALLTHREADS"
	helperReenableEnv = "CRASHTRACE_FATAL_REENABLE"
)

func TestMain(m *testing.M) {
	switch os.Getenv(helperModeEnv) {
	case "":
		os.Exit(m.Run())
	case "signal":
		runSignalHelper()
	case "error":
		runErrorHelper()
	case "disable":
		runDisableHelper()
	}
	os.Exit(2)
}

func helperSource() *stack.Fixed {
	return stack.NewFixed(
		stack.Trace{
			ID:      0x2a,
			Current: true,
			Frames: []stack.Frame{
				{File: "handler.py", Function: "process", Line: 33},
				{File: "main.py", Function: "main", Line: 7},
			},
		},
		stack.Trace{
			ID:     0x99,
			Frames: []stack.Frame{{File: "worker.py", Function: "wait", Line: 51}},
		},
	)
}

// helperFile keeps the dump descriptor reachable so the finalizer
// cannot close it while the crash is in flight.
var helperFile *os.File

func helperEnable() error {
	file, err := os.Create(os.Getenv(helperOutputEnv))
	if err != nil {
		return err
	}
	helperFile = file
	return Enable(helperSource(), Options{
		Output:     int(file.Fd()),
		AllThreads: os.Getenv(helperThreadEnv) == "1",
		Header:     os.Getenv(helperHeaderEnv),
	})
}

func runSignalHelper() {
	if err := helperEnable(); err != nil {
		os.Exit(2)
	}
	signum, err := strconv.Atoi(os.Getenv(helperSignalEnv))
	if err != nil {
		os.Exit(2)
	}
	unix.Kill(unix.Getpid(), syscall.Signal(signum))
	// The dump and re-raise happen on the dispatcher goroutine; the
	// process should be dead long before this deadline.
	time.Sleep(10 * time.Second)
	os.Exit(3)
}

func runErrorHelper() {
	if err := helperEnable(); err != nil {
		os.Exit(2)
	}
	Error("deadlocked interpreter lock")
	os.Exit(3)
}

// runDisableHelper enables and then disables the handler before
// raising SIGSEGV, so the dump file must stay empty. With the
// re-enable variable set it enables a second time first, and the dump
// must appear again.
func runDisableHelper() {
	if err := helperEnable(); err != nil {
		os.Exit(2)
	}
	Disable()
	if os.Getenv(helperReenableEnv) == "1" {
		err := Enable(helperSource(), Options{Output: int(helperFile.Fd())})
		if err != nil {
			os.Exit(2)
		}
	}
	unix.Kill(unix.Getpid(), unix.SIGSEGV)
	time.Sleep(10 * time.Second)
	os.Exit(3)
}

// runHelper re-executes the test binary in the given helper mode and
// returns the dump file contents and the wait status.
func runHelper(t *testing.T, mode string, extraEnv ...string) (string, syscall.WaitStatus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crash.txt")

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(),
		helperModeEnv+"="+mode,
		helperOutputEnv+"="+path,
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("helper process should die abnormally, got err = %v", err)
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		t.Fatalf("unexpected wait status type %T", exitErr.Sys())
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("reading dump file: %v", readErr)
	}
	return string(data), status
}

func TestCrashBySignal(t *testing.T) {
	cases := []struct {
		name   string
		signal syscall.Signal
		reason string
	}{
		{"segv", unix.SIGSEGV, "Segmentation fault"},
		{"abort", unix.SIGABRT, "Aborted"},
		{"fpe", unix.SIGFPE, "Floating point exception"},
		{"bus", unix.SIGBUS, "Bus error"},
		{"ill", unix.SIGILL, "Illegal instruction"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, status := runHelper(t, "signal",
				helperSignalEnv+"="+strconv.Itoa(int(c.signal)))

			if !status.Signaled() || status.Signal() != c.signal {
				t.Errorf("helper wait status = %v, want death by %v", status, c.signal)
			}
			want := "Fatal Python error: " + c.reason + "\n" +
				"\n" +
				"Stack (most recent call first):\n" +
				"  File \"handler.py\", line 33 in process\n" +
				"  File \"main.py\", line 7 in main\n"
			if got != want {
				t.Errorf("dump:\n%q\nwant:\n%q", got, want)
			}
		})
	}
}

func TestCrashAllThreads(t *testing.T) {
	got, status := runHelper(t, "signal",
		helperSignalEnv+"="+strconv.Itoa(int(unix.SIGSEGV)),
		helperThreadEnv+"=1")

	if !status.Signaled() || status.Signal() != unix.SIGSEGV {
		t.Errorf("helper wait status = %v, want death by SIGSEGV", status)
	}
	want := "Fatal Python error: Segmentation fault\n" +
		"\n" +
		"Thread 0x0000000000000099 (most recent call first):\n" +
		"  File \"worker.py\", line 51 in wait\n" +
		"\n" +
		"Current thread 0x000000000000002a (most recent call first):\n" +
		"  File \"handler.py\", line 33 in process\n" +
		"  File \"main.py\", line 7 in main\n"
	if got != want {
		t.Errorf("dump:\n%q\nwant:\n%q", got, want)
	}
}

func TestCrashCustomHeader(t *testing.T) {
	got, _ := runHelper(t, "signal",
		helperSignalEnv+"="+strconv.Itoa(int(unix.SIGSEGV)),
		helperHeaderEnv+"=build 7f3a, request 12")

	want := "Fatal Python error: Segmentation fault\n" +
		"build 7f3a, request 12\n" +
		"\n" +
		"Stack (most recent call first):\n" +
		"  File \"handler.py\", line 33 in process\n" +
		"  File \"main.py\", line 7 in main\n"
	if got != want {
		t.Errorf("dump:\n%q\nwant:\n%q", got, want)
	}
}

func TestErrorAborts(t *testing.T) {
	got, status := runHelper(t, "error")

	if !status.Signaled() || status.Signal() != unix.SIGABRT {
		t.Errorf("helper wait status = %v, want death by SIGABRT", status)
	}
	want := "Fatal Python error: deadlocked interpreter lock\n" +
		"\n" +
		"Stack (most recent call first):\n" +
		"  File \"handler.py\", line 33 in process\n" +
		"  File \"main.py\", line 7 in main\n"
	if got != want {
		t.Errorf("dump:\n%q\nwant:\n%q", got, want)
	}
}

func TestDisablePreventsDumps(t *testing.T) {
	got, status := runHelper(t, "disable")

	if len(got) != 0 {
		t.Errorf("disabled handler still dumped:\n%s", got)
	}
	if status.Signaled() && status.Signal() == unix.SIGABRT {
		// The disabled child dies however the runtime disposes of the
		// raw signal; it must not be our abort path.
		t.Errorf("disabled child died by SIGABRT, suggesting the handler ran")
	}
}

func TestReenableRestoresDumps(t *testing.T) {
	got, status := runHelper(t, "disable", helperReenableEnv+"=1")

	if !status.Signaled() || status.Signal() != unix.SIGSEGV {
		t.Errorf("helper wait status = %v, want death by SIGSEGV", status)
	}
	want := "Fatal Python error: Segmentation fault\n" +
		"\n" +
		"Stack (most recent call first):\n" +
		"  File \"handler.py\", line 33 in process\n" +
		"  File \"main.py\", line 7 in main\n"
	if got != want {
		t.Errorf("dump after re-enable:\n%q\nwant:\n%q", got, want)
	}
}

func TestEnableRequiresSource(t *testing.T) {
	if err := Enable(nil, Options{}); err == nil {
		t.Error("Enable with a nil source should fail")
	}
	if Enabled() {
		t.Error("failed Enable must not arm the handler")
	}
}

func TestEnableDisableState(t *testing.T) {
	defer Disable()

	if Enabled() {
		t.Fatal("handler should start disabled")
	}
	if err := Enable(helperSource(), Options{}); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !Enabled() {
		t.Error("Enabled should report true after Enable")
	}

	// Replacing the configuration keeps the handler armed.
	if err := Enable(helperSource(), Options{AllThreads: true}); err != nil {
		t.Fatalf("second Enable: %v", err)
	}
	if !Enabled() {
		t.Error("Enabled should stay true across re-Enable")
	}

	Disable()
	if Enabled() {
		t.Error("Enabled should report false after Disable")
	}
	Disable()
	if Enabled() {
		t.Error("repeated Disable should stay disabled")
	}
}
