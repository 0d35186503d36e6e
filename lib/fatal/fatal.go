// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fatal

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/crashtrace/lib/dump"
	"github.com/bureau-foundation/crashtrace/lib/stack"
)

// fatalSignal pairs a signal with its header line. Headers are
// precomputed so the delivery path performs no string concatenation.
type fatalSignal struct {
	signal syscall.Signal
	reason string
	header string
}

// SIGSEGV is listed last: if resolving a delivered signal ever fails,
// the segfault entry is the fallback.
var fatalSignals = [...]fatalSignal{
	{unix.SIGBUS, "Bus error", "Fatal Python error: Bus error"},
	{unix.SIGILL, "Illegal instruction", "Fatal Python error: Illegal instruction"},
	{unix.SIGFPE, "Floating point exception", "Fatal Python error: Floating point exception"},
	{unix.SIGABRT, "Aborted", "Fatal Python error: Aborted"},
	{unix.SIGSEGV, "Segmentation fault", "Fatal Python error: Segmentation fault"},
}

// state is one enable configuration. Immutable after publication;
// replaced wholesale by Enable, cleared by Disable.
type state struct {
	source     stack.Source
	fd         int
	allThreads bool
	header     string
}

// Options configures Enable.
type Options struct {
	// Output is the file descriptor dumps are written to. Zero means
	// standard error.
	Output int

	// AllThreads selects the all-thread dump form instead of the
	// current thread only.
	AllThreads bool

	// Header, when non-empty, is written as an additional line after
	// the fatal error line.
	Header string
}

var (
	// current is nil while disabled. Read (never written) from the
	// delivery path.
	current atomic.Pointer[state]

	// mu serializes Enable and Disable. Never touched at delivery.
	mu sync.Mutex

	signals        chan os.Signal
	dispatcherOnce sync.Once
)

// Enable installs the fatal signal handlers and arms dumping to the
// configured descriptor. Calling Enable while already enabled replaces
// the configuration without reinstalling handlers. The source must be
// ready to produce traces without allocation from this point on.
func Enable(source stack.Source, options Options) error {
	if source == nil {
		return fmt.Errorf("fatal: enable requires a frame source")
	}

	mu.Lock()
	defer mu.Unlock()

	fd := options.Output
	if fd == 0 {
		fd = unix.Stderr
	}
	wasEnabled := current.Load() != nil
	current.Store(&state{
		source:     source,
		fd:         fd,
		allThreads: options.AllThreads,
		header:     options.Header,
	})

	if !wasEnabled {
		dispatcherOnce.Do(func() {
			signals = make(chan os.Signal, len(fatalSignals))
			go dispatch()
		})
		for _, entry := range fatalSignals {
			signal.Notify(signals, entry.signal)
		}
	}
	return nil
}

// Disable removes the fatal signal handlers and clears the enable
// state. The prior dispositions come back on their own once our
// registration is gone. Calling Disable while disabled is a no-op.
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if current.Load() == nil {
		return
	}
	signal.Stop(signals)
	current.Store(nil)
}

// Enabled reports whether the fatal handler is armed. Pure read.
func Enabled() bool {
	return current.Load() != nil
}

// Error reports a fatal condition detected by the host runtime itself
// rather than by a signal: it writes "Fatal Python error: <reason>"
// and, when enabled, the call traces, then aborts the process. This
// runs on the normal execution path, so the reason may be built
// dynamically. Error does not return.
func Error(reason string) {
	st := current.Load()
	fd := unix.Stderr
	if st != nil {
		fd = st.fd
	}
	dump.Line(fd, "Fatal Python error: "+reason)
	if st != nil {
		if st.header != "" {
			dump.Line(fd, st.header)
		}
		dump.Line(fd, "")
		writeTraces(st)
	}
	signal.Reset(unix.SIGABRT)
	restoreDefault(unix.SIGABRT)
	unix.Kill(unix.Getpid(), unix.SIGABRT)
}

// dispatch consumes delivered fatal signals for the life of the
// process. Started once, on first Enable.
func dispatch() {
	for received := range signals {
		sig, ok := received.(syscall.Signal)
		if !ok {
			continue
		}
		handleFatal(sig)
	}
}

// handleFatal is the delivery path: header, traces, re-raise. It only
// reads the published state and writes bytes; nothing here allocates
// or locks.
func handleFatal(sig syscall.Signal) {
	st := current.Load()
	if st == nil {
		// Disabled after delivery was already in flight; drop it.
		return
	}

	entry := &fatalSignals[len(fatalSignals)-1]
	for i := range fatalSignals {
		if fatalSignals[i].signal == sig {
			entry = &fatalSignals[i]
			break
		}
	}

	dump.Line(st.fd, entry.header)
	if st.header != "" {
		dump.Line(st.fd, st.header)
	}
	dump.Line(st.fd, "")
	writeTraces(st)

	// Re-raise so the process terminates with the conventional status
	// for this signal. Reset detaches our channel, preventing a
	// handling loop; the kernel disposition must be restored separately
	// because the runtime keeps its own handler for this signal set.
	signal.Reset(sig)
	restoreDefault(sig)
	unix.Kill(unix.Getpid(), sig)
}

func writeTraces(st *state) {
	if st.allThreads {
		dump.Threads(st.fd, st.source.Threads())
		return
	}
	trace, ok := st.source.CurrentTrace()
	if !ok {
		return
	}
	dump.Traceback(st.fd, trace)
}
