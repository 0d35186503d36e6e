// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/crashtrace/lib/clock"
	"github.com/bureau-foundation/crashtrace/lib/dump"
	"github.com/bureau-foundation/crashtrace/lib/stack"
)

// Options configures Arm.
type Options struct {
	// Repeat keeps the watchdog armed after each expiry, dumping once
	// per interval until cancelled.
	Repeat bool

	// Output is the file descriptor dumps are written to. Zero means
	// standard error.
	Output int

	// AllThreads selects the all-thread dump form.
	AllThreads bool

	// Header replaces the default "Timeout (H:MM:SS)!" line.
	Header string
}

// armedState is one arming. Immutable after publication; the firing
// path only reads it.
type armedState struct {
	generation uint64
	timeout    time.Duration
	repeat     bool
	source     stack.Source
	fd         int
	allThreads bool

	// header is fully formatted at arm time so expiry writes bytes
	// and nothing else.
	header string
}

// Watchdog is a single re-armable dump timer. The zero value is not
// usable; construct with New. Arm, Cancel, and Armed may be called
// from any goroutine.
type Watchdog struct {
	clock clock.Clock

	// mu serializes Arm and Cancel (normal execution only; the firing
	// path never locks).
	mu sync.Mutex

	// generation invalidates in-flight expiries: each Arm and Cancel
	// bumps it, and a firing timer whose generation no longer matches
	// does nothing.
	generation atomic.Uint64

	armed atomic.Pointer[armedState]
	timer atomic.Pointer[clock.Timer]
}

// New returns a Watchdog driven by the given clock.
func New(clk clock.Clock) *Watchdog {
	return &Watchdog{clock: clk}
}

// Arm schedules a dump after timeout unless cancelled first. An
// already-armed watchdog is replaced: the previous configuration is
// discarded without emitting anything. The timeout must be positive.
func (w *Watchdog) Arm(timeout time.Duration, source stack.Source, options Options) error {
	if timeout <= 0 {
		return fmt.Errorf("watchdog: timeout must be positive, got %v", timeout)
	}
	if source == nil {
		return fmt.Errorf("watchdog: arm requires a frame source")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	generation := w.generation.Add(1)
	if previous := w.timer.Swap(nil); previous != nil {
		previous.Stop()
	}

	fd := options.Output
	if fd == 0 {
		fd = unix.Stderr
	}
	header := options.Header
	if header == "" {
		header = formatTimeout(timeout)
	}

	state := &armedState{
		generation: generation,
		timeout:    timeout,
		repeat:     options.Repeat,
		source:     source,
		fd:         fd,
		allThreads: options.AllThreads,
		header:     header,
	}
	w.armed.Store(state)
	w.timer.Store(w.clock.AfterFunc(timeout, func() { w.fire(state) }))
	return nil
}

// Cancel disarms the watchdog. A no-op when nothing is armed. An
// expiry already in flight when Cancel is called may still produce one
// dump; that is the documented race tolerance, not an error.
func (w *Watchdog) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.generation.Add(1)
	if previous := w.timer.Swap(nil); previous != nil {
		previous.Stop()
	}
	w.armed.Store(nil)
}

// Armed reports whether the watchdog is currently armed. Pure read.
func (w *Watchdog) Armed() bool {
	return w.armed.Load() != nil
}

// fire runs on expiry. It validates that its arming is still current,
// dumps, and either re-arms (Repeat) or clears the armed state. No
// locks, no allocation: re-arming reuses the published state.
func (w *Watchdog) fire(state *armedState) {
	if w.generation.Load() != state.generation {
		// Cancelled or replaced while this expiry was in flight.
		return
	}

	dump.Line(state.fd, state.header)
	if state.allThreads {
		dump.Threads(state.fd, state.source.Threads())
	} else {
		if trace, ok := state.source.CurrentTrace(); ok {
			dump.Traceback(state.fd, trace)
		}
	}

	if state.repeat {
		w.timer.Store(w.clock.AfterFunc(state.timeout, func() { w.fire(state) }))
		return
	}
	// One-shot: clear the armed flag unless a newer Arm already
	// published its own state.
	w.armed.CompareAndSwap(state, nil)
}

// formatTimeout renders the default expiry header, "Timeout (H:MM:SS)!",
// with microseconds appended when the timeout is not a whole second.
func formatTimeout(timeout time.Duration) string {
	totalMicroseconds := timeout.Microseconds()
	seconds := totalMicroseconds / 1e6
	microseconds := totalMicroseconds % 1e6
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	seconds = seconds % 60

	if microseconds != 0 {
		return fmt.Sprintf("Timeout (%d:%02d:%02d.%06d)!", hours, minutes, seconds, microseconds)
	}
	return fmt.Sprintf("Timeout (%d:%02d:%02d)!", hours, minutes, seconds)
}

// std is the process-wide watchdog used by the package-level API.
var std = New(clock.Real())

// Arm arms the process-wide watchdog.
func Arm(timeout time.Duration, source stack.Source, options Options) error {
	return std.Arm(timeout, source, options)
}

// Cancel disarms the process-wide watchdog.
func Cancel() { std.Cancel() }

// Armed reports whether the process-wide watchdog is armed.
func Armed() bool { return std.Armed() }
