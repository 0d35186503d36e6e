// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package usersig

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/crashtrace/lib/dump"
	"github.com/bureau-foundation/crashtrace/lib/stack"
)

var (
	// ErrReservedSignal is returned for signals owned by the fatal
	// engine (SIGSEGV, SIGABRT, SIGFPE, SIGBUS, SIGILL).
	ErrReservedSignal = errors.New("usersig: signal is handled by the fatal engine")

	// ErrInvalidSignal is returned for signals that cannot be caught
	// (SIGKILL, SIGSTOP) or are out of range for the platform.
	ErrInvalidSignal = errors.New("usersig: signal cannot be registered")
)

// maxSignal bounds valid signal numbers, covering the real-time range
// on Linux.
const maxSignal = 64

var reservedSignals = [...]syscall.Signal{
	unix.SIGSEGV, unix.SIGABRT, unix.SIGFPE, unix.SIGBUS, unix.SIGILL,
}

// Options configures Register.
type Options struct {
	// Output is the file descriptor dumps are written to. Zero means
	// standard error.
	Output int

	// AllThreads selects the all-thread dump form.
	AllThreads bool

	// Chain invokes the previously-registered entry for this signal
	// after the dump.
	Chain bool

	// Header, when non-empty, is written as a line before the trace.
	Header string
}

// registration is one installed handler. All fields consulted at
// delivery are immutable after construction; Register and Unregister
// only ever attach or detach the os/signal subscription.
type registration struct {
	signum     syscall.Signal
	source     stack.Source
	fd         int
	allThreads bool
	chain      bool
	header     string

	// previous is the registration that was live immediately before
	// this one, restored by Unregister and invoked by Chain.
	previous *registration

	ch   chan os.Signal
	done chan struct{}
}

var (
	// mu serializes Register and Unregister. The delivery path never
	// consults the table: each registration's goroutine holds its own
	// entry directly.
	mu    sync.Mutex
	table = make(map[syscall.Signal]*registration)
)

// Register installs a dump handler for signum, replacing any existing
// registration for the same signal (the replaced entry is captured and
// restorable by Unregister). The source must be ready to produce
// traces without allocation from this point on.
func Register(signum syscall.Signal, source stack.Source, options Options) error {
	if source == nil {
		return fmt.Errorf("usersig: register requires a frame source")
	}
	if signum <= 0 || signum > maxSignal {
		return fmt.Errorf("%w: %d out of range", ErrInvalidSignal, signum)
	}
	if signum == unix.SIGKILL || signum == unix.SIGSTOP {
		return fmt.Errorf("%w: %v cannot be caught", ErrInvalidSignal, signum)
	}
	for _, reserved := range reservedSignals {
		if signum == reserved {
			return fmt.Errorf("%w: %v (use fatal.Enable)", ErrReservedSignal, signum)
		}
	}

	fd := options.Output
	if fd == 0 {
		fd = unix.Stderr
	}

	mu.Lock()
	defer mu.Unlock()

	previous := table[signum]
	if previous != nil {
		// The prior entry stops receiving directly; it stays
		// invocable through Chain and restorable by Unregister.
		signal.Stop(previous.ch)
		close(previous.done)
	}

	entry := &registration{
		signum:     signum,
		source:     source,
		fd:         fd,
		allThreads: options.AllThreads,
		chain:      options.Chain,
		header:     options.Header,
		previous:   previous,
		ch:         make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
	table[signum] = entry
	signal.Notify(entry.ch, signum)
	go entry.run(entry.done)
	return nil
}

// Unregister removes the registration for signum and restores the
// previously-captured entry as the live one. Returns false when no
// registration exists (a no-op, not an error).
func Unregister(signum syscall.Signal) bool {
	mu.Lock()
	defer mu.Unlock()

	entry := table[signum]
	if entry == nil {
		return false
	}

	signal.Stop(entry.ch)
	close(entry.done)

	if entry.previous != nil {
		restored := entry.previous
		restored.done = make(chan struct{})
		table[signum] = restored
		signal.Notify(restored.ch, signum)
		go restored.run(restored.done)
	} else {
		delete(table, signum)
		// With no subscription left here, the runtime restores the
		// disposition that predated this package's involvement.
	}
	return true
}

// run consumes deliveries for one registration until detached. The
// done channel is passed in rather than read from the struct: a
// replaced entry can be restored later with a fresh channel and a
// fresh goroutine, without racing the old goroutine's shutdown.
func (r *registration) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-r.ch:
			r.fire()
		}
	}
}

// fire writes this registration's dump and chains to the prior entry
// when configured. Dump-only: user signals never terminate the
// process. Reads only immutable fields.
func (r *registration) fire() {
	if r.header != "" {
		dump.Line(r.fd, r.header)
	}
	if r.allThreads {
		dump.Threads(r.fd, r.source.Threads())
	} else {
		if trace, ok := r.source.CurrentTrace(); ok {
			dump.Traceback(r.fd, trace)
		}
	}
	if r.chain && r.previous != nil {
		r.previous.fire()
	}
}
